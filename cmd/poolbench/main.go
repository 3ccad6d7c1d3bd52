// Command poolbench drives an elastic pool with a synthetic workload and
// prints how the pool behaved.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"

	"github.com/utkarsh5026/elasticpool/config"
	"github.com/utkarsh5026/elasticpool/internal/cpu"
	"github.com/utkarsh5026/elasticpool/observability/prometheus"
	"github.com/utkarsh5026/elasticpool/pool"
)

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML or JSON config file")
	tasks := flag.Int("tasks", 0, "Number of tasks to submit (overrides config)")
	minWorkers := flag.Int("min", 0, "Minimum workers (overrides config)")
	maxWorkers := flag.Int("max", 0, "Maximum workers (overrides config)")
	queueSize := flag.Int("queue", -1, "Queue capacity, 0 = unbounded (overrides config)")
	policy := flag.String("policy", "", "Reject policy: abort, discard, discard_oldest, caller_runs")
	asyncRatio := flag.Float64("async", -1, "Fraction of tasks submitted as coroutines")
	failRatio := flag.Float64("fail", -1, "Fraction of tasks that return an error")
	duration := flag.Duration("duration", 0, "Simulated work per task")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	ciMode := flag.Bool("ci", false, "CI mode: disable the progress bar")
	flag.Parse()

	fc := &config.FileConfig{}
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			fatal(err)
		}
		fc = loaded
	}

	if *tasks > 0 {
		fc.Workload.Tasks = *tasks
	}
	if *minWorkers > 0 {
		fc.Pool.MinWorkers = *minWorkers
	}
	if *maxWorkers > 0 {
		fc.Pool.MaxWorkers = *maxWorkers
	}
	if *queueSize >= 0 {
		fc.Pool.QueueSize = *queueSize
	}
	if *policy != "" {
		fc.Pool.RejectPolicy = *policy
	}
	if *asyncRatio >= 0 {
		fc.Workload.AsyncRatio = *asyncRatio
	}
	if *failRatio >= 0 {
		fc.Workload.FailureRatio = *failRatio
	}
	if *duration > 0 {
		fc.Workload.TaskDuration = duration.String()
	}

	workload, err := fc.ToWorkload()
	if err != nil {
		fatal(err)
	}
	opts, err := fc.Options()
	if err != nil {
		fatal(err)
	}
	p, err := pool.New(append(opts, pool.WithMetrics(true))...)
	if err != nil {
		fatal(err)
	}
	cfg := p.Config()

	if *metricsAddr != "" {
		exp, err := prometheus.NewExporter("elasticpool", nil, time.Second)
		if err != nil {
			fatal(err)
		}
		exp.AddPool(cfg.Name, p)
		exp.Start(context.Background())
		defer exp.Stop()

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				red.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
	}

	printConfiguration(cfg, workload)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var bar *progressbar.ProgressBar
	progress := func() {}
	if !*ciMode {
		bar = progressbar.NewOptions(workload.Tasks,
			progressbar.OptionSetDescription("Running tasks"),
			progressbar.OptionSetWidth(50),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionEnableColorCodes(true),
		)
		progress = func() { _ = bar.Add(1) }
	}

	res, err := runWorkload(ctx, p, workload, progress)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		red.Printf("workload aborted: %v\n", err)
	}

	m, _ := p.Metrics()
	if err := p.Shutdown(true, cfg.ShutdownTimeout); err != nil {
		yellow.Printf("shutdown: %v\n", err)
	}

	if res != nil {
		printResults(res, m)
	}
	if err != nil {
		os.Exit(1)
	}
}

func printConfiguration(cfg pool.Config, w config.Workload) {
	bold.Println("Configuration:")
	fmt.Printf("  Pool:           %s\n", cfg.Name)
	fmt.Printf("  Workers:        %d..%d (keep-alive %v, %d CPUs)\n", cfg.MinWorkers, cfg.MaxWorkers, cfg.KeepAlive, cpu.Count())
	queue := "unbounded"
	if cfg.QueueCapacity > 0 {
		queue = strconv.Itoa(cfg.QueueCapacity)
	}
	fmt.Printf("  Queue:          %s, reject policy %s\n", queue, cfg.RejectPolicy)
	fmt.Printf("  Tasks:          %d (%.0f%% coroutines, %.0f%% failing)\n", w.Tasks, w.AsyncRatio*100, w.FailureRatio*100)
	fmt.Printf("  Task duration:  %v\n", w.TaskDuration)
	fmt.Println()
}

func printResults(res *result, m pool.Metrics) {
	o := res.outcome
	throughput := float64(res.tasks) / res.elapsed.Seconds()

	bold.Println("Results")
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Outcome", "Caller view", "Pool counters")
	_ = table.Append("succeeded", strconv.FormatInt(o.succeeded.Load(), 10), strconv.FormatInt(m.CompletedTasks, 10))
	_ = table.Append("failed", strconv.FormatInt(o.failed.Load(), 10), strconv.FormatInt(m.FailedTasks, 10))
	_ = table.Append("timed out", strconv.FormatInt(o.timedOut.Load(), 10), strconv.FormatInt(m.TimedOutTasks, 10))
	_ = table.Append("rejected", strconv.FormatInt(o.rejected.Load(), 10), strconv.FormatInt(m.RejectedTasks, 10))
	_ = table.Append("cancelled", strconv.FormatInt(o.cancelled.Load(), 10), strconv.FormatInt(m.CancelledTasks, 10))
	_ = table.Append("abandoned", strconv.FormatInt(o.abandoned.Load(), 10), "-")
	if err := table.Render(); err != nil {
		red.Println("failed to render results table")
	}

	fmt.Println()
	fmt.Printf("  Elapsed:      %v\n", res.elapsed.Round(time.Millisecond))
	fmt.Printf("  Throughput:   %.0f tasks/sec\n", throughput)
	fmt.Printf("  Workers now:  %d total, %d busy, %d idle\n", m.TotalWorkers, m.BusyWorkers, m.IdleWorkers)
	if m.QueueCapacity > 0 {
		fmt.Printf("  Queue:        %d/%d at snapshot\n", m.QueueSize, m.QueueCapacity)
	}

	if o.failed.Load()+o.timedOut.Load() == 0 {
		green.Println("  All tasks resolved without errors")
	} else {
		yellow.Printf("  %d tasks resolved with errors\n", o.failed.Load()+o.timedOut.Load())
	}
}

func fatal(err error) {
	red.Fprintf(os.Stderr, "poolbench: %v\n", err)
	os.Exit(1)
}
