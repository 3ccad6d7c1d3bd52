package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/utkarsh5026/elasticpool/pool"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const sampleYAML = `
pool:
  name: bench
  min_workers: 2
  max_workers: 8
  queue_size: 100
  keep_alive: 30s
  reject_policy: discard_oldest
  task_timeout: 2s
  shutdown_wait: false
  shutdown_timeout: 5s
  enable_metrics: true
  retry:
    max_attempts: 3
    initial_delay: 50ms
    max_delay: 1s
    backoff: jittered
    jitter: 0.2
  rate_limit: 100
  rate_burst: 10
logging:
  level: warn
  format: console
workload:
  tasks: 500
  async_ratio: 0.25
  task_duration: 5ms
  failure_ratio: 0.1
`

func TestLoadFile_YAML(t *testing.T) {
	fc, err := LoadFile(writeFile(t, "pool.yaml", sampleYAML))
	require.NoError(t, err)

	cfg, err := fc.ToPoolConfig()
	require.NoError(t, err)

	assert.Equal(t, "bench", cfg.Name)
	assert.Equal(t, 2, cfg.MinWorkers)
	assert.Equal(t, 8, cfg.MaxWorkers)
	assert.Equal(t, 100, cfg.QueueCapacity)
	assert.Equal(t, 30*time.Second, cfg.KeepAlive)
	assert.Equal(t, pool.RejectDiscardOldest, cfg.RejectPolicy)
	assert.Equal(t, 2*time.Second, cfg.TaskTimeout)
	assert.False(t, cfg.ShutdownWait)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, time.Second, cfg.MaxRetryDelay)
	assert.Equal(t, pool.BackoffJittered, cfg.Backoff)
	assert.InDelta(t, 0.2, cfg.JitterFactor, 1e-9)
	assert.InDelta(t, 100.0, cfg.RateLimit, 1e-9)
	assert.Equal(t, 10, cfg.RateBurst)

	w, err := fc.ToWorkload()
	require.NoError(t, err)
	assert.Equal(t, 500, w.Tasks)
	assert.Equal(t, 5*time.Millisecond, w.TaskDuration)
	assert.Equal(t, time.Minute, w.SubmitTimeout)
}

func TestLoadFile_JSON(t *testing.T) {
	path := writeFile(t, "pool.json", `{"pool": {"min_workers": 3, "max_workers": 3, "reject_policy": "caller_runs"}}`)

	fc, err := LoadFile(path)
	require.NoError(t, err)

	cfg, err := fc.ToPoolConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MinWorkers)
	assert.Equal(t, 3, cfg.MaxWorkers)
	assert.Equal(t, pool.RejectCallerRuns, cfg.RejectPolicy)
	assert.True(t, cfg.ShutdownWait, "unset shutdown_wait keeps the default")
	assert.Equal(t, 60*time.Second, cfg.KeepAlive)
}

func TestLoadFile_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := LoadFile(writeFile(t, "pool.toml", "min_workers = 1"))
		assert.ErrorContains(t, err, "unsupported config format")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := LoadFile(writeFile(t, "pool.yaml", "pool: [unclosed"))
		assert.ErrorContains(t, err, "failed to parse YAML")
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := LoadFile(writeFile(t, "pool.json", "{"))
		assert.ErrorContains(t, err, "failed to parse JSON")
	})
}

func TestToPoolConfig_ReportsEveryProblem(t *testing.T) {
	fc := &FileConfig{Pool: PoolConfig{
		KeepAlive:    "forever",
		TaskTimeout:  "soon",
		RejectPolicy: "panic",
		Retry:        Retry{Backoff: "fibonacci"},
	}}

	_, err := fc.ToPoolConfig()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)
	assert.ErrorIs(t, err, pool.ErrInvalidConfig)
}

func TestToPoolConfig_RunsPoolValidation(t *testing.T) {
	fc := &FileConfig{Pool: PoolConfig{MinWorkers: 4, MaxWorkers: 2}}

	_, err := fc.ToPoolConfig()
	var cfgErr *pool.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "MaxWorkers", cfgErr.Field)
}

func TestOptions_BuildsAWorkingPool(t *testing.T) {
	fc, err := LoadFile(writeFile(t, "pool.yaml", sampleYAML))
	require.NoError(t, err)

	opts, err := fc.Options()
	require.NoError(t, err)

	p, err := pool.New(opts...)
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(true, time.Second) }()

	cfg := p.Config()
	assert.Equal(t, "bench", cfg.Name)
	assert.NotNil(t, cfg.Logger)

	_, ok := p.Metrics()
	assert.True(t, ok)
}

func TestLoggingConfig_Build(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LoggingConfig
		wantErr bool
	}{
		{"disabled", LoggingConfig{}, false},
		{"json info", LoggingConfig{Level: "info"}, false},
		{"console debug", LoggingConfig{Level: "debug", Format: "console"}, false},
		{"bad level", LoggingConfig{Level: "loud"}, true},
		{"bad format", LoggingConfig{Level: "info", Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := tt.cfg.Build()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestToWorkload(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		w, err := (&FileConfig{}).ToWorkload()
		require.NoError(t, err)
		assert.Equal(t, 1000, w.Tasks)
		assert.Equal(t, 10*time.Millisecond, w.TaskDuration)
	})

	t.Run("ratio out of range", func(t *testing.T) {
		_, err := (&FileConfig{Workload: WorkloadConfig{AsyncRatio: 1.5}}).ToWorkload()
		assert.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := (&FileConfig{Workload: WorkloadConfig{TaskDuration: "quick"}}).ToWorkload()
		assert.ErrorContains(t, err, "task_duration")
	})
}

func TestLoadFile_ShippedBenchConfig(t *testing.T) {
	fc, err := LoadFile(filepath.Join("..", "configs", "poolbench.yaml"))
	require.NoError(t, err)

	opts, err := fc.Options()
	require.NoError(t, err)
	assert.Len(t, opts, 1)

	w, err := fc.ToWorkload()
	require.NoError(t, err)
	assert.Equal(t, 5000, w.Tasks)
}
