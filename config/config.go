// Package config loads pool settings from YAML or JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/utkarsh5026/elasticpool/internal/algorithms"
	"github.com/utkarsh5026/elasticpool/pool"
)

// FileConfig is the layout of a configuration file.
type FileConfig struct {
	Pool     PoolConfig     `yaml:"pool" json:"pool"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Workload WorkloadConfig `yaml:"workload" json:"workload"`
}

// PoolConfig mirrors pool.Config with file-friendly types. Durations are
// strings such as "500ms"; zero values keep the pool defaults.
type PoolConfig struct {
	Name            string  `yaml:"name" json:"name"`
	MinWorkers      int     `yaml:"min_workers" json:"min_workers"`
	MaxWorkers      int     `yaml:"max_workers" json:"max_workers"`
	QueueSize       int     `yaml:"queue_size" json:"queue_size"`
	KeepAlive       string  `yaml:"keep_alive" json:"keep_alive"`
	RejectPolicy    string  `yaml:"reject_policy" json:"reject_policy"`
	TaskTimeout     string  `yaml:"task_timeout" json:"task_timeout"`
	ShutdownWait    *bool   `yaml:"shutdown_wait" json:"shutdown_wait"`
	ShutdownTimeout string  `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	EnableMetrics   bool    `yaml:"enable_metrics" json:"enable_metrics"`
	CPUAffinity     bool    `yaml:"cpu_affinity" json:"cpu_affinity"`
	Retry           Retry   `yaml:"retry" json:"retry"`
	RateLimit       float64 `yaml:"rate_limit" json:"rate_limit"`
	RateBurst       int     `yaml:"rate_burst" json:"rate_burst"`
}

// Retry configures retries of failing plain tasks.
type Retry struct {
	MaxAttempts  int     `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay string  `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     string  `yaml:"max_delay" json:"max_delay"`
	Backoff      string  `yaml:"backoff" json:"backoff"`
	Jitter       float64 `yaml:"jitter" json:"jitter"`
}

// LoggingConfig selects the zap logger handed to the pool.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // json or console
}

// WorkloadConfig describes the synthetic load cmd/poolbench generates.
type WorkloadConfig struct {
	Tasks         int     `yaml:"tasks" json:"tasks"`
	AsyncRatio    float64 `yaml:"async_ratio" json:"async_ratio"`
	TaskDuration  string  `yaml:"task_duration" json:"task_duration"`
	FailureRatio  float64 `yaml:"failure_ratio" json:"failure_ratio"`
	SubmitTimeout string  `yaml:"submit_timeout" json:"submit_timeout"`
}

// LoadFile reads a .yaml, .yml or .json file.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg FileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &cfg, nil
}

// ToPoolConfig converts the file settings into a pool.Config, starting from
// pool.DefaultConfig. Every malformed field is reported.
func (f *FileConfig) ToPoolConfig() (pool.Config, error) {
	pc := f.Pool
	cfg := pool.DefaultConfig()
	var errs error

	duration := func(field, value string, dst *time.Duration) {
		if value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid %s: %w", field, err))
			return
		}
		*dst = d
	}

	if pc.Name != "" {
		cfg.Name = pc.Name
	}
	if pc.MinWorkers != 0 {
		cfg.MinWorkers = pc.MinWorkers
	}
	if pc.MaxWorkers != 0 {
		cfg.MaxWorkers = pc.MaxWorkers
	}
	cfg.QueueCapacity = pc.QueueSize
	duration("pool.keep_alive", pc.KeepAlive, &cfg.KeepAlive)
	duration("pool.task_timeout", pc.TaskTimeout, &cfg.TaskTimeout)
	duration("pool.shutdown_timeout", pc.ShutdownTimeout, &cfg.ShutdownTimeout)

	if pc.RejectPolicy != "" {
		policy, err := pool.ParseRejectPolicy(pc.RejectPolicy)
		if err != nil {
			errs = multierr.Append(errs, err)
		}
		cfg.RejectPolicy = policy
	}
	if pc.ShutdownWait != nil {
		cfg.ShutdownWait = *pc.ShutdownWait
	}
	cfg.MetricsEnabled = pc.EnableMetrics
	cfg.CPUAffinity = pc.CPUAffinity
	cfg.RateLimit = pc.RateLimit
	cfg.RateBurst = pc.RateBurst

	if pc.Retry.MaxAttempts != 0 {
		cfg.MaxAttempts = pc.Retry.MaxAttempts
	}
	duration("pool.retry.initial_delay", pc.Retry.InitialDelay, &cfg.RetryDelay)
	duration("pool.retry.max_delay", pc.Retry.MaxDelay, &cfg.MaxRetryDelay)
	if pc.Retry.Backoff != "" {
		kind, ok := algorithms.ParseKind(strings.ToLower(pc.Retry.Backoff))
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("unknown backoff %q", pc.Retry.Backoff))
		}
		cfg.Backoff = kind
	}
	if pc.Retry.Jitter != 0 {
		cfg.JitterFactor = pc.Retry.Jitter
	}

	if errs != nil {
		return cfg, errs
	}
	return cfg, cfg.Validate()
}

// Options returns the pool options for this file, including a logger built
// from the logging section.
func (f *FileConfig) Options() ([]pool.Option, error) {
	cfg, err := f.ToPoolConfig()
	if err != nil {
		return nil, err
	}

	logger, err := f.Logging.Build()
	if err != nil {
		return nil, err
	}
	cfg.Logger = logger

	return []pool.Option{pool.WithConfig(cfg)}, nil
}

// Build creates the zap logger described by l. An empty level disables
// logging.
func (l LoggingConfig) Build() (*zap.Logger, error) {
	if l.Level == "" {
		return zap.NewNop(), nil
	}

	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging.level: %w", err)
	}

	var zc zap.Config
	switch strings.ToLower(l.Format) {
	case "", "json":
		zc = zap.NewProductionConfig()
	case "console":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("invalid logging.format %q", l.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// Workload is the parsed form of WorkloadConfig.
type Workload struct {
	Tasks         int
	AsyncRatio    float64
	TaskDuration  time.Duration
	FailureRatio  float64
	SubmitTimeout time.Duration
}

// ToWorkload parses the workload section, filling defaults for unset fields.
func (f *FileConfig) ToWorkload() (Workload, error) {
	wc := f.Workload
	w := Workload{
		Tasks:         1000,
		TaskDuration:  10 * time.Millisecond,
		SubmitTimeout: time.Minute,
	}

	if wc.Tasks < 0 {
		return w, fmt.Errorf("workload.tasks must be non-negative")
	}
	if wc.Tasks > 0 {
		w.Tasks = wc.Tasks
	}
	if wc.AsyncRatio < 0 || wc.AsyncRatio > 1 {
		return w, fmt.Errorf("workload.async_ratio must be between 0 and 1")
	}
	w.AsyncRatio = wc.AsyncRatio
	if wc.FailureRatio < 0 || wc.FailureRatio > 1 {
		return w, fmt.Errorf("workload.failure_ratio must be between 0 and 1")
	}
	w.FailureRatio = wc.FailureRatio

	if wc.TaskDuration != "" {
		d, err := time.ParseDuration(wc.TaskDuration)
		if err != nil {
			return w, fmt.Errorf("invalid workload.task_duration: %w", err)
		}
		w.TaskDuration = d
	}
	if wc.SubmitTimeout != "" {
		d, err := time.ParseDuration(wc.SubmitTimeout)
		if err != nil {
			return w, fmt.Errorf("invalid workload.submit_timeout: %w", err)
		}
		w.SubmitTimeout = d
	}
	return w, nil
}
