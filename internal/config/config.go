// Package config loads and validates the runtime configuration for the
// heteroprio scheduler, its hypervisor, and the demo CLI that hosts them.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// RuntimeConfig is the complete configuration for one process hosting a
// heteroprio scheduler and its hypervisor.
type RuntimeConfig struct {
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Hypervisor HypervisorConfig `yaml:"hypervisor"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SchedulerConfig configures the heteroprio bucket scheduler.
type SchedulerConfig struct {
	MaxPrio     int `yaml:"max_prio"`
	MaxPrefetch int `yaml:"max_prefetch"`
}

// HypervisorConfig configures the process-wide hypervisor and the default
// resize policy it installs for new contexts.
type HypervisorConfig struct {
	Policy             string        `yaml:"policy"` // idle, app_driven, gflops_rate
	MinTasks           int64         `yaml:"min_tasks"`
	DefaultMinWorkers  int           `yaml:"default_min_workers"`
	DefaultMaxWorkers  int           `yaml:"default_max_workers"`
	DefaultGranularity int           `yaml:"default_granularity"`
	DefaultMaxIdle     time.Duration `yaml:"default_max_idle"`
	NewWorkersMaxIdle  time.Duration `yaml:"new_workers_max_idle"`
	ResizeCheckPeriod  time.Duration `yaml:"resize_check_period"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// LoggingConfig configures the global zerolog logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// DefaultConfig returns a RuntimeConfig populated with the defaults from
// starpu_heteroprio.h (MaxPrio=100, MaxPrefetch=2) and reasonable
// hypervisor/metrics defaults for local use.
func DefaultConfig() *RuntimeConfig {
	return &RuntimeConfig{
		Scheduler: SchedulerConfig{
			MaxPrio:     100,
			MaxPrefetch: 2,
		},
		Hypervisor: HypervisorConfig{
			Policy:             "idle",
			MinTasks:           100,
			DefaultMinWorkers:  1,
			DefaultMaxWorkers:  16,
			DefaultGranularity: 1,
			DefaultMaxIdle:     5 * time.Second,
			NewWorkersMaxIdle:  5 * time.Second,
			ResizeCheckPeriod:  time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Listen:    "0.0.0.0:9090",
			Path:      "/metrics",
			Namespace: "heteroprio",
			Subsystem: "scheduler",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}

// Load loads configuration from configFile, or from the standard search
// path (., ./config, $HOME/.heteroprio, /etc/heteroprio) when configFile is
// empty. Environment variables prefixed HETEROPRIO_ override file values.
// A missing config file is not an error: DefaultConfig's values stand.
func Load(configFile string) (*RuntimeConfig, error) {
	cfg := DefaultConfig()

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.heteroprio")
		v.AddConfigPath("/etc/heteroprio")
	}

	v.SetEnvPrefix("HETEROPRIO")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Decode by the yaml struct tags, so file keys such as max_prio reach
	// their fields and Save's output loads back unchanged.
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks range and consistency constraints drawn from
// starpu_heteroprio.h and the hypervisor's resize invariants.
func (c *RuntimeConfig) Validate() error {
	if c.Scheduler.MaxPrio <= 0 {
		return fmt.Errorf("scheduler.max_prio must be positive, got %d", c.Scheduler.MaxPrio)
	}
	if c.Scheduler.MaxPrefetch < 1 {
		return fmt.Errorf("scheduler.max_prefetch must be >= 1, got %d", c.Scheduler.MaxPrefetch)
	}
	if c.Hypervisor.DefaultMinWorkers < 0 {
		return fmt.Errorf("hypervisor.default_min_workers must be >= 0, got %d", c.Hypervisor.DefaultMinWorkers)
	}
	if c.Hypervisor.DefaultMaxWorkers < c.Hypervisor.DefaultMinWorkers {
		return fmt.Errorf("hypervisor.default_max_workers (%d) must be >= default_min_workers (%d)",
			c.Hypervisor.DefaultMaxWorkers, c.Hypervisor.DefaultMinWorkers)
	}
	if c.Hypervisor.DefaultGranularity <= 0 {
		return fmt.Errorf("hypervisor.default_granularity must be positive, got %d", c.Hypervisor.DefaultGranularity)
	}
	switch c.Hypervisor.Policy {
	case "idle", "app_driven", "gflops_rate":
	default:
		return fmt.Errorf("hypervisor.policy must be one of idle, app_driven, gflops_rate, got %q", c.Hypervisor.Policy)
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen must be set when metrics.enabled is true")
	}
	return nil
}

// Save writes c to filename in YAML form.
func (c *RuntimeConfig) Save(filename string) error {
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(filename, out, 0o644)
}
