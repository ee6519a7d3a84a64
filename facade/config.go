// File: facade/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process configuration for the facade: defaults, YAML file and
// HIOLOAD_PIM_* environment overrides.

package facade

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/momentics/hioload-pim/dispatcher"
	"github.com/momentics/hioload-pim/fake"
	"github.com/momentics/hioload-pim/internal/logger"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// HIOLOAD_PIM_DISPATCH_MAX_WAIT=2ms.
const EnvPrefix = "HIOLOAD_PIM"

// Config holds parameters fixed for one run. Only the dispatch threshold
// and max wait can change later, through the Control interface.
type Config struct {
	Runtime         RuntimeConfig  `mapstructure:"runtime"`
	Dispatch        DispatchConfig `mapstructure:"dispatch"`
	Logging         logger.Config  `mapstructure:"logging"`
	Metrics         MetricsConfig  `mapstructure:"metrics"`
	ShutdownTimeout time.Duration  `mapstructure:"shutdown_timeout"`
}

// RuntimeConfig shapes the simulated runtime built when New gets no runtime.
type RuntimeConfig struct {
	Clusters        int           `mapstructure:"clusters"`
	LanesPerCluster int           `mapstructure:"lanes_per_cluster"`
	MaxInputLen     int           `mapstructure:"max_input_len"`
	MaxOutputLen    int           `mapstructure:"max_output_len"`
	Alignment       int           `mapstructure:"alignment"`
	Latency         time.Duration `mapstructure:"latency"`
	Workers         int           `mapstructure:"workers"`
}

// DispatchConfig is the batching policy.
type DispatchConfig struct {
	Threshold       int           `mapstructure:"threshold"` // 0: 64 per lane
	MaxWait         time.Duration `mapstructure:"max_wait"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	CPU             int           `mapstructure:"cpu"` // -1: no pinning
	ClockHz         float64       `mapstructure:"clock_hz"`
	StagingPrealloc int           `mapstructure:"staging_prealloc"`
}

// MetricsConfig toggles Prometheus collectors and the bench scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// DefaultConfig returns defaults for a 4x16 lane simulated runtime.
func DefaultConfig() *Config {
	rt := fake.DefaultConfig()
	return &Config{
		Runtime: RuntimeConfig{
			Clusters:        rt.Clusters,
			LanesPerCluster: rt.LanesPerCluster,
			MaxInputLen:     rt.MaxInputLen,
			MaxOutputLen:    rt.MaxOutputLen,
			Alignment:       rt.Alignment,
			Latency:         rt.Latency,
			Workers:         rt.Workers,
		},
		Dispatch: DispatchConfig{
			MaxWait:         dispatcher.DefaultMaxWait,
			PollInterval:    dispatcher.DefaultPollInterval,
			CPU:             -1,
			ClockHz:         dispatcher.DefaultClockHz,
			StagingPrealloc: 2,
		},
		Logging: logger.Config{
			Level:  "INFO",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		ShutdownTimeout: 10 * time.Second,
	}
}

// LoadConfig reads path (optional) on top of the defaults, then applies
// environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("runtime.clusters", d.Runtime.Clusters)
	v.SetDefault("runtime.lanes_per_cluster", d.Runtime.LanesPerCluster)
	v.SetDefault("runtime.max_input_len", d.Runtime.MaxInputLen)
	v.SetDefault("runtime.max_output_len", d.Runtime.MaxOutputLen)
	v.SetDefault("runtime.alignment", d.Runtime.Alignment)
	v.SetDefault("runtime.latency", d.Runtime.Latency)
	v.SetDefault("runtime.workers", d.Runtime.Workers)

	v.SetDefault("dispatch.threshold", d.Dispatch.Threshold)
	v.SetDefault("dispatch.max_wait", d.Dispatch.MaxWait)
	v.SetDefault("dispatch.poll_interval", d.Dispatch.PollInterval)
	v.SetDefault("dispatch.cpu", d.Dispatch.CPU)
	v.SetDefault("dispatch.clock_hz", d.Dispatch.ClockHz)
	v.SetDefault("dispatch.staging_prealloc", d.Dispatch.StagingPrealloc)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)

	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
}

// Validate rejects values the runtime or dispatcher cannot work with.
func (c *Config) Validate() error {
	switch {
	case c.Runtime.Clusters <= 0:
		return fmt.Errorf("runtime.clusters must be positive, got %d", c.Runtime.Clusters)
	case c.Runtime.LanesPerCluster <= 0:
		return fmt.Errorf("runtime.lanes_per_cluster must be positive, got %d", c.Runtime.LanesPerCluster)
	case c.Dispatch.Threshold < 0:
		return fmt.Errorf("dispatch.threshold must not be negative, got %d", c.Dispatch.Threshold)
	case c.Dispatch.MaxWait <= 0:
		return fmt.Errorf("dispatch.max_wait must be positive, got %s", c.Dispatch.MaxWait)
	case c.Dispatch.PollInterval <= 0:
		return fmt.Errorf("dispatch.poll_interval must be positive, got %s", c.Dispatch.PollInterval)
	case c.Dispatch.ClockHz <= 0:
		return fmt.Errorf("dispatch.clock_hz must be positive, got %g", c.Dispatch.ClockHz)
	case c.ShutdownTimeout <= 0:
		return fmt.Errorf("shutdown_timeout must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}

func (c *Config) fakeConfig() fake.Config {
	rc := fake.DefaultConfig()
	rc.Clusters = c.Runtime.Clusters
	rc.LanesPerCluster = c.Runtime.LanesPerCluster
	if c.Runtime.MaxInputLen > 0 {
		rc.MaxInputLen = c.Runtime.MaxInputLen
	}
	if c.Runtime.MaxOutputLen > 0 {
		rc.MaxOutputLen = c.Runtime.MaxOutputLen
	}
	if c.Runtime.Alignment > 0 {
		rc.Alignment = c.Runtime.Alignment
	}
	rc.Latency = c.Runtime.Latency
	rc.Workers = c.Runtime.Workers
	return rc
}
