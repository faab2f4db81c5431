// Package config loads switchboard settings through viper.
//
// Precedence, highest first: SWITCHBOARD_* environment variables, the config
// file, built-in defaults. Nested keys map to env names by replacing "." with
// "_", e.g. engine.retry_interval_ms → SWITCHBOARD_ENGINE_RETRY_INTERVAL_MS.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "SWITCHBOARD"

// Config is the complete switchboard configuration.
type Config struct {
	Engine   EngineConfig   `mapstructure:"engine"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Probe    ProbeConfig    `mapstructure:"probe"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// EngineConfig controls the routing engine.
type EngineConfig struct {
	// RetryIntervalMs is the retry queue tick (default: 1000)
	RetryIntervalMs int `mapstructure:"retry_interval_ms"`
	// StoreDir holds the per-session log database. Empty means the OS temp dir.
	StoreDir string `mapstructure:"store_dir"`
	// MemoryOnly skips the database and uses the in-memory fallback directly.
	MemoryOnly bool `mapstructure:"memory_only"`
}

// ScheduleConfig controls the engine's background schedule after the host
// capability probe arrives.
type ScheduleConfig struct {
	// LowMemoryClass is the highest memory class treated as low-memory (default: 4)
	LowMemoryClass             int `mapstructure:"low_memory_class"`
	LowMemoryCompactionSeconds int `mapstructure:"low_memory_compaction_seconds"`
	CompactionSeconds          int `mapstructure:"compaction_seconds"`
	// PingSeconds is the liveness interval on slow platforms
	PingSeconds int `mapstructure:"ping_seconds"`
}

// ProbeConfig is the static host capability report.
type ProbeConfig struct {
	MemoryClass  int  `mapstructure:"memory_class"`
	SlowPlatform bool `mapstructure:"slow_platform"`
}

// LoggingConfig controls the CLI's slog handler.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			RetryIntervalMs: 1000,
		},
		Schedule: ScheduleConfig{
			LowMemoryClass:             4,
			LowMemoryCompactionSeconds: 60,
			CompactionSeconds:          300,
			PingSeconds:                3,
		},
		Probe: ProbeConfig{
			MemoryClass: 8,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("engine.retry_interval_ms", defaults.Engine.RetryIntervalMs)
	v.SetDefault("engine.store_dir", defaults.Engine.StoreDir)
	v.SetDefault("engine.memory_only", defaults.Engine.MemoryOnly)

	v.SetDefault("schedule.low_memory_class", defaults.Schedule.LowMemoryClass)
	v.SetDefault("schedule.low_memory_compaction_seconds", defaults.Schedule.LowMemoryCompactionSeconds)
	v.SetDefault("schedule.compaction_seconds", defaults.Schedule.CompactionSeconds)
	v.SetDefault("schedule.ping_seconds", defaults.Schedule.PingSeconds)

	v.SetDefault("probe.memory_class", defaults.Probe.MemoryClass)
	v.SetDefault("probe.slow_platform", defaults.Probe.SlowPlatform)

	v.SetDefault("logging.level", defaults.Logging.Level)
}

// New returns a viper instance with defaults and env overrides wired.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from path, or from switchboard.yaml in the
// working directory when path is empty and such a file exists.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("switchboard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// RetryInterval returns the retry tick as a duration.
func (c *EngineConfig) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalMs) * time.Millisecond
}

// CompactionInterval picks the compaction period for a host memory class.
func (c *ScheduleConfig) CompactionInterval(memoryClass int) time.Duration {
	if memoryClass <= c.LowMemoryClass {
		return time.Duration(c.LowMemoryCompactionSeconds) * time.Second
	}
	return time.Duration(c.CompactionSeconds) * time.Second
}

// PingInterval returns the slow-platform liveness period.
func (c *ScheduleConfig) PingInterval() time.Duration {
	return time.Duration(c.PingSeconds) * time.Second
}
