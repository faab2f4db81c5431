package engine

import (
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/switchboard/internal/config"
)

// Settings tunes the engine. Zero durations fall back to DefaultSettings.
type Settings struct {
	RetryInterval time.Duration

	// StoreDir holds the session database. MemoryOnly skips it entirely.
	StoreDir   string
	MemoryOnly bool

	LowMemoryClass      int
	LowMemoryCompaction time.Duration
	Compaction          time.Duration
	Ping                time.Duration
}

// DefaultSettings mirrors config.Default.
func DefaultSettings() Settings {
	return SettingsFromConfig(config.Default())
}

// SettingsFromConfig converts loaded configuration into engine settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	dir := cfg.Engine.StoreDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "switchboard")
	}
	return Settings{
		RetryInterval:       cfg.Engine.RetryInterval(),
		StoreDir:            dir,
		MemoryOnly:          cfg.Engine.MemoryOnly,
		LowMemoryClass:      cfg.Schedule.LowMemoryClass,
		LowMemoryCompaction: cfg.Schedule.CompactionInterval(cfg.Schedule.LowMemoryClass),
		Compaction:          cfg.Schedule.CompactionInterval(cfg.Schedule.LowMemoryClass + 1),
		Ping:                cfg.Schedule.PingInterval(),
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.RetryInterval <= 0 {
		s.RetryInterval = d.RetryInterval
	}
	if s.StoreDir == "" {
		s.StoreDir = d.StoreDir
	}
	if s.LowMemoryCompaction <= 0 {
		s.LowMemoryCompaction = d.LowMemoryCompaction
	}
	if s.Compaction <= 0 {
		s.Compaction = d.Compaction
	}
	if s.Ping <= 0 {
		s.Ping = d.Ping
	}
	return s
}

// compactionInterval picks the period for the host's memory class.
func (s Settings) compactionInterval(memoryClass int) time.Duration {
	if memoryClass <= s.LowMemoryClass {
		return s.LowMemoryCompaction
	}
	return s.Compaction
}
