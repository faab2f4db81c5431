package switchboard

import (
	"errors"
	"log/slog"

	"github.com/hashicorp/go-metrics"

	"github.com/roach88/switchboard/internal/config"
	"github.com/roach88/switchboard/internal/dispatch"
	"github.com/roach88/switchboard/internal/envelope"
)

type options struct {
	cfg      *config.Config
	logger   *slog.Logger
	sink     metrics.MetricSink
	probe    dispatch.Probe
	ids      envelope.IDGenerator
	storeDir string
	memory   bool
}

// Option to pass to Open.
type Option func(*options) error

// WithConfig replaces the built-in defaults.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("switchboard: nil config")
		}
		o.cfg = cfg
		return nil
	}
}

// WithConfigFile loads configuration from a YAML file, with SWITCHBOARD_*
// environment overrides applied on top.
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		o.cfg = cfg
		return nil
	}
}

// WithLogger sets the logger shared by both halves of the bus.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// WithMetricSink sets where counters and gauges are emitted.
func WithMetricSink(sink metrics.MetricSink) Option {
	return func(o *options) error {
		o.sink = sink
		return nil
	}
}

// WithProbe sets the host capability probe. By default the probe reports
// the configured memory class and platform speed.
func WithProbe(p Probe) Option {
	return func(o *options) error {
		o.probe = p
		return nil
	}
}

// WithIDGenerator sets the generator for uids, message ids, reply ids and
// the session id.
func WithIDGenerator(ids IDGenerator) Option {
	return func(o *options) error {
		o.ids = ids
		return nil
	}
}

// WithStoreDir sets the directory holding the session log database.
func WithStoreDir(dir string) Option {
	return func(o *options) error {
		o.storeDir = dir
		return nil
	}
}

// WithMemoryStore keeps reply correlations in memory and skips the
// database.
func WithMemoryStore() Option {
	return func(o *options) error {
		o.memory = true
		return nil
	}
}
