// Package config defines process configuration and its loading layers.
//
// Conventions:
//   - New returns a Config populated with defaults.
//   - Load layers .env, an optional YAML file and MINOCC_ env vars on top.
//   - Validation errors wrap ErrInvalidConfig, loading errors ErrLoadConfig.
package config

import (
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/okian/minocc/internal/domain/model"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory context queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of estimation workers.
	WorkerCount int `koanf:"worker_count"`

	// MaxRuns bounds the runs kept by the memory store and the claims registry.
	MaxRuns int `koanf:"max_runs"`

	// FailFast cancels a run at its first failed context.
	FailFast bool `koanf:"fail_fast"`

	Sessions   []string `koanf:"sessions"`
	Epochs     []string `koanf:"epochs"`
	TrialTypes []string `koanf:"trialtypes"`

	AbsMinSpikes      int           `koanf:"abs_min_spikes"`
	AbsMinOccurrences int           `koanf:"abs_min_occ"`
	WindowLength      int           `koanf:"winlen"`
	PercentilePoisson float64       `koanf:"percentile_poiss"`
	PercentileRates   float64       `koanf:"percentile_rates"`
	BinWidth          time.Duration `koanf:"binsize"`
	Unit              string        `koanf:"unit"`

	Source SourceConfig `koanf:"source"`
	Store  StoreConfig  `koanf:"store"`
	Output OutputConfig `koanf:"output"`
}

// SourceConfig selects where spike counts are read from.
type SourceConfig struct {
	Kind   string `koanf:"kind"`   // memory, dir or sql
	Path   string `koanf:"path"`   // dir
	Driver string `koanf:"driver"` // sql: sqlite or postgres
	DSN    string `koanf:"dsn"`    // sql
}

// StoreConfig selects where finished runs are persisted.
type StoreConfig struct {
	Kind   string `koanf:"kind"` // memory or sql
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

// OutputConfig controls catalogue export by the CLI. An empty path writes
// to stdout.
type OutputConfig struct {
	Format string `koanf:"format"`
	Path   string `koanf:"path"`
}

// New creates a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		QueueSize:         1024,
		WorkerCount:       runtime.NumCPU(),
		MaxRuns:           64,
		AbsMinSpikes:      2,
		AbsMinOccurrences: 10,
		WindowLength:      12,
		PercentilePoisson: 95,
		PercentileRates:   50,
		BinWidth:          5 * time.Millisecond,
		Unit:              string(model.UnitMillisecond),
		Source:            SourceConfig{Kind: "dir", Path: "./data", Driver: "sqlite"},
		Store:             StoreConfig{Kind: "memory", Driver: "sqlite"},
		Output:            OutputConfig{Format: "json"},
	}
}

// EstimationParams converts the estimation keys into model.Params.
func (c *Config) EstimationParams() (model.Params, error) {
	unit, err := model.ParseUnit(c.Unit)
	if err != nil {
		return model.Params{}, err
	}
	p := model.Params{
		AbsMinSpikes:      c.AbsMinSpikes,
		AbsMinOccurrences: c.AbsMinOccurrences,
		WindowLength:      c.WindowLength,
		PercentilePoisson: c.PercentilePoisson,
		PercentileRates:   c.PercentileRates,
		BinWidth:          c.BinWidth,
		Unit:              unit,
	}
	if err := p.Validate(); err != nil {
		return model.Params{}, err
	}
	return p, nil
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be >= 1, got %d", ErrInvalidConfig, c.QueueSize)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be >= 1, got %d", ErrInvalidConfig, c.WorkerCount)
	case c.MaxRuns < 0:
		return fmt.Errorf("%w: max_runs must be >= 0, got %d", ErrInvalidConfig, c.MaxRuns)
	case !slices.Contains([]string{"text", "json"}, c.LogFormat):
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	case !slices.Contains([]string{"memory", "dir", "sql"}, c.Source.Kind):
		return fmt.Errorf("%w: unknown source.kind %q", ErrInvalidConfig, c.Source.Kind)
	case c.Source.Kind == "dir" && c.Source.Path == "":
		return fmt.Errorf("%w: source.path is required for a dir source", ErrInvalidConfig)
	case c.Source.Kind == "sql" && c.Source.DSN == "":
		return fmt.Errorf("%w: source.dsn is required for a sql source", ErrInvalidConfig)
	case !slices.Contains([]string{"memory", "sql"}, c.Store.Kind):
		return fmt.Errorf("%w: unknown store.kind %q", ErrInvalidConfig, c.Store.Kind)
	case c.Store.Kind == "sql" && c.Store.DSN == "":
		return fmt.Errorf("%w: store.dsn is required for a sql store", ErrInvalidConfig)
	case !slices.Contains([]string{"json", "yaml", "xlsx", "fim"}, c.Output.Format):
		return fmt.Errorf("%w: unknown output.format %q", ErrInvalidConfig, c.Output.Format)
	}

	if _, err := c.EstimationParams(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Keys returns the cartesian product of the configured sessions, epochs and
// trial types.
func (c *Config) Keys() []model.Key {
	return model.Keys(c.Sessions, c.Epochs, c.TrialTypes)
}
