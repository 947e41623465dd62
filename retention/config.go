package retention

import (
	"time"

	"github.com/resourcedb/resourcedb/toml"
)

const (
	// DefaultCheckInterval is how often the purge cycle runs.
	DefaultCheckInterval = 30 * time.Minute

	// DefaultBatchSize caps how many rows one purge call removes, keeping
	// lock time bounded under high churn.
	DefaultBatchSize = 1000

	// DefaultRetentionDays applies to types without an explicit retention
	// policy.
	DefaultRetentionDays = 30
)

// Config is the retention purge service configuration.
type Config struct {
	Enabled       bool          `toml:"enabled"`
	CheckInterval toml.Duration `toml:"check-interval"`
	BatchSize     int           `toml:"batch-size"`
	// DefaultRetentionDays is the system default for types whose resolved
	// configuration does not set one.
	DefaultRetentionDays int `toml:"default-retention-days"`
}

// NewConfig returns a config with sane defaults.
func NewConfig() Config {
	return Config{
		Enabled:              true,
		CheckInterval:        toml.Duration(DefaultCheckInterval),
		BatchSize:            DefaultBatchSize,
		DefaultRetentionDays: DefaultRetentionDays,
	}
}

// WithDefaults fills unset fields with the default values.
func (c Config) WithDefaults() Config {
	if c.CheckInterval == 0 {
		c.CheckInterval = toml.Duration(DefaultCheckInterval)
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.DefaultRetentionDays <= 0 {
		c.DefaultRetentionDays = DefaultRetentionDays
	}
	return c
}
