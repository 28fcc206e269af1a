package scheduler

import "time"

// Config controls the rollover worker.
type Config struct {
	// Interval between sweeps.
	Interval time.Duration
	// BatchSize caps the expenses picked up by one sweep.
	BatchSize int
	// Concurrency caps the expenses rolled in parallel.
	Concurrency int
	// MaxCatchUp caps the periods rolled for one expense in one sweep.
	MaxCatchUp int
}

func DefaultConfig() Config {
	return Config{
		Interval:    time.Minute,
		BatchSize:   100,
		Concurrency: 4,
		MaxCatchUp:  52,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaults.Concurrency
	}
	if c.MaxCatchUp <= 0 {
		c.MaxCatchUp = defaults.MaxCatchUp
	}
	return c
}
