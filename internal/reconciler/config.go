package reconciler

import "time"

// Config controls the poll loop. Lookback bounds how far back a sweep
// re-verifies unresolved transactions; anything older is left for manual
// review.
type Config struct {
	Interval  time.Duration
	Lookback  time.Duration
	BatchSize int
	LockTTL   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:  time.Minute,
		Lookback:  2 * time.Hour,
		BatchSize: 50,
		LockTTL:   time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.Lookback <= 0 {
		c.Lookback = defaults.Lookback
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
