package guardian

import (
	"time"

	"github.com/deadlineshield/guardian/guardian/internal/fetch"
	"github.com/deadlineshield/guardian/guardian/internal/scheduler"
)

// Config configures the guardian service.
type Config struct {
	// Fetch settings
	Fetch fetch.Config

	// Scheduler settings
	Scheduler scheduler.Config

	// LockTTL bounds how long one pipeline execution may hold a source.
	LockTTL time.Duration
}

func (c *Config) defaults() {
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 10 * 1024 * 1024
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "guardian-monitor/1.0"
	}
	if c.Scheduler.Interval <= 0 {
		c.Scheduler.Interval = time.Minute
	}
	if c.Scheduler.Concurrency <= 0 {
		c.Scheduler.Concurrency = 8
	}
	if c.Scheduler.BatchSize <= 0 {
		c.Scheduler.BatchSize = 50
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 5 * time.Minute
	}
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}
