package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deadlineshield/guardian/guardian"
)

// duration accepts "30s" style strings in YAML; a bare integer is read as
// seconds.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = duration(time.Duration(n) * time.Second)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(v)
	return nil
}

// fileConfig is the YAML shape of the guardian config file.
type fileConfig struct {
	DBPath     string `yaml:"db_path"`
	ListenAddr string `yaml:"listen_addr"`

	// Cron is an optional cron spec for cycle triggering. When empty, the
	// built-in interval scheduler drives cycles instead.
	Cron string `yaml:"cron"`

	Fetch struct {
		Timeout   duration `yaml:"timeout"`
		MaxBytes  int64    `yaml:"max_bytes"`
		UserAgent string   `yaml:"user_agent"`
	} `yaml:"fetch"`

	Scheduler struct {
		Interval    duration `yaml:"interval"`
		Concurrency int      `yaml:"concurrency"`
		BatchSize   int      `yaml:"batch_size"`
	} `yaml:"scheduler"`

	LockTTL duration `yaml:"lock_ttl"`
}

func (c *fileConfig) defaults() {
	if c.DBPath == "" {
		c.DBPath = "guardian.db"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
}

// serviceConfig maps the file settings onto the service config; zero values
// fall through to the service defaults.
func (c *fileConfig) serviceConfig() *guardian.Config {
	cfg := &guardian.Config{LockTTL: time.Duration(c.LockTTL)}
	cfg.Fetch.Timeout = time.Duration(c.Fetch.Timeout)
	cfg.Fetch.MaxBytes = c.Fetch.MaxBytes
	cfg.Fetch.UserAgent = c.Fetch.UserAgent
	cfg.Scheduler.Interval = time.Duration(c.Scheduler.Interval)
	cfg.Scheduler.Concurrency = c.Scheduler.Concurrency
	cfg.Scheduler.BatchSize = c.Scheduler.BatchSize
	return cfg
}

func loadConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.defaults()
	return cfg, nil
}
