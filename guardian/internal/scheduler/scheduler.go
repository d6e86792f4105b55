// Package scheduler selects due, unpaused sources and dispatches one pipeline
// execution per source, bounded in concurrency.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/deadlineshield/guardian/guardian/internal/pipeline"
	"github.com/deadlineshield/guardian/guardian/internal/store"
)

// Config tunes one scheduler instance.
type Config struct {
	// Interval between ticker-driven cycles.
	Interval time.Duration
	// Concurrency bounds simultaneous pipeline executions.
	Concurrency int
	// BatchSize caps how many due sources one cycle picks up.
	BatchSize int
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
}

// CycleStats summarizes one cycle.
type CycleStats struct {
	Dispatched int `json:"dispatched"`
	Changed    int `json:"changed"`
	NoChange   int `json:"no_change"`
	Failed     int `json:"failed"`
	Blocked    int `json:"blocked"`
	Skipped    int `json:"skipped"`
}

// Scheduler is the periodic entry point of the engine.
type Scheduler struct {
	store    *store.Store
	pipeline *pipeline.Pipeline
	log      *slog.Logger
	cfg      Config
}

func New(st *store.Store, p *pipeline.Pipeline, log *slog.Logger, cfg Config) *Scheduler {
	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{store: st, pipeline: p, log: log, cfg: cfg}
}

// RunCycle picks up every due source and runs the pipeline over them with
// bounded concurrency. Per-source failures are recorded on the source and
// never abort the cycle.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleStats, error) {
	due, err := s.store.DueSources(ctx, s.cfg.BatchSize)
	if err != nil {
		return CycleStats{}, err
	}

	var (
		mu    sync.Mutex
		stats CycleStats
		wg    sync.WaitGroup
		sem   = make(chan struct{}, s.cfg.Concurrency)
	)
	stats.Dispatched = len(due)

	for _, src := range due {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return stats, ctx.Err()
		}
		wg.Add(1)
		go func(src *store.Source) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := s.pipeline.Execute(ctx, src)
			if err != nil {
				s.log.Error("pipeline execution failed",
					slog.String("source_id", src.ID), slog.Any("error", err))
			}

			mu.Lock()
			switch outcome {
			case pipeline.OutcomeChanged:
				stats.Changed++
			case pipeline.OutcomeNoChange:
				stats.NoChange++
			case pipeline.OutcomeBlocked:
				stats.Blocked++
			case pipeline.OutcomeSkipped:
				stats.Skipped++
			default:
				stats.Failed++
			}
			mu.Unlock()
		}(src)
	}
	wg.Wait()
	return stats, nil
}

// Run drives cycles on the configured interval until the context is
// cancelled. The first cycle runs immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		stats, err := s.RunCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error("cycle failed", slog.Any("error", err))
		} else if stats.Dispatched > 0 {
			s.log.Info("cycle complete",
				slog.Int("dispatched", stats.Dispatched),
				slog.Int("changed", stats.Changed),
				slog.Int("failed", stats.Failed))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
