package engine

import (
	"context"
	"errors"
	"time"
)

// Scheduler runs full sync passes on a fixed interval for as long as its
// context lives. Passes that land while another caller holds the engine are
// dropped rather than queued.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
}

func NewScheduler(e *Engine, interval time.Duration) *Scheduler {
	return &Scheduler{engine: e, interval: interval}
}

// Run blocks until ctx is cancelled, attempting one pass immediately and
// then one per tick. Connectivity is probed first so an offline device does
// not burn a pass (and its retry backoff) on a dead link.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.pass(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

func (s *Scheduler) pass(ctx context.Context) {
	log := s.engine.log
	if err := s.engine.gw.Ping(ctx); err != nil {
		log.Debug(ctx, "server unreachable, skipping scheduled pass", "error", err)
		return
	}

	res, err := s.engine.SyncAll(ctx)
	switch {
	case errors.Is(err, ErrSyncInProgress):
		log.Debug(ctx, "sync already running, scheduled pass dropped")
	case err != nil:
		log.Error(ctx, "scheduled sync pass failed", "error", err)
	default:
		log.Info(ctx, "scheduled sync pass finished",
			"uploaded", res.Uploaded,
			"downloaded", res.Downloaded,
			"conflicts", res.Conflicts)
	}
}
