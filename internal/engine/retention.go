package engine

import (
	"context"
	"fmt"

	"github.com/dmaganga/majisync/internal/store"
)

// enforceRetention trims the cache down to the configured number of billing
// cycles, newest target date first. A cycle that still carries unsynced
// local work (LOCAL_ONLY or CONFLICT readings) is protected from eviction
// until that work reaches the server, even when it falls outside the window.
func (e *Engine) enforceRetention(ctx context.Context, result *Result) error {
	if e.retain <= 0 {
		return nil
	}

	err := e.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		candidates, err := r.Cycles.TrimCandidates(ctx, e.retain)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}

		protected, err := r.Readings.PendingCycleIDs(ctx)
		if err != nil {
			return err
		}

		for _, id := range candidates {
			if protected[id] {
				e.log.Warn(ctx, "retention skipping cycle with unsynced readings", "cycle_id", id)
				continue
			}
			if err := r.Conflicts.DeleteByCycle(ctx, id); err != nil {
				return err
			}
			if err := r.Readings.DeleteByCycle(ctx, id); err != nil {
				return err
			}
			if err := r.Cycles.Delete(ctx, id); err != nil {
				return err
			}
			result.Trimmed++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("retention trim: %w", err)
	}

	if result.Trimmed > 0 {
		e.log.Info(ctx, "old cycles trimmed", "count", result.Trimmed, "retained", e.retain)
	}
	return nil
}
