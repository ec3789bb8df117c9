package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmaganga/majisync/internal/gateway"
	"github.com/dmaganga/majisync/internal/models"
	"github.com/dmaganga/majisync/internal/repositories/metadata"
	"github.com/dmaganga/majisync/internal/store"
)

// bootstrap fetches a full snapshot and replaces the synced contents of the
// cache. Locally captured work (LOCAL_ONLY/CONFLICT readings, queue entries)
// is preserved. The checkpoint advances only after the whole repopulation
// commits, so a failed attempt leaves the client in the re-bootstrap state.
func (e *Engine) bootstrap(ctx context.Context, result *Result) error {
	snap, err := e.gw.FetchSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot fetch: %w", err)
	}

	err = e.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		if err := r.Readings.ClearSynced(ctx); err != nil {
			return err
		}
		if err := r.Clients.Clear(ctx); err != nil {
			return err
		}
		if err := r.Meters.Clear(ctx); err != nil {
			return err
		}
		if err := r.Assignments.Clear(ctx); err != nil {
			return err
		}
		if err := r.Cycles.Clear(ctx); err != nil {
			return err
		}

		if err := upsertBatch(ctx, r, snap.Clients, snap.Meters, snap.Assignments, snap.Cycles); err != nil {
			return err
		}
		n, c, err := e.applyServerReadings(ctx, r, snap.Readings)
		if err != nil {
			return err
		}
		result.Downloaded += len(snap.Clients) + len(snap.Meters) +
			len(snap.Assignments) + len(snap.Cycles) + n
		result.Conflicts += c

		return r.Metadata.SetTime(ctx, metadata.KeyLastSyncCheckpoint, snap.Checkpoint)
	})
	if err != nil {
		return fmt.Errorf("snapshot apply: %w", err)
	}

	result.Checkpoint = snap.Checkpoint
	e.log.Info(ctx, "bootstrap complete",
		"cycles", len(snap.Cycles),
		"assignments", len(snap.Assignments),
		"readings", len(snap.Readings),
		"checkpoint", snap.Checkpoint)

	return e.enforceRetention(ctx, result)
}

// syncDown applies incremental changes since the stored checkpoint, falling
// back to bootstrap when none exists. The batch is applied atomically:
// upserts in dependency order, then tombstones, then the checkpoint advance.
func (e *Engine) syncDown(ctx context.Context, result *Result) error {
	since, err := e.checkpoint(ctx)
	if err != nil {
		return err
	}
	if since.IsZero() {
		return e.bootstrap(ctx, result)
	}

	delta, err := e.gw.FetchUpdates(ctx, since)
	if err != nil {
		return fmt.Errorf("delta fetch: %w", err)
	}

	err = e.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		if err := upsertBatch(ctx, r, delta.Clients, delta.Meters, delta.Assignments, delta.Cycles); err != nil {
			return err
		}
		n, c, err := e.applyServerReadings(ctx, r, delta.Readings)
		if err != nil {
			return err
		}
		result.Downloaded += len(delta.Clients) + len(delta.Meters) +
			len(delta.Assignments) + len(delta.Cycles) + n
		result.Conflicts += c

		if err := e.applyTombstones(ctx, r, delta.Tombstones); err != nil {
			return err
		}
		return r.Metadata.SetTime(ctx, metadata.KeyLastSyncCheckpoint, delta.Checkpoint)
	})
	if err != nil {
		return fmt.Errorf("delta apply: %w", err)
	}

	result.Checkpoint = delta.Checkpoint
	return e.enforceRetention(ctx, result)
}

// applyServerReadings upserts incoming SERVER_SYNC readings under the
// server-wins merge rule. The carve-out: while the local reading for the same
// (assignment, cycle) pair is LOCAL_ONLY or CONFLICT, the incoming record is
// held back and a Conflict is raised instead, so in-flight field work is
// never overwritten without operator visibility. An incoming value identical
// to the pending one is treated as the server acknowledging that very
// capture: the local row is confirmed rather than conflicted.
func (e *Engine) applyServerReadings(ctx context.Context, r *store.Repos, incoming []models.Reading) (applied, conflicts int, err error) {
	for i := range incoming {
		in := incoming[i]

		pending, err := r.Readings.FindPending(ctx, in.AssignmentID, in.CycleID)
		if err != nil {
			return applied, conflicts, err
		}

		switch {
		case pending == nil:
			if err := r.Readings.UpsertServer(ctx, &in); err != nil {
				return applied, conflicts, err
			}
			applied++

		case pending.Value == in.Value:
			if err := r.Readings.ConfirmServer(ctx, pending.LocalID, in.ServerID.Int64, in.Status); err != nil {
				return applied, conflicts, err
			}
			if err := r.Queue.DeleteByEntity(ctx, models.EntityReading, pending.LocalID); err != nil {
				return applied, conflicts, err
			}
			applied++

		default:
			c := &models.Conflict{
				AssignmentID:   in.AssignmentID,
				CycleID:        in.CycleID,
				ReadingLocalID: pending.LocalID,
				LocalValue:     pending.Value,
				ServerValue:    in.Value,
				Reason:         "server holds a different approved value",
				CreatedAt:      time.Now(),
			}
			if in.ServerID.Valid {
				c.ServerReadingID = &in.ServerID.Int64
			}
			if _, err := r.Conflicts.Record(ctx, c); err != nil {
				return applied, conflicts, err
			}
			if pending.Status != models.ReadingConflict {
				if err := r.Readings.SetStatus(ctx, pending.LocalID, models.ReadingConflict); err != nil {
					return applied, conflicts, err
				}
			}
			conflicts++
			e.log.Warn(ctx, "download conflict recorded",
				"assignment_id", in.AssignmentID,
				"cycle_id", in.CycleID,
				"local_value", pending.Value,
				"server_value", in.Value)
		}
	}
	return applied, conflicts, nil
}

// applyTombstones maps deletion/closure markers onto status updates. Rows are
// never deleted: readings and cycles are financially relevant history.
func (e *Engine) applyTombstones(ctx context.Context, r *store.Repos, tombstones []gateway.Tombstone) error {
	for _, t := range tombstones {
		switch strings.ToLower(t.EntityType) {
		case "cycle":
			status := models.CycleStatus(t.Action)
			if status != models.CycleClosed && status != models.CycleArchived {
				e.log.Warn(ctx, "ignoring cycle tombstone with unknown action",
					"cycle_id", t.EntityID, "action", t.Action)
				continue
			}
			if err := r.Cycles.SetStatus(ctx, t.EntityID, status); err != nil {
				return err
			}

		case "assignment":
			if err := r.Assignments.Deactivate(ctx, t.EntityID); err != nil {
				return err
			}

		default:
			e.log.Warn(ctx, "ignoring tombstone for unknown entity type",
				"entity_type", t.EntityType, "entity_id", t.EntityID)
		}
	}
	return nil
}
