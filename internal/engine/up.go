package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmaganga/majisync/internal/gateway"
	"github.com/dmaganga/majisync/internal/models"
	"github.com/dmaganga/majisync/internal/store"
)

// syncUp drains the outbox oldest-first. Per-item server verdicts
// (validation failure, conflict) finalize that entry and the loop moves on;
// a transport failure bumps the attempt counter and halts the whole pass,
// because nothing later in the queue will fare better against a dead link.
func (e *Engine) syncUp(ctx context.Context, result *Result) error {
	entries, err := e.store.Repos().Queue.List(ctx)
	if err != nil {
		return fmt.Errorf("queue read: %w", err)
	}
	for i := range entries {
		if _, err := e.processEntry(ctx, &entries[i], result); err != nil {
			return err
		}
	}
	return nil
}

// processEntry pushes one outbox entry to the server. It reports done=false
// when the entry was intentionally left untouched (a conflicted capture
// waiting on an operator).
func (e *Engine) processEntry(ctx context.Context, entry *models.QueueEntry, result *Result) (bool, error) {
	if entry.EntityType != models.EntityReading {
		e.log.Warn(ctx, "discarding outbox entry of unknown type",
			"entry_id", entry.ID, "entity_type", entry.EntityType)
		return true, e.store.Repos().Queue.Delete(ctx, entry.ID)
	}

	reading, err := e.store.Repos().Readings.GetByLocalID(ctx, entry.EntityID)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", entry.EntityID, err)
	}
	if reading.Status == models.ReadingConflict {
		// Conflicted captures stay queued but inert until resolved.
		return false, nil
	}

	var sub gateway.ReadingSubmission
	if err := json.Unmarshal(entry.Payload, &sub); err != nil {
		e.log.Error(ctx, "discarding outbox entry with undecodable payload",
			"entry_id", entry.ID, "error", err)
		return true, e.store.Repos().Queue.Delete(ctx, entry.ID)
	}

	ack, err := e.gw.SubmitReading(ctx, sub)
	switch {
	case err == nil:
		err = e.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
			if err := r.Readings.ConfirmServer(ctx, entry.EntityID, ack.ServerID, ack.Status); err != nil {
				return err
			}
			return r.Queue.Delete(ctx, entry.ID)
		})
		if err != nil {
			return false, fmt.Errorf("upload confirm: %w", err)
		}
		result.Uploaded++
		e.log.Debug(ctx, "reading accepted by server",
			"local_id", entry.EntityID, "server_id", ack.ServerID)
		return true, nil

	case isValidation(err):
		var verr *gateway.ValidationError
		errors.As(err, &verr)
		err = e.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
			if err := r.Readings.SetStatus(ctx, entry.EntityID, models.ReadingRejected); err != nil {
				return err
			}
			return r.Queue.Delete(ctx, entry.ID)
		})
		if err != nil {
			return false, fmt.Errorf("rejection apply: %w", err)
		}
		e.log.Warn(ctx, "reading rejected by server",
			"local_id", entry.EntityID, "reason", verr.Reason)
		return true, nil

	case isConflict(err):
		var cerr *gateway.ConflictError
		errors.As(err, &cerr)
		err = e.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
			c := &models.Conflict{
				AssignmentID:   sub.AssignmentID,
				CycleID:        sub.CycleID,
				ReadingLocalID: entry.EntityID,
				LocalValue:     sub.Value,
				Reason:         cerr.Reason,
				CreatedAt:      time.Now(),
			}
			if sr := cerr.ServerReading; sr != nil {
				c.ServerValue = sr.Value
				if sr.ServerID.Valid {
					c.ServerReadingID = &sr.ServerID.Int64
				}
			}
			if _, err := r.Conflicts.Record(ctx, c); err != nil {
				return err
			}
			if err := r.Readings.SetStatus(ctx, entry.EntityID, models.ReadingConflict); err != nil {
				return err
			}
			return r.Queue.MarkAttempt(ctx, entry.ID)
		})
		if err != nil {
			return false, fmt.Errorf("conflict apply: %w", err)
		}
		result.Conflicts++
		e.log.Warn(ctx, "upload conflict recorded",
			"local_id", entry.EntityID, "reason", cerr.Reason)
		return true, nil

	default:
		// Transport or server outage: the entry stays queued for the
		// next pass with its attempt count bumped so a poison entry
		// cannot starve newer captures.
		if merr := e.store.Repos().Queue.MarkAttempt(ctx, entry.ID); merr != nil {
			e.log.Error(ctx, "attempt bump failed", "entry_id", entry.ID, "error", merr)
		}
		return false, fmt.Errorf("submit reading %s: %w", entry.EntityID, err)
	}
}

func isValidation(err error) bool {
	var verr *gateway.ValidationError
	return errors.As(err, &verr)
}

func isConflict(err error) bool {
	var cerr *gateway.ConflictError
	return errors.As(err, &cerr)
}
