package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmaganga/majisync/internal/gateway"
	"github.com/dmaganga/majisync/internal/logging"
	"github.com/dmaganga/majisync/internal/models"
	"github.com/dmaganga/majisync/internal/store"
)

var (
	ErrConflictNotFound = errors.New("conflict not found")
	ErrConflictResolved = errors.New("conflict already resolved")
)

// ConflictService lists and resolves divergences surfaced by sync. Resolution
// is strictly operator-driven; the sync engine only creates conflicts.
type ConflictService struct {
	store   *store.Store
	gw      gateway.Gateway
	capture *CaptureService
	log     logging.Logger
}

func NewConflictService(st *store.Store, gw gateway.Gateway, capture *CaptureService, log logging.Logger) *ConflictService {
	return &ConflictService{store: st, gw: gw, capture: capture, log: log}
}

// List returns conflicts, optionally filtered by resolved state (nil = all).
func (s *ConflictService) List(ctx context.Context, resolved *bool) ([]models.Conflict, error) {
	return s.store.Repos().Conflicts.List(ctx, resolved)
}

// AcceptServer resolves a conflict by adopting the server value: the local
// reading takes the server value with ACCEPTED status and, when known, the
// server reading's id, its queue entry is discarded, and the conflict is
// closed. The resolution is acknowledged upstream on a best-effort basis; a
// failed acknowledgment never reopens the local resolution.
func (s *ConflictService) AcceptServer(ctx context.Context, conflictID int64, note string) error {
	c, err := s.get(ctx, conflictID)
	if err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		if err := r.Readings.SetValueAndStatus(ctx, c.ReadingLocalID, c.ServerValue, models.ReadingAccepted); err != nil {
			return err
		}
		if c.ServerReadingID != nil {
			if err := r.Readings.ConfirmServer(ctx, c.ReadingLocalID, *c.ServerReadingID, models.ReadingAccepted); err != nil {
				return err
			}
		}
		if err := r.Queue.DeleteByEntity(ctx, models.EntityReading, c.ReadingLocalID); err != nil {
			return err
		}
		return r.Conflicts.Resolve(ctx, conflictID, note)
	})
	if err != nil {
		return fmt.Errorf("accept server value: %w", err)
	}

	s.acknowledge(ctx, c, gateway.ResolutionAcceptServer)
	s.log.Info(ctx, "conflict resolved with server value",
		"conflict_id", conflictID, "value", c.ServerValue.String())
	return nil
}

// Resubmit resolves a conflict by insisting on a value: a fresh LOCAL_ONLY
// reading replaces the conflicted one and is queued for upload carrying a
// reference to the contested server reading, so the server can link the
// override to the dispute it settles.
func (s *ConflictService) Resubmit(ctx context.Context, conflictID int64, value models.Volume, submittedBy, note string) error {
	if value <= 0 || value > s.capture.maxValue {
		return fmt.Errorf("%w: %s", ErrValueOutOfRange, value)
	}
	c, err := s.get(ctx, conflictID)
	if err != nil {
		return err
	}

	old, err := s.store.Repos().Readings.GetByLocalID(ctx, c.ReadingLocalID)
	if err != nil {
		return fmt.Errorf("conflicted reading: %w", err)
	}

	now := time.Now()
	reading := &models.Reading{
		LocalID:      uuid.NewString(),
		AssignmentID: c.AssignmentID,
		CycleID:      c.CycleID,
		Value:        value,
		SubmittedAt:  now,
		SubmittedBy:  submittedBy,
		Notes:        note,
		Origin:       models.OriginLocalCapture,
		Status:       models.ReadingLocalOnly,
		UpdatedAt:    now,
	}
	payload, err := s.capture.submissionPayload(reading, nil, c.ServerReadingID)
	if err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		// The conflicted reading and its stale queue entry make way for
		// the resubmission; the pair keeps a single pending reading.
		if err := r.Queue.DeleteByEntity(ctx, models.EntityReading, old.LocalID); err != nil {
			return err
		}
		if err := r.Readings.SetValueAndStatus(ctx, old.LocalID, old.Value, models.ReadingRejected); err != nil {
			return err
		}
		if err := r.Readings.InsertLocal(ctx, reading); err != nil {
			return err
		}
		if _, err := r.Queue.Enqueue(ctx, &models.QueueEntry{
			EntityType: models.EntityReading,
			EntityID:   reading.LocalID,
			Operation:  models.OpCreate,
			Payload:    payload,
		}); err != nil {
			return err
		}
		return r.Conflicts.Resolve(ctx, conflictID, note)
	})
	if err != nil {
		return fmt.Errorf("resubmit: %w", err)
	}

	s.acknowledge(ctx, c, gateway.ResolutionResubmit)
	s.log.Info(ctx, "conflict resolved with resubmission",
		"conflict_id", conflictID, "new_local_id", reading.LocalID, "value", value.String())
	return nil
}

func (s *ConflictService) get(ctx context.Context, id int64) (*models.Conflict, error) {
	c, err := s.store.Repos().Conflicts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: id %d", ErrConflictNotFound, id)
	}
	if c.Resolved {
		return nil, fmt.Errorf("%w: id %d", ErrConflictResolved, id)
	}
	return c, nil
}

func (s *ConflictService) acknowledge(ctx context.Context, c *models.Conflict, action gateway.ResolutionAction) {
	if c.ServerReadingID == nil {
		return
	}
	if err := s.gw.AcknowledgeResolution(ctx, *c.ServerReadingID, action); err != nil {
		s.log.Warn(ctx, "resolution acknowledgment not delivered",
			"server_reading_id", *c.ServerReadingID, "error", err)
	}
}
