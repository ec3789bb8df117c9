// Package services holds the use-case layer between the CLI and the storage
// and sync machinery: field capture of meter readings and operator conflict
// resolution.
package services

import (
	"context"
	"encoding/json"
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
	ErrAssignmentNotFound = errors.New("assignment not found in local cache")
	ErrAssignmentInactive = errors.New("assignment is no longer active")
	ErrCycleNotFound      = errors.New("cycle not found in local cache")
	ErrCycleNotOpen       = errors.New("cycle does not accept readings")
	ErrValueOutOfRange    = errors.New("reading value out of meter range")
	ErrCaptureExists      = errors.New("a pending reading already exists for this assignment and cycle")
)

// CaptureService records field readings. Capture is fully offline: it writes
// the reading and its outbox entry in one transaction and never touches the
// network.
type CaptureService struct {
	store      *store.Store
	log        logging.Logger
	deviceID   string
	appVersion string
	maxValue   models.Volume
}

// NewCaptureService wires a capture service. maxValue bounds accepted reading
// values; zero falls back to the register limit.
func NewCaptureService(st *store.Store, deviceID, appVersion string, maxValue models.Volume, log logging.Logger) *CaptureService {
	if maxValue <= 0 {
		maxValue = models.MaxMeterVolume
	}
	return &CaptureService{store: st, log: log, deviceID: deviceID, appVersion: appVersion, maxValue: maxValue}
}

// CaptureInput is one meter reading as entered in the field.
type CaptureInput struct {
	AssignmentID int64
	CycleID      int64
	Value        models.Volume
	SubmittedBy  string
	Notes        string
}

// Capture validates input against the cached reference data and persists the
// reading as LOCAL_ONLY together with its queue entry. Validation reads the
// cache only, so a stale cache can accept a reading the server will later
// reject; that verdict comes back through the sync pass.
func (s *CaptureService) Capture(ctx context.Context, in CaptureInput) (*models.Reading, error) {
	if in.Value <= 0 || in.Value > s.maxValue {
		return nil, fmt.Errorf("%w: %s", ErrValueOutOfRange, in.Value)
	}

	r := s.store.Repos()
	assignment, err := r.Assignments.GetByID(ctx, in.AssignmentID)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, fmt.Errorf("%w: id %d", ErrAssignmentNotFound, in.AssignmentID)
	}
	if assignment.Status != models.AssignmentActive {
		return nil, fmt.Errorf("%w: id %d", ErrAssignmentInactive, in.AssignmentID)
	}

	cycle, err := r.Cycles.GetByID(ctx, in.CycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, fmt.Errorf("%w: id %d", ErrCycleNotFound, in.CycleID)
	}
	if !cycle.AcceptsReadings() {
		return nil, fmt.Errorf("%w: cycle %d is %s", ErrCycleNotOpen, in.CycleID, cycle.Status)
	}

	if pending, err := r.Readings.FindPending(ctx, in.AssignmentID, in.CycleID); err != nil {
		return nil, err
	} else if pending != nil {
		return nil, fmt.Errorf("%w: local id %s", ErrCaptureExists, pending.LocalID)
	}

	now := time.Now()
	reading := &models.Reading{
		LocalID:      uuid.NewString(),
		AssignmentID: in.AssignmentID,
		CycleID:      in.CycleID,
		Value:        in.Value,
		SubmittedAt:  now,
		SubmittedBy:  in.SubmittedBy,
		Notes:        in.Notes,
		Origin:       models.OriginLocalCapture,
		Status:       models.ReadingLocalOnly,
		UpdatedAt:    now,
	}

	payload, err := s.submissionPayload(reading, assignment.Baseline, nil)
	if err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		if err := r.Readings.InsertLocal(ctx, reading); err != nil {
			return err
		}
		_, err := r.Queue.Enqueue(ctx, &models.QueueEntry{
			EntityType: models.EntityReading,
			EntityID:   reading.LocalID,
			Operation:  models.OpCreate,
			Payload:    payload,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}

	s.log.Info(ctx, "reading captured",
		"local_id", reading.LocalID,
		"assignment_id", in.AssignmentID,
		"cycle_id", in.CycleID,
		"value", in.Value.String())
	return reading, nil
}

// submissionPayload builds the wire form stored in the outbox. It is frozen
// at capture time so what was entered in the field is exactly what the
// server eventually sees.
func (s *CaptureService) submissionPayload(reading *models.Reading, baseline *models.Volume, conflictID *int64) ([]byte, error) {
	sub := gateway.ReadingSubmission{
		AssignmentID:     reading.AssignmentID,
		CycleID:          reading.CycleID,
		Value:            reading.Value,
		SubmittedBy:      reading.SubmittedBy,
		SubmittedAt:      reading.SubmittedAt,
		Source:           "FIELD_MOBILE",
		DeviceID:         s.deviceID,
		AppVersion:       s.appVersion,
		Notes:            reading.Notes,
		PreviousApproved: baseline,
		ConflictID:       conflictID,
	}
	return json.Marshal(sub)
}
