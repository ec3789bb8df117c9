// Package gateway is the boundary abstraction over the billing server's
// mobile API: full snapshot fetch, incremental delta fetch, reading
// submission, and conflict-resolution acknowledgment.
package gateway

import (
	"context"
	"time"

	"github.com/dmaganga/majisync/internal/models"
)

// Snapshot is the full bootstrap payload: reference data and approved
// readings for the retained cycle window, plus the server checkpoint.
type Snapshot struct {
	Clients     []models.Client
	Meters      []models.Meter
	Assignments []models.Assignment
	Cycles      []models.Cycle
	Readings    []models.Reading
	Checkpoint  time.Time
}

// Delta is the incremental payload: entities changed since the checkpoint,
// plus tombstones for closed/archived cycles and deactivated assignments.
type Delta struct {
	Clients     []models.Client
	Meters      []models.Meter
	Assignments []models.Assignment
	Cycles      []models.Cycle
	Readings    []models.Reading
	Tombstones  []Tombstone
	Checkpoint  time.Time
}

// Tombstone signals a server-side deletion/closure. It is applied locally as
// a status change, never as a row delete.
type Tombstone struct {
	EntityType string    `json:"entity_type"` // "cycle" or "assignment"
	EntityID   int64     `json:"entity_id"`
	Action     string    `json:"action"` // CLOSED, ARCHIVED, DEACTIVATED
	Timestamp  time.Time `json:"timestamp"`
}

// ReadingSubmission is one queued field capture on its way to the server.
type ReadingSubmission struct {
	AssignmentID     int64          `json:"meter_assignment_id"`
	CycleID          int64          `json:"cycle_id"`
	Value            models.Volume  `json:"absolute_value"`
	SubmittedBy      string         `json:"submitted_by"`
	SubmittedAt      time.Time      `json:"submitted_at"`
	Source           string         `json:"source"`
	DeviceID         string         `json:"device_id,omitempty"`
	AppVersion       string         `json:"app_version,omitempty"`
	Notes            string         `json:"submission_notes,omitempty"`
	PreviousApproved *models.Volume `json:"previous_approved_reading,omitempty"`
	// ConflictID links a resubmission back to the dispute it settles; the
	// server reading that conflicted is the reference.
	ConflictID *int64 `json:"conflict_id,omitempty"`
}

// ReadingAck is the server's acceptance of a submission.
type ReadingAck struct {
	ServerID int64
	Status   models.ReadingStatus
}

// ResolutionAction is the operator's decision on a conflict, in the wire
// form the server's resolve endpoint accepts.
type ResolutionAction string

const (
	ResolutionAcceptServer ResolutionAction = "accept_server"
	ResolutionResubmit     ResolutionAction = "resubmit"
)

// Gateway is the network boundary of the sync engine. All calls block, honor
// ctx cancellation, and carry a bounded timeout; a timeout surfaces as
// ErrUnavailable, never as an implicit conflict.
type Gateway interface {
	// FetchSnapshot retrieves the full bootstrap payload.
	FetchSnapshot(ctx context.Context) (*Snapshot, error)

	// FetchUpdates retrieves changes since the given checkpoint.
	FetchUpdates(ctx context.Context, since time.Time) (*Delta, error)

	// SubmitReading uploads one captured reading. Besides transport
	// errors it returns *ValidationError or *ConflictError for per-item
	// outcomes.
	SubmitReading(ctx context.Context, sub ReadingSubmission) (*ReadingAck, error)

	// AcknowledgeResolution reports an operator's conflict resolution to
	// the server, keyed by the contested server reading. Best-effort on
	// the caller's side; the server treats it as informational.
	AcknowledgeResolution(ctx context.Context, serverReadingID int64, action ResolutionAction) error

	// Ping probes connectivity; used by the scheduler's gate.
	Ping(ctx context.Context) error
}
