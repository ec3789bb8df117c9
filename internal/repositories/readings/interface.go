package readings

import (
	"context"

	"github.com/dmaganga/majisync/internal/models"
)

// Repository stores meter readings, both field-captured and server-synced.
//
// Rows are keyed by a device-generated LocalID. Server-synced rows also carry
// the authoritative server id (unique when present); a locally captured row
// gains its server id atomically via ConfirmServer once the server
// acknowledges the upload.
type Repository interface {
	// InsertLocal adds a freshly captured LOCAL_ONLY reading.
	InsertLocal(ctx context.Context, reading *models.Reading) error

	// UpsertServer replaces a server-origin row by server id; idempotent.
	UpsertServer(ctx context.Context, reading *models.Reading) error

	GetByLocalID(ctx context.Context, localID string) (*models.Reading, error)
	GetByServerID(ctx context.Context, serverID int64) (*models.Reading, error)

	// FindPending returns the reading in LOCAL_ONLY or CONFLICT status for
	// the (assignment, cycle) pair, or nil. At most one such row exists
	// per pair on the active path.
	FindPending(ctx context.Context, assignmentID, cycleID int64) (*models.Reading, error)

	// SetStatus updates only the status of a reading.
	SetStatus(ctx context.Context, localID string, status models.ReadingStatus) error

	// SetValueAndStatus overwrites value and status together; used when an
	// operator accepts the server value during conflict resolution.
	SetValueAndStatus(ctx context.Context, localID string, value models.Volume, status models.ReadingStatus) error

	// ConfirmServer substitutes the server-assigned id for the local
	// placeholder and advances the status in a single statement.
	ConfirmServer(ctx context.Context, localID string, serverID int64, status models.ReadingStatus) error

	CountByStatus(ctx context.Context, status models.ReadingStatus) (int, error)

	// PendingCycleIDs returns ids of cycles holding at least one reading
	// in LOCAL_ONLY or CONFLICT status; those cycles are protected from
	// retention trimming.
	PendingCycleIDs(ctx context.Context) (map[int64]bool, error)

	// DeleteByCycle removes all readings of a trimmed cycle.
	DeleteByCycle(ctx context.Context, cycleID int64) error

	// ClearSynced removes server-origin rows; bootstrap repopulation keeps
	// locally captured work untouched.
	ClearSynced(ctx context.Context) error
}
