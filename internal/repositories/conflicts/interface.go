package conflicts

import (
	"context"

	"github.com/dmaganga/majisync/internal/models"
)

// Repository stores detected divergences between local and server values.
// Resolved conflicts are retained for audit history, never deleted by sync.
type Repository interface {
	// Record saves a detected conflict. While an unresolved conflict
	// exists for the same (assignment, cycle) pair the existing row is
	// updated in place instead of duplicated, so repeated detections
	// across sync passes stay idempotent. Returns the row id.
	Record(ctx context.Context, c *models.Conflict) (int64, error)

	GetByID(ctx context.Context, id int64) (*models.Conflict, error)

	// List returns conflicts, newest first. resolved=nil lists all,
	// otherwise filters on the resolved flag.
	List(ctx context.Context, resolved *bool) ([]models.Conflict, error)

	// Resolve marks the conflict resolved and stamps the resolution time.
	Resolve(ctx context.Context, id int64, note string) error

	CountUnresolved(ctx context.Context) (int, error)

	// DeleteByCycle removes conflicts of a trimmed cycle.
	DeleteByCycle(ctx context.Context, cycleID int64) error
}
