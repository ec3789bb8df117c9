package assignments

import (
	"context"

	"github.com/dmaganga/majisync/internal/models"
)

// Repository stores meter assignments, the server-owned binding of a meter
// to a client. The capture path reads them; sync writes them.
type Repository interface {
	UpsertMany(ctx context.Context, items []models.Assignment) error
	GetByID(ctx context.Context, id int64) (*models.Assignment, error)

	// ListActive returns ACTIVE assignments ordered by id, for the
	// collector's worklist.
	ListActive(ctx context.Context) ([]models.Assignment, error)

	// Deactivate applies a DEACTIVATED tombstone: the row is kept, only
	// its status flips to INACTIVE.
	Deactivate(ctx context.Context, id int64) error

	Clear(ctx context.Context) error
}
