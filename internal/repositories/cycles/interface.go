package cycles

import (
	"context"

	"github.com/dmaganga/majisync/internal/models"
)

// Repository stores billing cycles, the backbone of the retention window.
type Repository interface {
	UpsertMany(ctx context.Context, items []models.Cycle) error
	GetByID(ctx context.Context, id int64) (*models.Cycle, error)

	// List returns all cached cycles, most recent target date first.
	List(ctx context.Context) ([]models.Cycle, error)

	// SetStatus applies a cycle tombstone (CLOSED/ARCHIVED) as a status
	// update; the row itself is preserved.
	SetStatus(ctx context.Context, id int64, status models.CycleStatus) error

	// TrimCandidates returns ids of cycles falling outside the most
	// recent keep cycles by target date, oldest first.
	TrimCandidates(ctx context.Context, keep int) ([]int64, error)

	// Delete removes a single cycle row. Cascading deletes of dependent
	// readings and conflicts are the engine's responsibility so they
	// happen in the same transaction.
	Delete(ctx context.Context, id int64) error

	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}
