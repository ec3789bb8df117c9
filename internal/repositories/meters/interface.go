package meters

import (
	"context"

	"github.com/dmaganga/majisync/internal/models"
)

// Repository stores server-owned meter reference data in the local cache.
type Repository interface {
	UpsertMany(ctx context.Context, items []models.Meter) error
	GetByID(ctx context.Context, id int64) (*models.Meter, error)
	Clear(ctx context.Context) error
}
