package clients

import (
	"context"

	"github.com/dmaganga/majisync/internal/models"
)

// Repository stores server-owned client reference data in the local cache.
type Repository interface {
	// UpsertMany replaces rows by server id; idempotent.
	UpsertMany(ctx context.Context, items []models.Client) error

	// GetByID returns a client by server id, or nil when absent.
	GetByID(ctx context.Context, id int64) (*models.Client, error)

	// Clear empties the table; used by bootstrap repopulation.
	Clear(ctx context.Context) error
}
