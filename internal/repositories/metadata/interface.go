package metadata

import (
	"context"
	"time"
)

// Keys used in the metadata table.
const (
	// KeyLastSyncCheckpoint holds the server timestamp up to which
	// incremental sync has progressed.
	KeyLastSyncCheckpoint = "last_sync_checkpoint"
)

// Repository is the small key/value area for sync bookkeeping. The schema
// version itself lives in goose's version table, not here.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// GetTime and SetTime are convenience wrappers for timestamp values
	// such as the sync checkpoint. GetTime returns the zero time when the
	// key is absent.
	GetTime(ctx context.Context, key string) (time.Time, error)
	SetTime(ctx context.Context, key string, t time.Time) error
}
