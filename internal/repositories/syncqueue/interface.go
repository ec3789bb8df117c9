package syncqueue

import (
	"context"

	"github.com/dmaganga/majisync/internal/models"
)

// Repository is the durable outbox of locally originated mutations.
//
// Ordering is oldest-created-first with a lowest-attempts-first tie-break:
// entries that have failed more are retried after fresher entries, so one
// poison entry cannot starve the rest of the queue. Entries are removed only
// on confirmed success or explicit discard.
type Repository interface {
	// Enqueue appends the entry with a fresh creation timestamp and zero
	// attempts, returning the assigned id.
	Enqueue(ctx context.Context, entry *models.QueueEntry) (int64, error)

	// DequeueNext returns the next entry by (attempts ASC, created_at
	// ASC), or nil when the queue is empty. The entry stays in the queue.
	DequeueNext(ctx context.Context) (*models.QueueEntry, error)

	// List returns all entries in dequeue order.
	List(ctx context.Context) ([]models.QueueEntry, error)

	// MarkAttempt increments the attempt counter and stamps the attempt
	// time without removing the entry.
	MarkAttempt(ctx context.Context, id int64) error

	// Delete removes an entry on confirmed terminal outcome.
	Delete(ctx context.Context, id int64) error

	// DeleteByEntity removes entries referencing a local entity id; used
	// when operator resolution supersedes a queued submission.
	DeleteByEntity(ctx context.Context, entityType, entityID string) error

	Count(ctx context.Context) (int, error)
}
