package syncqueue

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/dmaganga/majisync/internal/models"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE sync_queue (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL DEFAULT '',
  operation TEXT NOT NULL,
  payload BLOB NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  last_attempt_at TEXT,
  created_at TEXT NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func enqueue(t *testing.T, r *SQLiteRepository, entityID string) *models.QueueEntry {
	t.Helper()
	e := &models.QueueEntry{
		EntityType: models.EntityReading,
		EntityID:   entityID,
		Operation:  models.OpCreate,
		Payload:    []byte(`{}`),
	}
	_, err := r.Enqueue(context.Background(), e)
	require.NoError(t, err)
	return e
}

func TestEnqueue_AssignsIDAndCreatedAt(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	e := enqueue(t, r, "r-1")
	assert.NotZero(t, e.ID)
	assert.False(t, e.CreatedAt.IsZero())

	n, err := r.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDequeueNext_EmptyReturnsNil(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	e, err := r.DequeueNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestDequeueNext_OldestFirst(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	first := enqueue(t, r, "r-1")
	enqueue(t, r, "r-2")

	got, err := r.DequeueNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "r-1", got.EntityID)
}

func TestList_FailedEntryFallsBehindFreshOnes(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	e1 := enqueue(t, r, "r-1")
	e2 := enqueue(t, r, "r-2")
	e3 := enqueue(t, r, "r-3")

	// Two failed attempts push e2 behind everything still untried.
	require.NoError(t, r.MarkAttempt(ctx, e2.ID))
	require.NoError(t, r.MarkAttempt(ctx, e2.ID))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, e1.ID, list[0].ID)
	assert.Equal(t, e3.ID, list[1].ID)
	assert.Equal(t, e2.ID, list[2].ID)
	assert.Equal(t, 2, list[2].Attempts)
	assert.NotNil(t, list[2].LastAttemptAt)
}

func TestDelete_RemovesEntry(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	e := enqueue(t, r, "r-1")
	require.NoError(t, r.Delete(ctx, e.ID))

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Deleting a missing entry is a no-op.
	require.NoError(t, r.Delete(ctx, e.ID))
}

func TestDeleteByEntity_RemovesAllEntriesOfReading(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	enqueue(t, r, "r-1")
	enqueue(t, r, "r-1")
	keep := enqueue(t, r, "r-2")

	require.NoError(t, r.DeleteByEntity(ctx, models.EntityReading, "r-1"))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, keep.ID, list[0].ID)
}
