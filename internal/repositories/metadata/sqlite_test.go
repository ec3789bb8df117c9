package metadata

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE metadata (
  key TEXT PRIMARY KEY,
  value BLOB
);`)
	require.NoError(t, err)
	return db
}

func TestSetAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("v1")))
	require.NoError(t, r.Set(ctx, "k", []byte("v2")))

	v, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v)
}

func TestGet_MissingReturnsNilNil(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	v, err := r.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestGetTime_MissingReturnsZeroTime(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	ts, err := r.GetTime(context.Background(), KeyLastSyncCheckpoint)
	require.NoError(t, err)
	assert.True(t, ts.IsZero())
}

func TestSetTime_RoundTripsWithNanosecondPrecision(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	want := time.Date(2025, time.June, 1, 10, 30, 0, 123456789, time.UTC)
	require.NoError(t, r.SetTime(ctx, KeyLastSyncCheckpoint, want))

	got, err := r.GetTime(ctx, KeyLastSyncCheckpoint)
	require.NoError(t, err)
	assert.True(t, got.Equal(want))
}

func TestDelete_IsIdempotent(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("v")))
	require.NoError(t, r.Delete(ctx, "k"))
	require.NoError(t, r.Delete(ctx, "k"))

	v, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)
}
