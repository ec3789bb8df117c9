package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmaganga/majisync/internal/gateway"
	"github.com/dmaganga/majisync/internal/logging"
	"github.com/dmaganga/majisync/internal/models"
	"github.com/dmaganga/majisync/internal/repositories/metadata"
	"github.com/dmaganga/majisync/internal/store"
)

// fakeGateway implements gateway.Gateway with overridable functions so each
// test scripts exactly the server behavior it needs.
type fakeGateway struct {
	fetchSnapshot func(ctx context.Context) (*gateway.Snapshot, error)
	fetchUpdates  func(ctx context.Context, since time.Time) (*gateway.Delta, error)
	submitReading func(ctx context.Context, sub gateway.ReadingSubmission) (*gateway.ReadingAck, error)
	submissions   []gateway.ReadingSubmission
}

func (f *fakeGateway) FetchSnapshot(ctx context.Context) (*gateway.Snapshot, error) {
	if f.fetchSnapshot == nil {
		return nil, errors.New("unexpected FetchSnapshot call")
	}
	return f.fetchSnapshot(ctx)
}

func (f *fakeGateway) FetchUpdates(ctx context.Context, since time.Time) (*gateway.Delta, error) {
	if f.fetchUpdates == nil {
		return nil, errors.New("unexpected FetchUpdates call")
	}
	return f.fetchUpdates(ctx, since)
}

func (f *fakeGateway) SubmitReading(ctx context.Context, sub gateway.ReadingSubmission) (*gateway.ReadingAck, error) {
	f.submissions = append(f.submissions, sub)
	if f.submitReading == nil {
		return nil, errors.New("unexpected SubmitReading call")
	}
	return f.submitReading(ctx, sub)
}

func (f *fakeGateway) AcknowledgeResolution(context.Context, int64, gateway.ResolutionAction) error {
	return nil
}

func (f *fakeGateway) Ping(context.Context) error { return nil }

func newEngine(t *testing.T, retain int) (*Engine, *store.Store, *fakeGateway) {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	gw := &fakeGateway{}
	return New(st, gw, retain, logging.Nop()), st, gw
}

func testCycle(id int64, target time.Time) models.Cycle {
	return models.Cycle{
		ID:         id,
		StartDate:  target.AddDate(0, -1, 1),
		EndDate:    target,
		TargetDate: target,
		Status:     models.CycleOpen,
		UpdatedAt:  time.Now(),
	}
}

func testAssignment(id int64) models.Assignment {
	return models.Assignment{
		ID:        id,
		MeterID:   id + 100,
		ClientID:  id + 200,
		StartDate: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		Status:    models.AssignmentActive,
		UpdatedAt: time.Now(),
	}
}

func serverReading(serverID, assignmentID, cycleID int64, value models.Volume) models.Reading {
	return models.Reading{
		ServerID:     sql.NullInt64{Int64: serverID, Valid: true},
		AssignmentID: assignmentID,
		CycleID:      cycleID,
		Value:        value,
		SubmittedAt:  time.Now(),
		Origin:       models.OriginServerSync,
		Status:       models.ReadingAccepted,
		UpdatedAt:    time.Now(),
	}
}

// captureLocal plants a LOCAL_ONLY reading with its queue entry, the way the
// capture path does.
func captureLocal(t *testing.T, st *store.Store, localID string, assignmentID, cycleID int64, value models.Volume) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	rd := &models.Reading{
		LocalID:      localID,
		AssignmentID: assignmentID,
		CycleID:      cycleID,
		Value:        value,
		SubmittedAt:  now,
		SubmittedBy:  "reader-7",
		Origin:       models.OriginLocalCapture,
		Status:       models.ReadingLocalOnly,
		UpdatedAt:    now,
	}
	payload, err := json.Marshal(gateway.ReadingSubmission{
		AssignmentID: assignmentID,
		CycleID:      cycleID,
		Value:        value,
		SubmittedBy:  "reader-7",
		SubmittedAt:  now,
	})
	require.NoError(t, err)

	require.NoError(t, st.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		if err := r.Readings.InsertLocal(ctx, rd); err != nil {
			return err
		}
		_, err := r.Queue.Enqueue(ctx, &models.QueueEntry{
			EntityType: models.EntityReading,
			EntityID:   localID,
			Operation:  models.OpCreate,
			Payload:    payload,
		})
		return err
	}))
}

func seedRef(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	r := st.Repos()
	require.NoError(t, r.Assignments.UpsertMany(ctx, []models.Assignment{testAssignment(10)}))
	require.NoError(t, r.Cycles.UpsertMany(ctx, []models.Cycle{
		testCycle(3, time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)),
	}))
}

func setCheckpoint(t *testing.T, st *store.Store, ts time.Time) {
	t.Helper()
	require.NoError(t, st.Repos().Metadata.SetTime(context.Background(), metadata.KeyLastSyncCheckpoint, ts))
}

func TestBootstrap_PopulatesCacheAndCheckpoint(t *testing.T) {
	e, st, gw := newEngine(t, 0)
	ctx := context.Background()

	checkpoint := time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)
	gw.fetchSnapshot = func(context.Context) (*gateway.Snapshot, error) {
		return &gateway.Snapshot{
			Clients:     []models.Client{{ID: 1, FullName: "Amina Odhiambo", UpdatedAt: time.Now()}},
			Meters:      []models.Meter{{ID: 2, Serial: "WM-9981", UpdatedAt: time.Now()}},
			Assignments: []models.Assignment{testAssignment(10)},
			Cycles: []models.Cycle{
				testCycle(3, time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)),
			},
			Readings:   []models.Reading{serverReading(500, 10, 3, 12345678)},
			Checkpoint: checkpoint,
		}, nil
	}

	res, err := e.Bootstrap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Downloaded)
	assert.True(t, res.Checkpoint.Equal(checkpoint))

	r := st.Repos()
	c, err := r.Clients.GetByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, c)
	rd, err := r.Readings.GetByServerID(ctx, 500)
	require.NoError(t, err)
	require.NotNil(t, rd)
	assert.Equal(t, models.OriginServerSync, rd.Origin)

	stored, err := r.Metadata.GetTime(ctx, metadata.KeyLastSyncCheckpoint)
	require.NoError(t, err)
	assert.True(t, stored.Equal(checkpoint))
}

func TestBootstrap_PreservesLocalCapturesAndQueue(t *testing.T) {
	e, st, gw := newEngine(t, 0)
	ctx := context.Background()
	seedRef(t, st)
	captureLocal(t, st, "l-1", 10, 3, 100)

	gw.fetchSnapshot = func(context.Context) (*gateway.Snapshot, error) {
		return &gateway.Snapshot{
			Assignments: []models.Assignment{testAssignment(10)},
			Cycles: []models.Cycle{
				testCycle(3, time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)),
			},
			Readings:   []models.Reading{serverReading(500, 11, 3, 200)},
			Checkpoint: time.Now(),
		}, nil
	}

	_, err := e.Bootstrap(ctx)
	require.NoError(t, err)

	r := st.Repos()
	local, err := r.Readings.GetByLocalID(ctx, "l-1")
	require.NoError(t, err)
	require.NotNil(t, local)
	assert.Equal(t, models.ReadingLocalOnly, local.Status)

	n, err := r.Queue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBootstrap_FetchFailureLeavesNoCheckpoint(t *testing.T) {
	e, st, gw := newEngine(t, 0)
	ctx := context.Background()

	gw.fetchSnapshot = func(context.Context) (*gateway.Snapshot, error) {
		return nil, fmt.Errorf("%w: connection refused", gateway.ErrUnavailable)
	}

	_, err := e.Bootstrap(ctx)
	require.Error(t, err)
	assert.True(t, gateway.IsTransport(err))

	stored, err := st.Repos().Metadata.GetTime(ctx, metadata.KeyLastSyncCheckpoint)
	require.NoError(t, err)
	assert.True(t, stored.IsZero())
}

func TestSyncDown_NoCheckpointFallsBackToBootstrap(t *testing.T) {
	e, _, gw := newEngine(t, 0)

	snapshotCalled := false
	gw.fetchSnapshot = func(context.Context) (*gateway.Snapshot, error) {
		snapshotCalled = true
		return &gateway.Snapshot{Checkpoint: time.Now()}, nil
	}
	// fetchUpdates deliberately unset: calling it would fail the test.

	_, err := e.SyncDown(context.Background())
	require.NoError(t, err)
	assert.True(t, snapshotCalled)
}

func TestSyncDown_AppliesDeltaTombstonesAndCheckpoint(t *testing.T) {
	e, st, gw := newEngine(t, 0)
	ctx := context.Background()
	seedRef(t, st)
	prev := time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)
	setCheckpoint(t, st, prev)

	next := prev.Add(24 * time.Hour)
	gw.fetchUpdates = func(_ context.Context, since time.Time) (*gateway.Delta, error) {
		assert.True(t, since.Equal(prev))
		return &gateway.Delta{
			Readings: []models.Reading{serverReading(500, 10, 3, 12345678)},
			Tombstones: []gateway.Tombstone{
				{EntityType: "cycle", EntityID: 3, Action: "CLOSED"},
				{EntityType: "assignment", EntityID: 10, Action: "DEACTIVATED"},
			},
			Checkpoint: next,
		}, nil
	}

	res, err := e.SyncDown(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Downloaded)
	assert.Zero(t, res.Conflicts)

	r := st.Repos()
	cycle, err := r.Cycles.GetByID(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, models.CycleClosed, cycle.Status)
	a, err := r.Assignments.GetByID(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentInactive, a.Status)

	stored, err := r.Metadata.GetTime(ctx, metadata.KeyLastSyncCheckpoint)
	require.NoError(t, err)
	assert.True(t, stored.Equal(next))
}

func TestSyncDown_DifferingServerValueRaisesConflict(t *testing.T) {
	e, st, gw := newEngine(t, 0)
	ctx := context.Background()
	seedRef(t, st)
	captureLocal(t, st, "l-1", 10, 3, 12345678) // 1234.5678
	setCheckpoint(t, st, time.Now().Add(-time.Hour))

	gw.fetchUpdates = func(context.Context, time.Time) (*gateway.Delta, error) {
		return &gateway.Delta{
			Readings:   []models.Reading{serverReading(500, 10, 3, 12500000)}, // 1250.0000
			Checkpoint: time.Now(),
		}, nil
	}

	res, err := e.SyncDown(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Conflicts)

	r := st.Repos()
	local, err := r.Readings.GetByLocalID(ctx, "l-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReadingConflict, local.Status)
	// The locally captured value is untouched.
	assert.Equal(t, models.Volume(12345678), local.Value)

	// The server row is held back, not upserted over the pending capture.
	held, err := r.Readings.GetByServerID(ctx, 500)
	require.NoError(t, err)
	assert.Nil(t, held)

	open, err := r.Conflicts.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.Volume(12345678), open[0].LocalValue)
	assert.Equal(t, models.Volume(12500000), open[0].ServerValue)
	require.NotNil(t, open[0].ServerReadingID)
	assert.Equal(t, int64(500), *open[0].ServerReadingID)
	assert.False(t, open[0].Resolved)
}

func TestSyncDown_EqualServerValueConfirmsPending(t *testing.T) {
	e, st, gw := newEngine(t, 0)
	ctx := context.Background()
	seedRef(t, st)
	captureLocal(t, st, "l-1", 10, 3, 12345678)
	setCheckpoint(t, st, time.Now().Add(-time.Hour))

	gw.fetchUpdates = func(context.Context, time.Time) (*gateway.Delta, error) {
		return &gateway.Delta{
			Readings:   []models.Reading{serverReading(500, 10, 3, 12345678)},
			Checkpoint: time.Now(),
		}, nil
	}

	res, err := e.SyncDown(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Conflicts)

	r := st.Repos()
	local, err := r.Readings.GetByLocalID(ctx, "l-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReadingAccepted, local.Status)
	require.True(t, local.ServerID.Valid)
	assert.Equal(t, int64(500), local.ServerID.Int64)

	n, err := r.Queue.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSyncDown_IsIdempotent(t *testing.T) {
	e, st, gw := newEngine(t, 0)
	ctx := context.Background()
	seedRef(t, st)
	setCheckpoint(t, st, time.Now().Add(-time.Hour))

	gw.fetchUpdates = func(context.Context, time.Time) (*gateway.Delta, error) {
		return &gateway.Delta{
			Readings:   []models.Reading{serverReading(500, 10, 3, 12345678)},
			Checkpoint: time.Now(),
		}, nil
	}

	_, err := e.SyncDown(ctx)
	require.NoError(t, err)
	_, err = e.SyncDown(ctx)
	require.NoError(t, err)

	n, err := st.Repos().Readings.CountByStatus(ctx, models.ReadingAccepted)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSyncUp_SuccessDrainsQueue(t *testing.T) {
	e, st, gw := newEngine(t, 0)
	ctx := context.Background()
	seedRef(t, st)
	captureLocal(t, st, "l-1", 10, 3, 12345678)

	gw.submitReading = func(_ context.Context, sub gateway.ReadingSubmission) (*gateway.ReadingAck, error) {
		assert.Equal(t, models.Volume(12345678), sub.Value)
		return &gateway.ReadingAck{ServerID: 501, Status: models.ReadingSubmitted}, nil
	}

	res, err := e.SyncUp(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Uploaded)

	r := st.Repos()
	n, err := r.Queue.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	rd, err := r.Readings.GetByLocalID(ctx, "l-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReadingSubmitted, rd.Status)
	require.True(t, rd.ServerID.Valid)
	assert.Equal(t, int64(501), rd.ServerID.Int64)
}

func TestSyncUp_ValidationRejectionFinalizesEntry(t *testing.T) {
	e, st, gw := newEngine(t, 0)
	ctx := context.Background()
	seedRef(t, st)
	captureLocal(t, st, "l-1", 10, 3, 100)

	gw.submitReading = func(context.Context, gateway.ReadingSubmission) (*gateway.ReadingAck, error) {
		return nil, &gateway.ValidationError{Reason: "cycle is not open"}
	}

	res, err := e.SyncUp(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Uploaded)

	r := st.Repos()
	rd, err := r.Readings.GetByLocalID(ctx, "l-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReadingRejected, rd.Status)

	n, err := r.Queue.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSyncUp_ConflictKeepsEntryAndRecordsConflict(t *testing.T) {
	e, st, gw := newEngine(t, 0)
	ctx := context.Background()
	seedRef(t, st)
	captureLocal(t, st, "l-1", 10, 3, 12345678)

	gw.submitReading = func(context.Context, gateway.ReadingSubmission) (*gateway.ReadingAck, error) {
		sr := serverReading(500, 10, 3, 12500000)
		return nil, &gateway.ConflictError{
			Reason:        "an approved reading already exists",
			ServerReading: &sr,
		}
	}

	res, err := e.SyncUp(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Conflicts)

	r := st.Repos()
	rd, err := r.Readings.GetByLocalID(ctx, "l-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReadingConflict, rd.Status)

	list, err := r.Queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].Attempts)

	open, err := r.Conflicts.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.Volume(12500000), open[0].ServerValue)
	require.NotNil(t, open[0].ServerReadingID)
	assert.Equal(t, int64(500), *open[0].ServerReadingID)
}

func TestSyncUp_TransportErrorHaltsPass(t *testing.T) {
	e, st, gw := newEngine(t, 0)
	ctx := context.Background()
	seedRef(t, st)
	captureLocal(t, st, "l-1", 10, 3, 100)
	captureLocal(t, st, "l-2", 10, 3, 200)

	gw.submitReading = func(context.Context, gateway.ReadingSubmission) (*gateway.ReadingAck, error) {
		return nil, fmt.Errorf("%w: connection refused", gateway.ErrUnavailable)
	}

	_, err := e.SyncUp(ctx)
	require.Error(t, err)
	assert.True(t, gateway.IsTransport(err))
	assert.Len(t, gw.submissions, 1)

	list, err := st.Repos().Queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	// The failed entry carries the attempt; the untried one does not.
	assert.Equal(t, "l-2", list[0].EntityID)
	assert.Zero(t, list[0].Attempts)
	assert.Equal(t, "l-1", list[1].EntityID)
	assert.Equal(t, 1, list[1].Attempts)
}

func TestSyncUp_SkipsConflictedReading(t *testing.T) {
	e, st, gw := newEngine(t, 0)
	ctx := context.Background()
	seedRef(t, st)
	captureLocal(t, st, "l-1", 10, 3, 100)
	require.NoError(t, st.Repos().Readings.SetStatus(ctx, "l-1", models.ReadingConflict))

	gw.submitReading = func(context.Context, gateway.ReadingSubmission) (*gateway.ReadingAck, error) {
		t.Fatal("conflicted reading must not be submitted")
		return nil, nil
	}

	res, err := e.SyncUp(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Uploaded)

	n, err := st.Repos().Queue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSyncAll_UploadFailureSkipsDownload(t *testing.T) {
	e, st, gw := newEngine(t, 0)
	ctx := context.Background()
	seedRef(t, st)
	captureLocal(t, st, "l-1", 10, 3, 100)
	setCheckpoint(t, st, time.Now())

	gw.submitReading = func(context.Context, gateway.ReadingSubmission) (*gateway.ReadingAck, error) {
		return nil, fmt.Errorf("%w: timeout", gateway.ErrUnavailable)
	}
	// fetchUpdates stays unset: reaching it would fail the pass with a
	// different error than the one asserted here.

	_, err := e.SyncAll(ctx)
	require.Error(t, err)
	assert.True(t, gateway.IsTransport(err))
}

func TestSyncAll_RejectsOverlappingPasses(t *testing.T) {
	e, _, _ := newEngine(t, 0)

	require.True(t, e.acquire())
	defer e.release()

	_, err := e.SyncAll(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)
	_, err = e.SyncUp(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)
}

func TestStatus_ReportsPendingWork(t *testing.T) {
	e, st, _ := newEngine(t, 0)
	ctx := context.Background()
	seedRef(t, st)
	captureLocal(t, st, "l-1", 10, 3, 100)
	checkpoint := time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)
	setCheckpoint(t, st, checkpoint)

	status, err := e.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.PendingUploads)
	assert.Zero(t, status.UnresolvedConflicts)
	assert.True(t, status.LastCheckpoint.Equal(checkpoint))
	assert.False(t, status.InProgress)
}
