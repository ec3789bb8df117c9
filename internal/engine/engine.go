// Package engine orchestrates the reconciliation cycle between the local
// cache and the billing server: queue drain (upload), delta application
// (download), conflict creation, tombstone handling, and retention trimming.
// It is the only component that decides which value wins.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmaganga/majisync/internal/gateway"
	"github.com/dmaganga/majisync/internal/logging"
	"github.com/dmaganga/majisync/internal/models"
	"github.com/dmaganga/majisync/internal/repositories/metadata"
	"github.com/dmaganga/majisync/internal/store"
)

// ErrSyncInProgress is returned when a sync pass is requested while another
// one is still running. Callers should simply try again later.
var ErrSyncInProgress = errors.New("sync already in progress")

// DefaultRetainedCycles is the default size of the local retention window.
const DefaultRetainedCycles = 12

// Result summarizes one sync pass.
type Result struct {
	Uploaded   int
	Downloaded int
	Conflicts  int
	Trimmed    int
	Checkpoint time.Time
}

// Status is the offline-queryable view of sync state.
type Status struct {
	PendingUploads      int
	UnresolvedConflicts int
	LastCheckpoint      time.Time
	InProgress          bool
}

// Engine runs sync passes. It is safe for concurrent use, but only one pass
// executes at a time; overlapping invocations fail fast with
// ErrSyncInProgress instead of queueing, because interleaved passes against
// the same cache rows are not safe.
type Engine struct {
	store  *store.Store
	gw     gateway.Gateway
	log    logging.Logger
	retain int

	mu      sync.Mutex // guards one-pass-at-a-time execution
	running bool
	stateMu sync.Mutex // guards running flag reads
}

// New builds an Engine retaining the given number of recent cycles; values
// below 1 fall back to DefaultRetainedCycles.
func New(st *store.Store, gw gateway.Gateway, retain int, log logging.Logger) *Engine {
	if retain < 1 {
		retain = DefaultRetainedCycles
	}
	return &Engine{store: st, gw: gw, log: log, retain: retain}
}

// acquire claims the single execution slot without blocking.
func (e *Engine) acquire() bool {
	if !e.mu.TryLock() {
		return false
	}
	e.stateMu.Lock()
	e.running = true
	e.stateMu.Unlock()
	return true
}

func (e *Engine) release() {
	e.stateMu.Lock()
	e.running = false
	e.stateMu.Unlock()
	e.mu.Unlock()
}

// SyncAll runs one full pass: upload first, then download. A fatal upload
// failure (dead network, storage error) skips the download: presenting a
// half-synced view during a known-bad window helps nobody.
func (e *Engine) SyncAll(ctx context.Context) (*Result, error) {
	if !e.acquire() {
		return nil, ErrSyncInProgress
	}
	defer e.release()

	result := &Result{}
	if err := e.syncUp(ctx, result); err != nil {
		return result, fmt.Errorf("upload: %w", err)
	}
	if err := e.syncDown(ctx, result); err != nil {
		return result, fmt.Errorf("download: %w", err)
	}

	e.log.Info(ctx, "sync pass finished",
		"uploaded", result.Uploaded,
		"downloaded", result.Downloaded,
		"conflicts", result.Conflicts,
		"trimmed", result.Trimmed)
	return result, nil
}

// SyncUp drains the outbox only.
func (e *Engine) SyncUp(ctx context.Context) (*Result, error) {
	if !e.acquire() {
		return nil, ErrSyncInProgress
	}
	defer e.release()

	result := &Result{}
	err := e.syncUp(ctx, result)
	return result, err
}

// SyncDown applies server changes only.
func (e *Engine) SyncDown(ctx context.Context) (*Result, error) {
	if !e.acquire() {
		return nil, ErrSyncInProgress
	}
	defer e.release()

	result := &Result{}
	err := e.syncDown(ctx, result)
	return result, err
}

// Bootstrap forces a full snapshot refresh regardless of checkpoint state.
func (e *Engine) Bootstrap(ctx context.Context) (*Result, error) {
	if !e.acquire() {
		return nil, ErrSyncInProgress
	}
	defer e.release()

	result := &Result{}
	err := e.bootstrap(ctx, result)
	return result, err
}

// Status reports pending work and the last checkpoint; it never touches the
// network and is always available offline.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	r := e.store.Repos()

	pending, err := r.Queue.Count(ctx)
	if err != nil {
		return nil, err
	}
	unresolved, err := r.Conflicts.CountUnresolved(ctx)
	if err != nil {
		return nil, err
	}
	checkpoint, err := r.Metadata.GetTime(ctx, metadata.KeyLastSyncCheckpoint)
	if err != nil {
		return nil, err
	}

	e.stateMu.Lock()
	running := e.running
	e.stateMu.Unlock()

	return &Status{
		PendingUploads:      pending,
		UnresolvedConflicts: unresolved,
		LastCheckpoint:      checkpoint,
		InProgress:          running,
	}, nil
}

// checkpoint returns the stored sync checkpoint; zero time when none exists.
func (e *Engine) checkpoint(ctx context.Context) (time.Time, error) {
	return e.store.Repos().Metadata.GetTime(ctx, metadata.KeyLastSyncCheckpoint)
}

// upsertBatch applies one download batch in dependency order: reference
// entities first, then readings, so a reading never lands before its parent.
func upsertBatch(ctx context.Context, r *store.Repos,
	cls []models.Client, mts []models.Meter, asg []models.Assignment,
	cyc []models.Cycle) error {

	if err := r.Clients.UpsertMany(ctx, cls); err != nil {
		return err
	}
	if err := r.Meters.UpsertMany(ctx, mts); err != nil {
		return err
	}
	if err := r.Assignments.UpsertMany(ctx, asg); err != nil {
		return err
	}
	return r.Cycles.UpsertMany(ctx, cyc)
}
