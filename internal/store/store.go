// Package store opens the local SQLite cache, applies migrations, and bundles
// the per-entity repositories. It is the single shared mutable resource of the
// client: the sync engine writes synced tables, the capture path writes only
// LOCAL_ONLY readings and queue entries.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dmaganga/majisync/internal/dbx"
	"github.com/dmaganga/majisync/internal/migrations"
	"github.com/dmaganga/majisync/internal/repositories/assignments"
	"github.com/dmaganga/majisync/internal/repositories/clients"
	"github.com/dmaganga/majisync/internal/repositories/conflicts"
	"github.com/dmaganga/majisync/internal/repositories/cycles"
	"github.com/dmaganga/majisync/internal/repositories/metadata"
	"github.com/dmaganga/majisync/internal/repositories/meters"
	"github.com/dmaganga/majisync/internal/repositories/readings"
	"github.com/dmaganga/majisync/internal/repositories/syncqueue"
)

// Repos bundles one repository per table, all bound to the same handle.
type Repos struct {
	Clients     clients.Repository
	Meters      meters.Repository
	Assignments assignments.Repository
	Cycles      cycles.Repository
	Readings    readings.Repository
	Conflicts   conflicts.Repository
	Queue       syncqueue.Repository
	Metadata    metadata.Repository
}

// NewRepos constructs the repository bundle over db, which may be a *sql.DB
// or an open transaction.
func NewRepos(db dbx.DBTX) *Repos {
	return &Repos{
		Clients:     clients.NewSQLiteRepository(db),
		Meters:      meters.NewSQLiteRepository(db),
		Assignments: assignments.NewSQLiteRepository(db),
		Cycles:      cycles.NewSQLiteRepository(db),
		Readings:    readings.NewSQLiteRepository(db),
		Conflicts:   conflicts.NewSQLiteRepository(db),
		Queue:       syncqueue.NewSQLiteRepository(db),
		Metadata:    metadata.NewSQLiteRepository(db),
	}
}

// Store owns the database handle and hands out repositories.
type Store struct {
	db    *sql.DB
	repos *Repos
}

// Open opens (creating if needed) the cache database at dsn and brings the
// schema up to date.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time keeps SQLITE_BUSY out of the sync path.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA foreign_keys = ON`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db, repos: NewRepos(db)}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// Repos returns the non-transactional repository bundle.
func (s *Store) Repos() *Repos {
	return s.repos
}

// WithTx runs fn against a transactional repository bundle; the whole batch
// commits or rolls back together.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, r *Repos) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, NewRepos(tx))
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}
