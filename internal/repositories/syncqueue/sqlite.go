package syncqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmaganga/majisync/internal/dbx"
	"github.com/dmaganga/majisync/internal/models"
)

const columns = `id, entity_type, entity_id, operation, payload, attempts, last_attempt_at, created_at`

// SQLiteRepository implements Repository over a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, entry *models.QueueEntry) (int64, error) {
	now := time.Now()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_queue (entity_type, entity_id, operation, payload, attempts, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		entry.EntityType, entry.EntityID, entry.Operation, entry.Payload,
		dbx.FormatTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s: %w", entry.EntityType, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue entry id: %w", err)
	}
	entry.ID = id
	entry.CreatedAt = now
	return id, nil
}

func (r *SQLiteRepository) DequeueNext(ctx context.Context) (*models.QueueEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+columns+` FROM sync_queue
		ORDER BY attempts ASC, created_at ASC, id ASC LIMIT 1`)

	e, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.QueueEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+columns+` FROM sync_queue
		ORDER BY attempts ASC, created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	defer rows.Close()

	var result []models.QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) MarkAttempt(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue SET attempts = attempts + 1, last_attempt_at = ? WHERE id = ?`,
		dbx.FormatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to mark attempt on entry %d: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete queue entry %d: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByEntity(ctx context.Context, entityType, entityID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sync_queue WHERE entity_type = ? AND entity_id = ?`,
		entityType, entityID)
	if err != nil {
		return fmt.Errorf("failed to delete queue entries for %s/%s: %w", entityType, entityID, err)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return n, nil
}

func scanEntry(scan func(dest ...any) error) (*models.QueueEntry, error) {
	var e models.QueueEntry
	var lastAttempt sql.NullString
	var createdAt string

	err := scan(&e.ID, &e.EntityType, &e.EntityID, &e.Operation, &e.Payload,
		&e.Attempts, &lastAttempt, &createdAt)
	if err != nil {
		return nil, err
	}

	if lastAttempt.Valid {
		t, err := dbx.ParseTime(lastAttempt.String)
		if err != nil {
			return nil, err
		}
		e.LastAttemptAt = &t
	}
	if e.CreatedAt, err = dbx.ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &e, nil
}
