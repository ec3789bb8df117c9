package cycles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmaganga/majisync/internal/dbx"
	"github.com/dmaganga/majisync/internal/models"
)

// SQLiteRepository implements Repository over a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) UpsertMany(ctx context.Context, items []models.Cycle) error {
	query := `INSERT INTO cycles (id, start_date, end_date, target_date, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET start_date = excluded.start_date,
			end_date = excluded.end_date,
			target_date = excluded.target_date,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	for _, c := range items {
		_, err := r.db.ExecContext(ctx, query,
			c.ID, dbx.FormatDate(c.StartDate), dbx.FormatDate(c.EndDate),
			dbx.FormatDate(c.TargetDate), string(c.Status), dbx.FormatTime(c.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to upsert cycle %d: %w", c.ID, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.Cycle, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, start_date, end_date, target_date, status, updated_at
		FROM cycles WHERE id = ?`, id)

	c, err := scanCycle(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cycle %d: %w", id, err)
	}
	return c, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.Cycle, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, start_date, end_date, target_date, status, updated_at
		FROM cycles ORDER BY target_date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}
	defer rows.Close()

	var result []models.Cycle
	for rows.Next() {
		c, err := scanCycle(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) SetStatus(ctx context.Context, id int64, status models.CycleStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE cycles SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to set cycle %d status: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) TrimCandidates(ctx context.Context, keep int) ([]int64, error) {
	// Everything beyond the keep most-recent target dates, oldest first.
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM cycles
		WHERE id NOT IN (
			SELECT id FROM cycles ORDER BY target_date DESC, id DESC LIMIT ?
		)
		ORDER BY target_date ASC, id ASC`, keep)
	if err != nil {
		return nil, fmt.Errorf("failed to select trim candidates: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cycles WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete cycle %d: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cycles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cycles: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cycles`); err != nil {
		return fmt.Errorf("failed to clear cycles: %w", err)
	}
	return nil
}

func scanCycle(scan func(dest ...any) error) (*models.Cycle, error) {
	var c models.Cycle
	var startDate, endDate, targetDate, status, updatedAt string

	if err := scan(&c.ID, &startDate, &endDate, &targetDate, &status, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if c.StartDate, err = dbx.ParseDate(startDate); err != nil {
		return nil, err
	}
	if c.EndDate, err = dbx.ParseDate(endDate); err != nil {
		return nil, err
	}
	if c.TargetDate, err = dbx.ParseDate(targetDate); err != nil {
		return nil, err
	}
	c.Status = models.CycleStatus(status)
	if c.UpdatedAt, err = dbx.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
