package assignments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (r *SQLiteRepository) UpsertMany(ctx context.Context, items []models.Assignment) error {
	query := `INSERT INTO assignments (id, meter_id, client_id, start_date, end_date, status, baseline, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET meter_id = excluded.meter_id,
			client_id = excluded.client_id,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			status = excluded.status,
			baseline = excluded.baseline,
			updated_at = excluded.updated_at
	`
	for _, a := range items {
		var baseline any
		if a.Baseline != nil {
			baseline = int64(*a.Baseline)
		}
		_, err := r.db.ExecContext(ctx, query,
			a.ID, a.MeterID, a.ClientID,
			dbx.FormatDate(a.StartDate), dbx.NullDate(a.EndDate),
			string(a.Status), baseline, dbx.FormatTime(a.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to upsert assignment %d: %w", a.ID, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.Assignment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, meter_id, client_id, start_date, end_date, status, baseline, updated_at
		FROM assignments WHERE id = ?`, id)

	a, err := scanAssignment(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment %d: %w", id, err)
	}
	return a, nil
}

func (r *SQLiteRepository) ListActive(ctx context.Context) ([]models.Assignment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, meter_id, client_id, start_date, end_date, status, baseline, updated_at
		FROM assignments WHERE status = ? ORDER BY id`, string(models.AssignmentActive))
	if err != nil {
		return nil, fmt.Errorf("failed to list active assignments: %w", err)
	}
	defer rows.Close()

	var result []models.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Deactivate(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE assignments SET status = ?, updated_at = ? WHERE id = ?`,
		string(models.AssignmentInactive), dbx.FormatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate assignment %d: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM assignments`); err != nil {
		return fmt.Errorf("failed to clear assignments: %w", err)
	}
	return nil
}

func scanAssignment(scan func(dest ...any) error) (*models.Assignment, error) {
	var a models.Assignment
	var startDate, updatedAt string
	var endDate sql.NullString
	var baseline sql.NullInt64
	var status string

	if err := scan(&a.ID, &a.MeterID, &a.ClientID, &startDate, &endDate, &status, &baseline, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if a.StartDate, err = dbx.ParseDate(startDate); err != nil {
		return nil, err
	}
	if endDate.Valid {
		d, err := dbx.ParseDate(endDate.String)
		if err != nil {
			return nil, err
		}
		a.EndDate = &d
	}
	if baseline.Valid {
		v := models.Volume(baseline.Int64)
		a.Baseline = &v
	}
	a.Status = models.AssignmentStatus(status)
	if a.UpdatedAt, err = dbx.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
