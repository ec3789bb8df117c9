package readings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmaganga/majisync/internal/dbx"
	"github.com/dmaganga/majisync/internal/models"
)

// ErrNotFound is returned by mutating calls that expect an existing row.
var ErrNotFound = errors.New("reading not found")

const columns = `local_id, server_id, assignment_id, cycle_id, value,
	submitted_at, submitted_by, notes, origin, status, updated_at`

// SQLiteRepository implements Repository over a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) InsertLocal(ctx context.Context, reading *models.Reading) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO readings (local_id, assignment_id, cycle_id, value,
			submitted_at, submitted_by, notes, origin, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reading.LocalID, reading.AssignmentID, reading.CycleID, int64(reading.Value),
		dbx.FormatTime(reading.SubmittedAt), reading.SubmittedBy, reading.Notes,
		string(reading.Origin), string(reading.Status), dbx.FormatTime(reading.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert reading %s: %w", reading.LocalID, err)
	}
	return nil
}

func (r *SQLiteRepository) UpsertServer(ctx context.Context, reading *models.Reading) error {
	if !reading.ServerID.Valid {
		return fmt.Errorf("server reading without server id")
	}
	// Server rows get a local id too; an existing row keeps its own, since
	// the conflict clause never touches local_id.
	if reading.LocalID == "" {
		reading.LocalID = uuid.NewString()
	}
	query := `INSERT INTO readings (local_id, server_id, assignment_id, cycle_id, value,
			submitted_at, submitted_by, notes, origin, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(server_id) DO UPDATE SET assignment_id = excluded.assignment_id,
			cycle_id = excluded.cycle_id,
			value = excluded.value,
			submitted_at = excluded.submitted_at,
			submitted_by = excluded.submitted_by,
			notes = excluded.notes,
			origin = excluded.origin,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		reading.LocalID, reading.ServerID.Int64, reading.AssignmentID, reading.CycleID,
		int64(reading.Value), dbx.FormatTime(reading.SubmittedAt), reading.SubmittedBy,
		reading.Notes, string(reading.Origin), string(reading.Status),
		dbx.FormatTime(reading.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert server reading %d: %w", reading.ServerID.Int64, err)
	}
	return nil
}

func (r *SQLiteRepository) GetByLocalID(ctx context.Context, localID string) (*models.Reading, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM readings WHERE local_id = ?`, localID)
	return oneOrNil(row.Scan)
}

func (r *SQLiteRepository) GetByServerID(ctx context.Context, serverID int64) (*models.Reading, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM readings WHERE server_id = ?`, serverID)
	return oneOrNil(row.Scan)
}

func (r *SQLiteRepository) FindPending(ctx context.Context, assignmentID, cycleID int64) (*models.Reading, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+columns+` FROM readings
		WHERE assignment_id = ? AND cycle_id = ? AND status IN (?, ?)
		ORDER BY submitted_at DESC LIMIT 1`,
		assignmentID, cycleID,
		string(models.ReadingLocalOnly), string(models.ReadingConflict))
	return oneOrNil(row.Scan)
}

func (r *SQLiteRepository) SetStatus(ctx context.Context, localID string, status models.ReadingStatus) error {
	return r.exec(ctx, localID,
		`UPDATE readings SET status = ?, updated_at = ? WHERE local_id = ?`,
		string(status), dbx.FormatTime(time.Now()), localID)
}

func (r *SQLiteRepository) SetValueAndStatus(ctx context.Context, localID string, value models.Volume, status models.ReadingStatus) error {
	return r.exec(ctx, localID,
		`UPDATE readings SET value = ?, status = ?, updated_at = ? WHERE local_id = ?`,
		int64(value), string(status), dbx.FormatTime(time.Now()), localID)
}

func (r *SQLiteRepository) ConfirmServer(ctx context.Context, localID string, serverID int64, status models.ReadingStatus) error {
	return r.exec(ctx, localID,
		`UPDATE readings SET server_id = ?, status = ?, updated_at = ? WHERE local_id = ?`,
		serverID, string(status), dbx.FormatTime(time.Now()), localID)
}

func (r *SQLiteRepository) CountByStatus(ctx context.Context, status models.ReadingStatus) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM readings WHERE status = ?`, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count readings: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) PendingCycleIDs(ctx context.Context) (map[int64]bool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT cycle_id FROM readings WHERE status IN (?, ?)`,
		string(models.ReadingLocalOnly), string(models.ReadingConflict))
	if err != nil {
		return nil, fmt.Errorf("failed to select pending cycle ids: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteByCycle(ctx context.Context, cycleID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM readings WHERE cycle_id = ?`, cycleID); err != nil {
		return fmt.Errorf("failed to delete readings of cycle %d: %w", cycleID, err)
	}
	return nil
}

func (r *SQLiteRepository) ClearSynced(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM readings WHERE origin = ?`, string(models.OriginServerSync))
	if err != nil {
		return fmt.Errorf("failed to clear synced readings: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) exec(ctx context.Context, localID, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update reading %s: %w", localID, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return fmt.Errorf("reading %s: %w", localID, ErrNotFound)
	}
	return nil
}

func oneOrNil(scan func(dest ...any) error) (*models.Reading, error) {
	rd, err := scanReading(scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan reading: %w", err)
	}
	return rd, nil
}

func scanReading(scan func(dest ...any) error) (*models.Reading, error) {
	var rd models.Reading
	var value int64
	var submittedAt, updatedAt, origin, status string

	err := scan(&rd.LocalID, &rd.ServerID, &rd.AssignmentID, &rd.CycleID, &value,
		&submittedAt, &rd.SubmittedBy, &rd.Notes, &origin, &status, &updatedAt)
	if err != nil {
		return nil, err
	}

	rd.Value = models.Volume(value)
	rd.Origin = models.ReadingOrigin(origin)
	rd.Status = models.ReadingStatus(status)
	if rd.SubmittedAt, err = dbx.ParseTime(submittedAt); err != nil {
		return nil, err
	}
	if rd.UpdatedAt, err = dbx.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &rd, nil
}
