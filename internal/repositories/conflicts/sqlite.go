package conflicts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmaganga/majisync/internal/dbx"
	"github.com/dmaganga/majisync/internal/models"
)

// ErrNotFound is returned when resolving a conflict that does not exist.
var ErrNotFound = errors.New("conflict not found")

const columns = `id, assignment_id, cycle_id, reading_local_id, local_value,
	server_value, server_reading_id, reason, resolved, resolution_note,
	created_at, resolved_at`

// SQLiteRepository implements Repository over a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Record(ctx context.Context, c *models.Conflict) (int64, error) {
	// A second detection for the same pair updates the unresolved row.
	var existing int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM conflicts
		WHERE assignment_id = ? AND cycle_id = ? AND resolved = 0`,
		c.AssignmentID, c.CycleID).Scan(&existing)

	switch {
	case err == nil:
		_, err = r.db.ExecContext(ctx, `
			UPDATE conflicts SET reading_local_id = ?, local_value = ?,
				server_value = ?, server_reading_id = ?, reason = ?
			WHERE id = ?`,
			c.ReadingLocalID, int64(c.LocalValue), int64(c.ServerValue),
			nullInt(c.ServerReadingID), c.Reason, existing)
		if err != nil {
			return 0, fmt.Errorf("failed to update conflict %d: %w", existing, err)
		}
		return existing, nil

	case errors.Is(err, sql.ErrNoRows):
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO conflicts (assignment_id, cycle_id, reading_local_id,
				local_value, server_value, server_reading_id, reason, resolved, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			c.AssignmentID, c.CycleID, c.ReadingLocalID,
			int64(c.LocalValue), int64(c.ServerValue),
			nullInt(c.ServerReadingID), c.Reason, dbx.FormatTime(c.CreatedAt))
		if err != nil {
			return 0, fmt.Errorf("failed to insert conflict: %w", err)
		}
		return res.LastInsertId()

	default:
		return 0, fmt.Errorf("failed to look up conflict: %w", err)
	}
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.Conflict, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM conflicts WHERE id = ?`, id)
	c, err := scanConflict(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict %d: %w", id, err)
	}
	return c, nil
}

func (r *SQLiteRepository) List(ctx context.Context, resolved *bool) ([]models.Conflict, error) {
	query := `SELECT ` + columns + ` FROM conflicts`
	var args []any
	if resolved != nil {
		query += ` WHERE resolved = ?`
		if *resolved {
			args = append(args, 1)
		} else {
			args = append(args, 0)
		}
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var result []models.Conflict
	for rows.Next() {
		c, err := scanConflict(rows.Scan)
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

func (r *SQLiteRepository) Resolve(ctx context.Context, id int64, note string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conflicts SET resolved = 1, resolution_note = ?, resolved_at = ?
		WHERE id = ? AND resolved = 0`,
		note, dbx.FormatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to resolve conflict %d: %w", id, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return fmt.Errorf("conflict %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) CountUnresolved(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conflicts WHERE resolved = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count conflicts: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) DeleteByCycle(ctx context.Context, cycleID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM conflicts WHERE cycle_id = ?`, cycleID); err != nil {
		return fmt.Errorf("failed to delete conflicts of cycle %d: %w", cycleID, err)
	}
	return nil
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func scanConflict(scan func(dest ...any) error) (*models.Conflict, error) {
	var c models.Conflict
	var localValue, serverValue int64
	var serverReadingID sql.NullInt64
	var resolved int
	var createdAt string
	var resolvedAt sql.NullString

	err := scan(&c.ID, &c.AssignmentID, &c.CycleID, &c.ReadingLocalID,
		&localValue, &serverValue, &serverReadingID, &c.Reason,
		&resolved, &c.ResolutionNote, &createdAt, &resolvedAt)
	if err != nil {
		return nil, err
	}

	c.LocalValue = models.Volume(localValue)
	c.ServerValue = models.Volume(serverValue)
	if serverReadingID.Valid {
		c.ServerReadingID = &serverReadingID.Int64
	}
	c.Resolved = resolved != 0
	if c.CreatedAt, err = dbx.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t, err := dbx.ParseTime(resolvedAt.String)
		if err != nil {
			return nil, err
		}
		c.ResolvedAt = &t
	}
	return &c, nil
}
