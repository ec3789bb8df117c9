package meters

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

func (r *SQLiteRepository) UpsertMany(ctx context.Context, items []models.Meter) error {
	query := `INSERT INTO meters (id, serial, model, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET serial = excluded.serial,
			model = excluded.model,
			updated_at = excluded.updated_at
	`
	for _, m := range items {
		_, err := r.db.ExecContext(ctx, query,
			m.ID, m.Serial, m.Model, dbx.FormatTime(m.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to upsert meter %d: %w", m.ID, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.Meter, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, serial, model, updated_at FROM meters WHERE id = ?`, id)

	var m models.Meter
	var updatedAt string
	err := row.Scan(&m.ID, &m.Serial, &m.Model, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meter %d: %w", id, err)
	}
	if m.UpdatedAt, err = dbx.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM meters`); err != nil {
		return fmt.Errorf("failed to clear meters: %w", err)
	}
	return nil
}
