package clients

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

func (r *SQLiteRepository) UpsertMany(ctx context.Context, items []models.Client) error {
	query := `INSERT INTO clients (id, full_name, phone, zone, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET full_name = excluded.full_name,
			phone = excluded.phone,
			zone = excluded.zone,
			updated_at = excluded.updated_at
	`
	for _, c := range items {
		_, err := r.db.ExecContext(ctx, query,
			c.ID, c.FullName, c.Phone, c.Zone, dbx.FormatTime(c.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to upsert client %d: %w", c.ID, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.Client, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, full_name, phone, zone, updated_at FROM clients WHERE id = ?`, id)

	var c models.Client
	var updatedAt string
	err := row.Scan(&c.ID, &c.FullName, &c.Phone, &c.Zone, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client %d: %w", id, err)
	}
	if c.UpdatedAt, err = dbx.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM clients`); err != nil {
		return fmt.Errorf("failed to clear clients: %w", err)
	}
	return nil
}
