package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/zjrosen/assetcache/internal/asset"
	"github.com/zjrosen/assetcache/internal/identity"
)

// LocationModel represents the database row for the locations table.
type LocationModel struct {
	ID        string
	Path      string
	PathKey   string
	CreatedAt int64 // Unix timestamp
	UpdatedAt int64 // Unix timestamp
}

func toLocationModel(rec identity.Record, now time.Time) LocationModel {
	return LocationModel{
		ID:        rec.ID.String(),
		Path:      rec.Path,
		PathKey:   identity.Key(rec.Path),
		CreatedAt: now.Unix(),
		UpdatedAt: now.Unix(),
	}
}

func (m LocationModel) toDomain() identity.Record {
	return identity.Record{ID: asset.ID(m.ID), Path: m.Path}
}

// locationRepository implements identity.Repository using SQLite.
type locationRepository struct {
	db  *sql.DB
	now func() time.Time
}

func newLocationRepository(db *sql.DB) *locationRepository {
	return &locationRepository{db: db, now: time.Now}
}

var _ identity.Repository = (*locationRepository)(nil)

// Save upserts rec. A row holding the same path under another id is removed
// in the same transaction, mirroring the registry's path move.
func (r *locationRepository) Save(rec identity.Record) error {
	model := toLocationModel(rec, r.now())

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin location save: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM locations WHERE path_key = ? AND id != ?`, model.PathKey, model.ID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to clear previous owner of path: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO locations (id, path, path_key, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET path = excluded.path, path_key = excluded.path_key, updated_at = excluded.updated_at`,
		model.ID, model.Path, model.PathKey, model.CreatedAt, model.UpdatedAt,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to save location: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit location: %w", err)
	}
	return nil
}

// Delete removes the record for id. Missing rows are not an error.
func (r *locationRepository) Delete(id asset.ID) error {
	if _, err := r.db.Exec(`DELETE FROM locations WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete location: %w", err)
	}
	return nil
}

// FindAll returns every record, oldest update first.
func (r *locationRepository) FindAll() ([]identity.Record, error) {
	rows, err := r.db.Query(`SELECT id, path, path_key, created_at, updated_at FROM locations ORDER BY updated_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []identity.Record
	for rows.Next() {
		var m LocationModel
		if err := rows.Scan(&m.ID, &m.Path, &m.PathKey, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		out = append(out, m.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate locations: %w", err)
	}
	return out, nil
}
