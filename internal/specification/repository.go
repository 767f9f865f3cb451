package specification

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/procat/backend/internal/apperr"
)

// Repository persists specifications with their ordered characteristic
// references as a Postgres text array.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps a database handle.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying handle for transaction management.
func (r *Repository) DB() *sql.DB { return r.db }

// Get loads one specification by id.
func (r *Repository) Get(ctx context.Context, id string) (*Specification, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, characteristic_ids, version, created_at, updated_at
		 FROM specifications WHERE id = $1`, id)
	return scanOne(row)
}

// GetForUpdate loads one specification inside tx with a row lock.
func (r *Repository) GetForUpdate(ctx context.Context, tx *sql.Tx, id string) (*Specification, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT id, name, description, characteristic_ids, version, created_at, updated_at
		 FROM specifications WHERE id = $1 FOR UPDATE`, id)
	return scanOne(row)
}

// List returns all specifications ordered by creation time.
func (r *Repository) List(ctx context.Context) ([]Specification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, characteristic_ids, version, created_at, updated_at
		 FROM specifications ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list specifications: %w", err)
	}
	defer rows.Close()

	var out []Specification
	for rows.Next() {
		var s Specification
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, pq.Array(&s.CharacteristicIDs),
			&s.Version, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan specification: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Exists reports whether every id names a stored specification.
func (r *Repository) Exists(ctx context.Context, ids []string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM specifications WHERE id = ANY($1)`, pq.Array(ids)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count specifications: %w", err)
	}
	return count == len(ids), nil
}

// Insert writes a new specification inside tx.
func (r *Repository) Insert(ctx context.Context, tx *sql.Tx, s *Specification) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO specifications (id, name, description, characteristic_ids, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.Name, s.Description, pq.Array(s.CharacteristicIDs), s.Version, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert specification: %w", err)
	}
	return nil
}

// Update rewrites a specification inside tx.
func (r *Repository) Update(ctx context.Context, tx *sql.Tx, s *Specification) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE specifications SET name = $1, description = $2, characteristic_ids = $3, version = $4, updated_at = $5
		 WHERE id = $6`,
		s.Name, s.Description, pq.Array(s.CharacteristicIDs), s.Version, s.UpdatedAt, s.ID)
	if err != nil {
		return fmt.Errorf("update specification: %w", err)
	}
	return nil
}

// Delete removes a specification inside tx.
func (r *Repository) Delete(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM specifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete specification: %w", err)
	}
	return nil
}

func scanOne(row *sql.Row) (*Specification, error) {
	var s Specification
	err := row.Scan(&s.ID, &s.Name, &s.Description, pq.Array(&s.CharacteristicIDs),
		&s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "specification not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan specification: %w", err)
	}
	return &s, nil
}
