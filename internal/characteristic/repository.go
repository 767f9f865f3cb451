package characteristic

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/procat/backend/internal/apperr"
)

// Repository persists characteristics. Mutating methods run inside the
// caller's transaction so the outbox row commits atomically with the entity.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps a database handle.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying handle for transaction management.
func (r *Repository) DB() *sql.DB { return r.db }

// Get loads one characteristic by id.
func (r *Repository) Get(ctx context.Context, id string) (*Characteristic, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, value, unit, version, created_at, updated_at
		 FROM characteristics WHERE id = $1`, id)
	return scanOne(row)
}

// GetForUpdate loads one characteristic inside tx with a row lock.
func (r *Repository) GetForUpdate(ctx context.Context, tx *sql.Tx, id string) (*Characteristic, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT id, name, value, unit, version, created_at, updated_at
		 FROM characteristics WHERE id = $1 FOR UPDATE`, id)
	return scanOne(row)
}

// List returns all characteristics ordered by creation time.
func (r *Repository) List(ctx context.Context) ([]Characteristic, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, value, unit, version, created_at, updated_at
		 FROM characteristics ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list characteristics: %w", err)
	}
	defer rows.Close()

	var out []Characteristic
	for rows.Next() {
		var c Characteristic
		if err := rows.Scan(&c.ID, &c.Name, &c.Value, &c.Unit, &c.Version, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan characteristic: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Insert writes a new characteristic inside tx.
func (r *Repository) Insert(ctx context.Context, tx *sql.Tx, c *Characteristic) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO characteristics (id, name, value, unit, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Name, c.Value, c.Unit, c.Version, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert characteristic: %w", err)
	}
	return nil
}

// Update rewrites a characteristic inside tx.
func (r *Repository) Update(ctx context.Context, tx *sql.Tx, c *Characteristic) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE characteristics SET name = $1, value = $2, unit = $3, version = $4, updated_at = $5
		 WHERE id = $6`,
		c.Name, c.Value, c.Unit, c.Version, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("update characteristic: %w", err)
	}
	return nil
}

// Delete removes a characteristic inside tx.
func (r *Repository) Delete(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM characteristics WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete characteristic: %w", err)
	}
	return nil
}

func scanOne(row *sql.Row) (*Characteristic, error) {
	var c Characteristic
	err := row.Scan(&c.ID, &c.Name, &c.Value, &c.Unit, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "characteristic not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan characteristic: %w", err)
	}
	return &c, nil
}
