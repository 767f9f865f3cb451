package offering

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/procat/backend/internal/apperr"
)

const offeringColumns = `id, name, description, specification_ids, price_ids, sales_channels,
	lifecycle_status, version, created_at, updated_at`

// Repository persists offerings with their reference arrays.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps a database handle.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying handle for transaction management.
func (r *Repository) DB() *sql.DB { return r.db }

// Get loads one offering by id.
func (r *Repository) Get(ctx context.Context, id string) (*Offering, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+offeringColumns+` FROM offerings WHERE id = $1`, id)
	return scanOne(row)
}

// GetForUpdate loads one offering inside tx with a row lock.
func (r *Repository) GetForUpdate(ctx context.Context, tx *sql.Tx, id string) (*Offering, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+offeringColumns+` FROM offerings WHERE id = $1 FOR UPDATE`, id)
	return scanOne(row)
}

// List returns all offerings ordered by creation time.
func (r *Repository) List(ctx context.Context) ([]Offering, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+offeringColumns+` FROM offerings ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list offerings: %w", err)
	}
	defer rows.Close()

	var out []Offering
	for rows.Next() {
		var o Offering
		if err := rows.Scan(&o.ID, &o.Name, &o.Description, pq.Array(&o.SpecificationIDs),
			pq.Array(&o.PriceIDs), pq.Array(&o.SalesChannels),
			&o.LifecycleStatus, &o.Version, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan offering: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Insert writes a new offering inside tx.
func (r *Repository) Insert(ctx context.Context, tx *sql.Tx, o *Offering) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO offerings (`+offeringColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.ID, o.Name, o.Description, pq.Array(o.SpecificationIDs), pq.Array(o.PriceIDs),
		pq.Array(o.SalesChannels), o.LifecycleStatus, o.Version, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert offering: %w", err)
	}
	return nil
}

// Update rewrites an offering inside tx.
func (r *Repository) Update(ctx context.Context, tx *sql.Tx, o *Offering) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE offerings SET name = $1, description = $2, specification_ids = $3, price_ids = $4,
		   sales_channels = $5, lifecycle_status = $6, version = $7, updated_at = $8
		 WHERE id = $9`,
		o.Name, o.Description, pq.Array(o.SpecificationIDs), pq.Array(o.PriceIDs),
		pq.Array(o.SalesChannels), o.LifecycleStatus, o.Version, o.UpdatedAt, o.ID)
	if err != nil {
		return fmt.Errorf("update offering: %w", err)
	}
	return nil
}

// Delete removes an offering inside tx.
func (r *Repository) Delete(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM offerings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete offering: %w", err)
	}
	return nil
}

func scanOne(row *sql.Row) (*Offering, error) {
	var o Offering
	err := row.Scan(&o.ID, &o.Name, &o.Description, pq.Array(&o.SpecificationIDs),
		pq.Array(&o.PriceIDs), pq.Array(&o.SalesChannels),
		&o.LifecycleStatus, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "offering not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan offering: %w", err)
	}
	return &o, nil
}
