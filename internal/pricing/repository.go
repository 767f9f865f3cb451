package pricing

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/procat/backend/internal/apperr"
)

const priceColumns = `id, name, value, unit, currency, locked, locked_by_saga, version, created_at, updated_at`

// Repository persists prices. A unique index on name backs the duplicate-name
// conflict; lock state lives in the same row so acquisition is atomic.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps a database handle.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying handle for transaction management.
func (r *Repository) DB() *sql.DB { return r.db }

// Get loads one price by id.
func (r *Repository) Get(ctx context.Context, id string) (*Price, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+priceColumns+` FROM prices WHERE id = $1`, id)
	return scanOne(row)
}

// GetForUpdate loads one price inside tx with a row lock.
func (r *Repository) GetForUpdate(ctx context.Context, tx *sql.Tx, id string) (*Price, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+priceColumns+` FROM prices WHERE id = $1 FOR UPDATE`, id)
	return scanOne(row)
}

// List returns all prices ordered by creation time.
func (r *Repository) List(ctx context.Context) ([]Price, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+priceColumns+` FROM prices ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}
	defer rows.Close()

	var out []Price
	for rows.Next() {
		p, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Insert writes a new price inside tx. A duplicate name maps to CONFLICT.
func (r *Repository) Insert(ctx context.Context, tx *sql.Tx, p *Price) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO prices (`+priceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.Name, p.Value, p.Unit, p.Currency, p.Locked, nullable(p.LockedBySaga),
		p.Version, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.Newf(apperr.KindConflict, "price name %q already exists", p.Name)
	}
	if err != nil {
		return fmt.Errorf("insert price: %w", err)
	}
	return nil
}

// Update rewrites a price inside tx.
func (r *Repository) Update(ctx context.Context, tx *sql.Tx, p *Price) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE prices SET name = $1, value = $2, unit = $3, currency = $4,
		   locked = $5, locked_by_saga = $6, version = $7, updated_at = $8
		 WHERE id = $9`,
		p.Name, p.Value, p.Unit, p.Currency, p.Locked, nullable(p.LockedBySaga),
		p.Version, p.UpdatedAt, p.ID)
	if isUniqueViolation(err) {
		return apperr.Newf(apperr.KindConflict, "price name %q already exists", p.Name)
	}
	if err != nil {
		return fmt.Errorf("update price: %w", err)
	}
	return nil
}

// Delete removes a price inside tx.
func (r *Repository) Delete(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM prices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete price: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRow(row scanner) (*Price, error) {
	var p Price
	var lockedBy sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Value, &p.Unit, &p.Currency, &p.Locked, &lockedBy,
		&p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.LockedBySaga = lockedBy.String
	return &p, nil
}

func scanOne(row *sql.Row) (*Price, error) {
	p, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "price not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan price: %w", err)
	}
	return p, nil
}
