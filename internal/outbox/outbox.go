// Package outbox implements the transactional outbox: rows written in the
// same transaction as the entity mutation, drained to the broker by a
// dispatcher with at-least-once semantics.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/procat/backend/internal/events"
)

// Row statuses. A row becomes SENT only after the broker acknowledged the
// publish; FAILED is reserved for terminal logical errors.
const (
	StatusPending = "PENDING"
	StatusSent    = "SENT"
	StatusFailed  = "FAILED"
)

// Record is one outbox row.
type Record struct {
	ID           string
	Topic        string
	Payload      []byte
	Status       string
	CreatedAt    time.Time
	ProcessedAt  sql.NullTime
	ErrorMessage sql.NullString
}

// Store reads and mutates outbox rows. Add runs inside the caller's
// transaction; the marking methods autocommit so a crash mid-drain cannot
// affect adjacent rows.
type Store struct {
	db *sql.DB
}

// NewStore wraps a database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Add inserts a PENDING row for the given envelope inside tx. It must be
// called in the same transaction that mutated the owning entity.
func (s *Store) Add(tx *sql.Tx, topic string, env events.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO outbox (id, topic, payload, status, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), topic, payload, StatusPending, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox row: %w", err)
	}
	return nil
}

// Pending returns all PENDING rows in insertion order.
func (s *Store) Pending(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic, payload, status, created_at FROM outbox
		 WHERE status = $1 ORDER BY created_at ASC`, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox rows: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Topic, &r.Payload, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkSent transitions a row to SENT and stamps processed_at.
func (s *Store) MarkSent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET status = $1, processed_at = $2 WHERE id = $3`,
		StatusSent, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark outbox row sent: %w", err)
	}
	return nil
}

// MarkFailed transitions a row to FAILED with the terminal reason.
func (s *Store) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET status = $1, processed_at = $2, error_message = $3 WHERE id = $4`,
		StatusFailed, time.Now().UTC(), reason, id)
	if err != nil {
		return fmt.Errorf("mark outbox row failed: %w", err)
	}
	return nil
}
