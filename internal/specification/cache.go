package specification

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/procat/backend/internal/events"
)

// Cache is the local table of known-valid characteristic ids, kept current by
// consuming the characteristic event stream. Staleness can only cause
// spurious rejections, never accepted-invalid references; the characteristic
// writer stays authoritative.
type Cache struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewCache wraps a database handle.
func NewCache(db *sql.DB) *Cache {
	return &Cache{db: db, logger: slog.Default().With("component", "characteristic_cache")}
}

// Missing returns the subset of ids absent from the cache.
func (c *Cache) Missing(ctx context.Context, ids []string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id FROM cached_characteristics WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query cached characteristics: %w", err)
	}
	defer rows.Close()

	known := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cached characteristic: %w", err)
		}
		known[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []string
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

type cachedCharacteristic struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value string `json:"value"`
	Unit  string `json:"unit"`
}

// HandleEvent applies one characteristic event to the cache: upsert on
// Created/Updated, delete on Deleted. Unknown event types are ignored.
func (c *Cache) HandleEvent(ctx context.Context, env events.Envelope) error {
	switch env.EventType {
	case events.CharacteristicCreated, events.CharacteristicUpdated:
		var payload cachedCharacteristic
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return fmt.Errorf("%w: decode characteristic payload: %v", events.ErrUnprocessable, err)
		}
		return c.upsert(ctx, payload)
	case events.CharacteristicDeleted:
		var payload struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return fmt.Errorf("%w: decode characteristic payload: %v", events.ErrUnprocessable, err)
		}
		return c.delete(ctx, payload.ID)
	default:
		c.logger.Debug("ignoring event", "event_type", env.EventType)
		return nil
	}
}

func (c *Cache) upsert(ctx context.Context, payload cachedCharacteristic) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO cached_characteristics (id, name, value, unit, synced_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET name = $2, value = $3, unit = $4, synced_at = $5`,
		payload.ID, payload.Name, payload.Value, payload.Unit, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert cached characteristic: %w", err)
	}
	return nil
}

func (c *Cache) delete(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM cached_characteristics WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete cached characteristic: %w", err)
	}
	return nil
}
