// Package migrations holds the per-service DDL applied by cmd/migrate.
// Statements are idempotent so re-running a migration is safe.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// outboxDDL is shared by every writer: the outbox table plus the NOTIFY
// trigger that wakes the dispatcher without waiting for the poll tick.
const outboxDDL = `
CREATE TABLE IF NOT EXISTS outbox (
    id            TEXT PRIMARY KEY,
    topic         TEXT NOT NULL,
    payload       JSONB NOT NULL,
    status        TEXT NOT NULL DEFAULT 'PENDING',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    processed_at  TIMESTAMPTZ,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_outbox_pending
    ON outbox (created_at) WHERE status = 'PENDING';

CREATE OR REPLACE FUNCTION notify_outbox_event() RETURNS trigger AS $$
BEGIN
    PERFORM pg_notify('outbox_events', NEW.id::text);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS outbox_notify ON outbox;
CREATE TRIGGER outbox_notify
    AFTER INSERT ON outbox
    FOR EACH ROW EXECUTE FUNCTION notify_outbox_event();
`

const characteristicDDL = `
CREATE TABLE IF NOT EXISTS characteristics (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    value      TEXT NOT NULL,
    unit       TEXT NOT NULL DEFAULT '',
    version    BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
`

const specificationDDL = `
CREATE TABLE IF NOT EXISTS specifications (
    id                 TEXT PRIMARY KEY,
    name               TEXT NOT NULL,
    description        TEXT NOT NULL DEFAULT '',
    characteristic_ids TEXT[] NOT NULL DEFAULT '{}',
    version            BIGINT NOT NULL,
    created_at         TIMESTAMPTZ NOT NULL,
    updated_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS cached_characteristics (
    id        TEXT PRIMARY KEY,
    name      TEXT NOT NULL,
    value     TEXT NOT NULL,
    unit      TEXT NOT NULL DEFAULT '',
    synced_at TIMESTAMPTZ NOT NULL
);
`

const pricingDDL = `
CREATE TABLE IF NOT EXISTS prices (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL UNIQUE,
    value          NUMERIC NOT NULL,
    unit           TEXT NOT NULL DEFAULT '',
    currency       TEXT NOT NULL,
    locked         BOOLEAN NOT NULL DEFAULT FALSE,
    locked_by_saga TEXT,
    version        BIGINT NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL
);
`

const offeringDDL = `
CREATE TABLE IF NOT EXISTS offerings (
    id                TEXT PRIMARY KEY,
    name              TEXT NOT NULL,
    description       TEXT NOT NULL DEFAULT '',
    specification_ids TEXT[] NOT NULL DEFAULT '{}',
    price_ids         TEXT[] NOT NULL DEFAULT '{}',
    sales_channels    TEXT[] NOT NULL DEFAULT '{}',
    lifecycle_status  TEXT NOT NULL DEFAULT 'DRAFT',
    version           BIGINT NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL
);
`

const identityDDL = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL
);
`

// schemas maps a service name to its DDL. Writers get the outbox alongside
// their entity tables.
var schemas = map[string][]string{
	"characteristic": {characteristicDDL, outboxDDL},
	"specification":  {specificationDDL, outboxDDL},
	"pricing":        {pricingDDL, outboxDDL},
	"offering":       {offeringDDL, outboxDDL},
	"identity":       {identityDDL},
}

// Services lists the migratable service names.
func Services() []string {
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	return names
}

// Apply runs the DDL for one service against db.
func Apply(ctx context.Context, db *sql.DB, service string) error {
	ddl, ok := schemas[service]
	if !ok {
		return fmt.Errorf("unknown service %q", service)
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply %s schema: %w", service, err)
		}
	}
	slog.Info("schema applied", "service", service)
	return nil
}
