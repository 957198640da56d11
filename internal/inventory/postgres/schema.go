package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlItems = `
CREATE TABLE IF NOT EXISTS inventory_items (
    id                  TEXT         PRIMARY KEY,
    name                TEXT         NOT NULL,
    category            TEXT         NOT NULL DEFAULT '',
    quantity            INTEGER      NOT NULL CHECK (quantity > 0),
    unit                TEXT         NOT NULL DEFAULT '',
    location            TEXT         NOT NULL DEFAULT '',
    added_at            TIMESTAMPTZ  NOT NULL DEFAULT now(),
    shelf_life_days     INTEGER      NOT NULL DEFAULT 0,
    expires_at          TIMESTAMPTZ  NOT NULL,
    last_notified_days  INTEGER      NOT NULL DEFAULT -1,
    notes               TEXT         NOT NULL DEFAULT '',
    photo_url           TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_inventory_items_expires_at
    ON inventory_items (expires_at);

CREATE INDEX IF NOT EXISTS idx_inventory_items_name
    ON inventory_items (lower(name));
`

// Migrate creates the inventory table and its indexes. It is idempotent and
// safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlItems); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
