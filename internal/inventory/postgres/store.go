// Package postgres provides a PostgreSQL-backed [inventory.Store].
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/larder/internal/inventory"
)

var _ inventory.Store = (*Store)(nil)

// Store implements [inventory.Store] on a single inventory_items table.
// All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewStore connects to the database at dsn, verifies the connection and runs
// [Migrate].
func NewStore(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	s := &Store{pool: pool, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for expiry arithmetic.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

const selectColumns = `id, name, category, quantity, unit, location, added_at,
       shelf_life_days, expires_at, last_notified_days, notes, photo_url`

// Add implements [inventory.Store].
func (s *Store) Add(ctx context.Context, item inventory.Item) (inventory.Item, error) {
	it, err := inventory.Prepare(item, s.now())
	if err != nil {
		return inventory.Item{}, err
	}
	const q = `
		INSERT INTO inventory_items
		    (id, name, category, quantity, unit, location, added_at,
		     shelf_life_days, expires_at, last_notified_days, notes, photo_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = s.pool.Exec(ctx, q,
		it.ID,
		it.Name,
		it.Category,
		it.Quantity,
		it.Unit,
		it.Location,
		it.AddedAt,
		it.ShelfLifeDays,
		it.ExpiresAt,
		it.LastNotifiedRemainingDays,
		it.Notes,
		it.PhotoURL,
	)
	if err != nil {
		return inventory.Item{}, fmt.Errorf("postgres store: add: %w", err)
	}
	return it, nil
}

// Remove implements [inventory.Store]. Matching happens in Go over the rows
// locked by SELECT ... FOR UPDATE, so concurrent removals serialize.
func (s *Store) Remove(ctx context.Context, name string, quantity int) (inventory.Removal, error) {
	if quantity <= 0 {
		return inventory.Removal{}, inventory.ErrInvalidQuantity
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return inventory.Removal{}, fmt.Errorf("postgres store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, "SELECT "+selectColumns+" FROM inventory_items FOR UPDATE")
	if err != nil {
		return inventory.Removal{}, fmt.Errorf("postgres store: lock items: %w", err)
	}
	items, err := collectItems(rows)
	if err != nil {
		return inventory.Removal{}, err
	}

	inventory.SortByExpiry(items, s.now())
	_, r, err := inventory.PlanRemoval(items, name, quantity)
	if err != nil {
		return inventory.Removal{}, err
	}
	if r.Deleted {
		_, err = tx.Exec(ctx, "DELETE FROM inventory_items WHERE id = $1", r.Item.ID)
	} else {
		_, err = tx.Exec(ctx, "UPDATE inventory_items SET quantity = $2 WHERE id = $1", r.Item.ID, r.Item.Quantity)
	}
	if err != nil {
		return inventory.Removal{}, fmt.Errorf("postgres store: remove: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return inventory.Removal{}, fmt.Errorf("postgres store: commit: %w", err)
	}
	return r, nil
}

// Get implements [inventory.Store].
func (s *Store) Get(ctx context.Context, id string) (inventory.Item, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+selectColumns+" FROM inventory_items WHERE id = $1", id)
	if err != nil {
		return inventory.Item{}, fmt.Errorf("postgres store: get: %w", err)
	}
	items, err := collectItems(rows)
	if err != nil {
		return inventory.Item{}, err
	}
	if len(items) == 0 {
		return inventory.Item{}, inventory.ErrNotFound
	}
	return items[0], nil
}

// List implements [inventory.Store].
func (s *Store) List(ctx context.Context) ([]inventory.Item, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+selectColumns+" FROM inventory_items ORDER BY expires_at, name")
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	items, err := collectItems(rows)
	if err != nil {
		return nil, err
	}
	inventory.SortByExpiry(items, s.now())
	return items, nil
}

// Clear implements [inventory.Store].
func (s *Store) Clear(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM inventory_items")
	if err != nil {
		return 0, fmt.Errorf("postgres store: clear: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// MarkNotified implements [inventory.Store].
func (s *Store) MarkNotified(ctx context.Context, id string, remainingDays int) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE inventory_items SET last_notified_days = $2 WHERE id = $1", id, remainingDays)
	if err != nil {
		return fmt.Errorf("postgres store: mark notified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return inventory.ErrNotFound
	}
	return nil
}

// Ping implements [inventory.Store].
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements [inventory.Store].
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// collectItems scans pgx rows into inventory items.
func collectItems(rows pgx.Rows) ([]inventory.Item, error) {
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.Item, error) {
		var it inventory.Item
		err := row.Scan(
			&it.ID,
			&it.Name,
			&it.Category,
			&it.Quantity,
			&it.Unit,
			&it.Location,
			&it.AddedAt,
			&it.ShelfLifeDays,
			&it.ExpiresAt,
			&it.LastNotifiedRemainingDays,
			&it.Notes,
			&it.PhotoURL,
		)
		return it, err
	})
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres store: scan rows: %w", err)
	}
	if items == nil {
		items = []inventory.Item{}
	}
	return items, nil
}
