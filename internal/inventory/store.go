package inventory

import (
	"context"
	"time"
)

// Store persists inventory items. All implementations are safe for
// concurrent use.
type Store interface {
	// Add stores a new item, filling in its ID, added time, shelf life and
	// expiry, and returns the stored item. Returns ErrInvalidItem when the
	// item has no name.
	Add(ctx context.Context, item Item) (Item, error)

	// Remove takes quantity units of the item best matching name (see
	// BestMatch), deleting the item when nothing is left. Returns ErrNotFound
	// when no item matches and ErrInvalidQuantity for quantity < 1.
	Remove(ctx context.Context, name string, quantity int) (Removal, error)

	// Get returns the item with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (Item, error)

	// List returns every item, nearest expiry first.
	List(ctx context.Context) ([]Item, error)

	// Clear deletes every item and returns how many there were.
	Clear(ctx context.Context) (int, error)

	// MarkNotified records the remaining-days value announced for item id.
	MarkNotified(ctx context.Context, id string, remainingDays int) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now. Used by tests to pin expiry arithmetic.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
