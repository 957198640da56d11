// Package inventory keeps track of what is in the fridge: items, their
// quantities and when they expire.
//
// Four [Store] backends share the same semantics: [MemoryStore] for tests,
// [FileStore] for a JSON file on any afero filesystem, [BadgerStore] for an
// embedded key-value database, and the postgres subpackage for a shared
// database. [Tracked] wraps any of them to publish change events for cloud
// sync and keep the item gauge current.
package inventory

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxShelfLifeDays caps shelf lives and remaining days so a misparsed year
// cannot produce absurd values.
const MaxShelfLifeDays = 365

// NeverNotified is the LastNotifiedRemainingDays value of an item that has
// not been announced yet.
const NeverNotified = -1

const day = 24 * time.Hour

var (
	// ErrNotFound is returned when no item matches an ID or name.
	ErrNotFound = errors.New("inventory: item not found")

	// ErrInvalidItem is returned by Add for an item without a name.
	ErrInvalidItem = errors.New("inventory: item has no name")

	// ErrInvalidQuantity is returned by Remove for a quantity below one.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
)

// Item is one batch of food in the inventory.
type Item struct {
	ID            string    `json:"item_id" msgpack:"id"`
	Name          string    `json:"name" msgpack:"name"`
	Category      string    `json:"category,omitempty" msgpack:"category,omitempty"`
	Quantity      int       `json:"quantity" msgpack:"quantity"`
	Unit          string    `json:"unit,omitempty" msgpack:"unit,omitempty"`
	Location      string    `json:"location,omitempty" msgpack:"location,omitempty"`
	AddedAt       time.Time `json:"added_at" msgpack:"added_at"`
	ShelfLifeDays int       `json:"shelf_life_days" msgpack:"shelf_life_days"`
	ExpiresAt     time.Time `json:"expires_at" msgpack:"expires_at"`

	// LastNotifiedRemainingDays is the remaining-days value at the last
	// spoken reminder, or NeverNotified.
	LastNotifiedRemainingDays int `json:"last_notified_remaining_days" msgpack:"last_notified"`

	Notes    string `json:"notes,omitempty" msgpack:"notes,omitempty"`
	PhotoURL string `json:"photo_url,omitempty" msgpack:"photo_url,omitempty"`
}

// RemainingDays returns the whole days until expiry, rounded up and clamped
// to [0, MaxShelfLifeDays]. 2.1 days left is reported as 3.
func (it Item) RemainingDays(now time.Time) int {
	diff := it.ExpiresAt.Sub(now)
	if diff <= 0 {
		return 0
	}
	days := int(math.Ceil(diff.Hours() / 24))
	return min(days, MaxShelfLifeDays)
}

// DefaultShelfLife returns the shelf life in days assumed for category when
// none was given.
func DefaultShelfLife(category string) int {
	c := strings.ToLower(category)
	has := func(keys ...string) bool {
		for _, k := range keys {
			if strings.Contains(c, k) {
				return true
			}
		}
		return false
	}
	switch {
	case has("牛奶", "乳", "奶", "dairy", "milk"):
		return 7
	case has("肉", "鸡", "鱼", "meat", "poultry", "fish"):
		return 3
	case has("蔬", "果", "vegetable", "fruit", "produce"):
		return 5
	case has("熟食", "cooked"):
		return 2
	case has("冷冻", "冰", "frozen"):
		return 30
	default:
		return 7
	}
}

// Prepare validates a new item and fills in its derived fields: ID, added
// time, shelf life and expiry. An explicit expiry wins and derives the shelf
// life; otherwise the shelf life (or the category default) derives the
// expiry.
func Prepare(it Item, now time.Time) (Item, error) {
	it.Name = strings.TrimSpace(it.Name)
	if it.Name == "" {
		return Item{}, ErrInvalidItem
	}
	if it.Quantity <= 0 {
		it.Quantity = 1
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.AddedAt.IsZero() {
		it.AddedAt = now
	}

	if !it.ExpiresAt.IsZero() {
		if it.ShelfLifeDays <= 0 {
			it.ShelfLifeDays = int(it.ExpiresAt.Sub(it.AddedAt) / day)
		}
		it.ShelfLifeDays = min(max(it.ShelfLifeDays, 0), MaxShelfLifeDays)
	} else {
		if it.ShelfLifeDays <= 0 {
			it.ShelfLifeDays = DefaultShelfLife(it.Category)
		}
		it.ShelfLifeDays = min(it.ShelfLifeDays, MaxShelfLifeDays)
		it.ExpiresAt = it.AddedAt.Add(time.Duration(it.ShelfLifeDays) * day)
	}

	it.LastNotifiedRemainingDays = NeverNotified
	return it, nil
}
