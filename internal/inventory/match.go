package inventory

import (
	"sort"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
)

// MatchThreshold is the minimum Jaro-Winkler similarity for a fuzzy name
// match.
const MatchThreshold = 0.85

// BestMatch returns the index of the item in items that query names.
//
// An item whose name contains the query (or is contained in it) always wins
// over a fuzzy match; among those an exact name wins, then the shortest name.
// Without a substring match the highest Jaro-Winkler similarity at or above
// MatchThreshold wins. Ties keep the earlier item, so callers that pass items
// sorted by expiry take from the batch that expires first.
func BestMatch(items []Item, query string) (int, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return -1, false
	}

	best, bestLen := -1, 0
	for i, it := range items {
		name := strings.ToLower(it.Name)
		if name == q {
			return i, true
		}
		if strings.Contains(name, q) || strings.Contains(q, name) {
			if best < 0 || len(name) < bestLen {
				best, bestLen = i, len(name)
			}
		}
	}
	if best >= 0 {
		return best, true
	}

	bestScore := 0.0
	for i, it := range items {
		score := matchr.JaroWinkler(strings.ToLower(it.Name), q, false)
		if score >= MatchThreshold && score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, best >= 0
}

// SortByExpiry orders items by remaining days, then expiry time, then name.
func SortByExpiry(items []Item, now time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := items[i].RemainingDays(now), items[j].RemainingDays(now)
		if ri != rj {
			return ri < rj
		}
		if !items[i].ExpiresAt.Equal(items[j].ExpiresAt) {
			return items[i].ExpiresAt.Before(items[j].ExpiresAt)
		}
		return items[i].Name < items[j].Name
	})
}

// Removal describes the effect of Store.Remove.
type Removal struct {
	// Item is the matched item. When Deleted is false its Quantity is the
	// amount left.
	Item Item

	// Removed is how many units were taken out.
	Removed int

	// Deleted reports whether the whole item was removed.
	Deleted bool
}

// PlanRemoval finds the item to take quantity from. items must already be
// sorted by expiry. The returned index refers to items.
func PlanRemoval(items []Item, name string, quantity int) (int, Removal, error) {
	if quantity <= 0 {
		return -1, Removal{}, ErrInvalidQuantity
	}
	i, ok := BestMatch(items, name)
	if !ok {
		return -1, Removal{}, ErrNotFound
	}
	it := items[i]
	if quantity < it.Quantity {
		it.Quantity -= quantity
		return i, Removal{Item: it, Removed: quantity}, nil
	}
	return i, Removal{Item: it, Removed: it.Quantity, Deleted: true}, nil
}
