package inventory

import (
	"context"
	"slices"
	"sync"
	"time"
)

// listStore is the slice-backed core shared by MemoryStore and FileStore.
// Every mutation builds the next slice, hands it to persist and only then
// commits it, so a failed write leaves the store unchanged.
type listStore struct {
	mu      sync.RWMutex
	items   []Item
	now     func() time.Time
	persist func([]Item) error
}

func (s *listStore) commit(next []Item) error {
	if s.persist != nil {
		if err := s.persist(next); err != nil {
			return err
		}
	}
	s.items = next
	return nil
}

// Add implements [Store].
func (s *listStore) Add(_ context.Context, item Item) (Item, error) {
	it, err := Prepare(item, s.now())
	if err != nil {
		return Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := append(slices.Clone(s.items), it)
	if err := s.commit(next); err != nil {
		return Item{}, err
	}
	return it, nil
}

// Remove implements [Store].
func (s *listStore) Remove(_ context.Context, name string, quantity int) (Removal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := slices.Clone(s.items)
	SortByExpiry(next, s.now())
	i, r, err := PlanRemoval(next, name, quantity)
	if err != nil {
		return Removal{}, err
	}
	if r.Deleted {
		next = slices.Delete(next, i, i+1)
	} else {
		next[i] = r.Item
	}
	if err := s.commit(next); err != nil {
		return Removal{}, err
	}
	return r, nil
}

// Get implements [Store].
func (s *listStore) Get(_ context.Context, id string) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.items {
		if it.ID == id {
			return it, nil
		}
	}
	return Item{}, ErrNotFound
}

// List implements [Store].
func (s *listStore) List(_ context.Context) ([]Item, error) {
	s.mu.RLock()
	out := slices.Clone(s.items)
	s.mu.RUnlock()
	if out == nil {
		out = []Item{}
	}
	SortByExpiry(out, s.now())
	return out, nil
}

// Clear implements [Store].
func (s *listStore) Clear(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.items)
	if err := s.commit([]Item{}); err != nil {
		return 0, err
	}
	return n, nil
}

// MarkNotified implements [Store].
func (s *listStore) MarkNotified(_ context.Context, id string, remainingDays int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.items, func(it Item) bool { return it.ID == id })
	if i < 0 {
		return ErrNotFound
	}
	next := slices.Clone(s.items)
	next[i].LastNotifiedRemainingDays = remainingDays
	return s.commit(next)
}

// Ping implements [Store]. The in-process list is always reachable.
func (s *listStore) Ping(context.Context) error { return nil }

// MemoryStore is a volatile [Store]. The zero value is not usable; call
// NewMemoryStore.
type MemoryStore struct {
	listStore
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{listStore{now: o.now}}
}

// Close implements [Store].
func (s *MemoryStore) Close() error { return nil }
