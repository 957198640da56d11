package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

var itemPrefix = []byte("item/")

// conflictRetries bounds retries of a read-modify-write transaction that
// lost a race with a concurrent writer.
const conflictRetries = 3

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Dir is the database directory. Required unless InMemory is set.
	Dir string

	// InMemory runs badger without touching disk. Used by tests.
	InMemory bool
}

// BadgerStore is a [Store] on an embedded badger database. Each item is one
// msgpack-encoded value under "item/<id>".
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) the database described by cfg.
func NewBadgerStore(cfg BadgerConfig, opts ...Option) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("inventory: badger directory is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(cfg.Dir).WithLogger(badgerLogger{})
	if cfg.InMemory {
		dbOpts = badger.DefaultOptions("").
			WithInMemory(true).
			WithMemTableSize(8 << 20).
			WithLogger(badgerLogger{})
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("inventory: open badger: %w", err)
	}
	o := buildOptions(opts)
	return &BadgerStore{db: db, now: o.now}, nil
}

func itemKey(id string) []byte {
	return append(append([]byte{}, itemPrefix...), id...)
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for range conflictRetries {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func putItem(txn *badger.Txn, it Item) error {
	data, err := msgpack.Marshal(it)
	if err != nil {
		return fmt.Errorf("inventory: encode item: %w", err)
	}
	return txn.Set(itemKey(it.ID), data)
}

func getItem(txn *badger.Txn, id string) (Item, error) {
	entry, err := txn.Get(itemKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, err
	}
	var it Item
	err = entry.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, &it)
	})
	return it, err
}

func loadItems(txn *badger.Txn) ([]Item, error) {
	iterOpts := badger.DefaultIteratorOptions
	iterOpts.Prefix = itemPrefix
	iter := txn.NewIterator(iterOpts)
	defer iter.Close()

	items := []Item{}
	for iter.Seek(itemPrefix); iter.ValidForPrefix(itemPrefix); iter.Next() {
		var it Item
		if err := iter.Item().Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &it)
		}); err != nil {
			return nil, fmt.Errorf("inventory: decode %s: %w", iter.Item().Key(), err)
		}
		items = append(items, it)
	}
	return items, nil
}

// Add implements [Store].
func (s *BadgerStore) Add(_ context.Context, item Item) (Item, error) {
	it, err := Prepare(item, s.now())
	if err != nil {
		return Item{}, err
	}
	if err := s.update(func(txn *badger.Txn) error { return putItem(txn, it) }); err != nil {
		return Item{}, fmt.Errorf("inventory: add: %w", err)
	}
	return it, nil
}

// Remove implements [Store].
func (s *BadgerStore) Remove(_ context.Context, name string, quantity int) (Removal, error) {
	var r Removal
	err := s.update(func(txn *badger.Txn) error {
		items, err := loadItems(txn)
		if err != nil {
			return err
		}
		SortByExpiry(items, s.now())
		_, r, err = PlanRemoval(items, name, quantity)
		if err != nil {
			return err
		}
		if r.Deleted {
			return txn.Delete(itemKey(r.Item.ID))
		}
		return putItem(txn, r.Item)
	})
	if err != nil {
		return Removal{}, err
	}
	return r, nil
}

// Get implements [Store].
func (s *BadgerStore) Get(_ context.Context, id string) (Item, error) {
	var it Item
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		it, err = getItem(txn, id)
		return err
	})
	return it, err
}

// List implements [Store].
func (s *BadgerStore) List(_ context.Context) ([]Item, error) {
	var items []Item
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		items, err = loadItems(txn)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("inventory: list: %w", err)
	}
	SortByExpiry(items, s.now())
	return items, nil
}

// Clear implements [Store].
func (s *BadgerStore) Clear(_ context.Context) (int, error) {
	var n int
	err := s.update(func(txn *badger.Txn) error {
		n = 0
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = itemPrefix
		iterOpts.PrefetchValues = false
		iter := txn.NewIterator(iterOpts)
		var keys [][]byte
		for iter.Seek(itemPrefix); iter.ValidForPrefix(itemPrefix); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		iter.Close()
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		n = len(keys)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("inventory: clear: %w", err)
	}
	return n, nil
}

// MarkNotified implements [Store].
func (s *BadgerStore) MarkNotified(_ context.Context, id string, remainingDays int) error {
	return s.update(func(txn *badger.Txn) error {
		it, err := getItem(txn, id)
		if err != nil {
			return err
		}
		it.LastNotifiedRemainingDays = remainingDays
		return putItem(txn, it)
	})
}

// Ping implements [Store].
func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("inventory: badger database is closed")
	}
	return nil
}

// Close implements [Store].
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's log output to slog, dropping its chatty
// info and debug lines.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...any)   { slog.Error("badger: " + fmt.Sprintf(f, v...)) }
func (badgerLogger) Warningf(f string, v ...any) { slog.Warn("badger: " + fmt.Sprintf(f, v...)) }
func (badgerLogger) Infof(string, ...any)        {}
func (badgerLogger) Debugf(string, ...any)       {}
