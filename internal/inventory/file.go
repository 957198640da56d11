package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// FileStore is a [Store] persisted as a JSON array in a single file. Every
// mutation rewrites the file through a temporary file and a rename.
type FileStore struct {
	listStore
	fs   afero.Fs
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore opens the inventory file at path on fsys, creating its
// directory when missing. A missing file is an empty inventory.
func NewFileStore(fsys afero.Fs, path string, opts ...Option) (*FileStore, error) {
	if fsys == nil {
		return nil, errors.New("inventory: filesystem must not be nil")
	}
	if path == "" {
		return nil, errors.New("inventory: file path must not be empty")
	}
	o := buildOptions(opts)
	s := &FileStore{fs: fsys, path: path}
	s.now = o.now
	s.persist = s.write

	dir := filepath.Dir(path)
	if exists, _ := afero.DirExists(fsys, dir); !exists {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("inventory: create %s: %w", dir, err)
		}
	}

	items, err := s.read()
	if err != nil {
		return nil, err
	}
	s.items = items
	slog.Debug("inventory: loaded file store", "path", path, "items", len(items))
	return s, nil
}

func (s *FileStore) read() ([]Item, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, os.ErrNotExist) {
		return []Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("inventory: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return []Item{}, nil
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("inventory: decode %s: %w", s.path, err)
	}
	for i := range items {
		if items[i].ExpiresAt.IsZero() {
			items[i].ExpiresAt = items[i].AddedAt.Add(time.Duration(items[i].ShelfLifeDays) * day)
		}
	}
	return items, nil
}

func (s *FileStore) write(items []Item) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("inventory: encode: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("inventory: write %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("inventory: replace %s: %w", s.path, err)
	}
	return nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Close implements [Store]. Every mutation is already on disk.
func (s *FileStore) Close() error { return nil }
