package config

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
)

const watchPath = "/etc/larder.yaml"

var mtime0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func writeConfig(t *testing.T, fsys afero.Fs, doc string, mtime time.Time) {
	t.Helper()
	if err := afero.WriteFile(fsys, watchPath, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := fsys.Chtimes(watchPath, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

type changeLog struct {
	mu    sync.Mutex
	pairs [][2]*Config
}

func (l *changeLog) record(old, cur *Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pairs = append(l.pairs, [2]*Config{old, cur})
}

func (l *changeLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pairs)
}

func TestWatcher_Check(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeConfig(t, fsys, "server:\n  log_level: info\n", mtime0)

	var log changeLog
	w, err := NewWatcher(watchPath, log.record, WithFs(fsys))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if w.Current().Server.LogLevel != LogInfo {
		t.Fatalf("initial level = %q", w.Current().Server.LogLevel)
	}

	if w.Check() {
		t.Error("Check reported a change for an untouched file")
	}

	// Touched but identical content.
	writeConfig(t, fsys, "server:\n  log_level: info\n", mtime0.Add(time.Second))
	if w.Check() {
		t.Error("Check reported a change for identical content")
	}

	// Invalid content keeps the old config.
	writeConfig(t, fsys, "server:\n  log_level: loud\n", mtime0.Add(2*time.Second))
	if w.Check() {
		t.Error("invalid config applied")
	}
	if w.Current().Server.LogLevel != LogInfo {
		t.Errorf("level = %q after invalid reload", w.Current().Server.LogLevel)
	}

	writeConfig(t, fsys, "server:\n  log_level: debug\n", mtime0.Add(3*time.Second))
	if !w.Check() {
		t.Fatal("valid change not applied")
	}
	if w.Current().Server.LogLevel != LogDebug {
		t.Errorf("level = %q, want debug", w.Current().Server.LogLevel)
	}
	if log.len() != 1 {
		t.Fatalf("onChange calls = %d, want 1", log.len())
	}
	if old := log.pairs[0][0]; old.Server.LogLevel != LogInfo {
		t.Errorf("old level = %q", old.Server.LogLevel)
	}
}

func TestWatcher_Run(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeConfig(t, fsys, "", mtime0)

	changed := make(chan *Config, 1)
	w, err := NewWatcher(watchPath, func(_, cur *Config) { changed <- cur },
		WithFs(fsys), WithInterval(5*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	writeConfig(t, fsys, "notify:\n  threshold_days: 1\n", mtime0.Add(time.Minute))
	select {
	case cfg := <-changed:
		if cfg.Notify.ThresholdDays != 1 {
			t.Errorf("threshold = %d", cfg.Notify.ThresholdDays)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestNewWatcher_InvalidInitial(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeConfig(t, fsys, "bogus: true\n", mtime0)
	if _, err := NewWatcher(watchPath, nil, WithFs(fsys)); err == nil {
		t.Fatal("expected error for invalid initial config")
	}
}
