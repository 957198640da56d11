package notify_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/larder/internal/inventory"
	"github.com/MrWong99/larder/internal/notify"
)

type fakeSpeaker struct {
	mu     sync.Mutex
	said   []string
	failOn string
}

func (f *fakeSpeaker) Say(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && text == f.failOn {
		return errors.New("speaker busy")
	}
	f.said = append(f.said, text)
	return nil
}

func (f *fakeSpeaker) Said() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.said...)
}

type countingRefresher struct{ n atomic.Int32 }

func (c *countingRefresher) Refresh(context.Context) error {
	c.n.Add(1)
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setup(t *testing.T) (*inventory.MemoryStore, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	store := inventory.NewMemoryStore(inventory.WithClock(clk.Now))
	add := func(name string, days int) {
		if _, err := store.Add(context.Background(), inventory.Item{Name: name, ShelfLifeDays: days}); err != nil {
			t.Fatal(err)
		}
	}
	add("豆腐", 2)
	add("牛奶", 3)
	add("黄油", 20)
	return store, clk
}

func TestCheck_AnnouncesOncePerRemainingDays(t *testing.T) {
	t.Parallel()

	store, clk := setup(t)
	sp := &fakeSpeaker{}
	ref := &countingRefresher{}
	n, err := notify.New(store, sp, notify.Config{ThresholdDays: 3},
		notify.WithClock(clk.Now), notify.WithRefresher(ref))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	got, err := n.Check(ctx)
	if err != nil || got != 2 {
		t.Fatalf("first Check = %d, %v; want 2", got, err)
	}
	want := []string{"豆腐 将在 2 天后过期", "牛奶 将在 3 天后过期"}
	said := sp.Said()
	if len(said) != 2 || said[0] != want[0] || said[1] != want[1] {
		t.Fatalf("said = %v, want %v", said, want)
	}
	if ref.n.Load() != 1 {
		t.Errorf("refreshes = %d, want 1", ref.n.Load())
	}

	// Same remaining days: nothing new to say.
	if got, _ := n.Check(ctx); got != 0 {
		t.Errorf("repeat Check announced %d items", got)
	}
	if ref.n.Load() != 1 {
		t.Error("refresh must only follow announcements")
	}

	// A day later both items move down one day.
	clk.Advance(24 * time.Hour)
	if got, _ := n.Check(ctx); got != 2 {
		t.Errorf("next-day Check = %d, want 2", got)
	}
	said = sp.Said()
	if said[2] != "豆腐 将在 1 天后过期" {
		t.Errorf("said[2] = %q", said[2])
	}

	items, _ := store.List(ctx)
	if items[0].LastNotifiedRemainingDays != 1 {
		t.Errorf("LastNotified = %d, want 1", items[0].LastNotifiedRemainingDays)
	}
}

func TestCheck_ExpiredItem(t *testing.T) {
	t.Parallel()

	store, clk := setup(t)
	clk.Advance(5 * 24 * time.Hour)
	sp := &fakeSpeaker{}
	n, _ := notify.New(store, sp, notify.Config{ThresholdDays: 0}, notify.WithClock(clk.Now))

	if got, err := n.Check(context.Background()); err != nil || got != 2 {
		t.Fatalf("Check = %d, %v; want 2", got, err)
	}
	if said := sp.Said(); said[0] != "豆腐 今天过期" {
		t.Errorf("said = %v", said)
	}
}

func TestCheck_FailedAnnouncementIsRetried(t *testing.T) {
	t.Parallel()

	store, clk := setup(t)
	sp := &fakeSpeaker{failOn: "豆腐 将在 2 天后过期"}
	n, _ := notify.New(store, sp, notify.Config{ThresholdDays: 3}, notify.WithClock(clk.Now))
	ctx := context.Background()

	got, err := n.Check(ctx)
	if err == nil || got != 1 {
		t.Fatalf("Check = %d, %v; want 1 announced and an error", got, err)
	}

	sp.mu.Lock()
	sp.failOn = ""
	sp.mu.Unlock()
	if got, err := n.Check(ctx); err != nil || got != 1 {
		t.Fatalf("retry Check = %d, %v; want 1", got, err)
	}
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	store, clk := setup(t)
	sp := &fakeSpeaker{}
	n, _ := notify.New(store, sp, notify.Config{ThresholdDays: 1}, notify.WithClock(clk.Now))

	if got, _ := n.Check(context.Background()); got != 0 {
		t.Fatalf("Check with threshold 1 = %d, want 0", got)
	}
	n.Update(time.Minute, 30)
	if got, _ := n.Check(context.Background()); got != 3 {
		t.Fatalf("Check with threshold 30 = %d, want 3", got)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	store, clk := setup(t)
	sp := &fakeSpeaker{}
	n, _ := notify.New(store, sp, notify.Config{Interval: time.Hour, ThresholdDays: 3}, notify.WithClock(clk.Now))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(sp.Said()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sp.Said()) != 2 {
		t.Errorf("said = %v, want the initial scan", sp.Said())
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	store := inventory.NewMemoryStore()
	if _, err := notify.New(nil, &fakeSpeaker{}, notify.Config{}); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := notify.New(store, nil, notify.Config{}); err == nil {
		t.Error("expected error for nil speaker")
	}
}
