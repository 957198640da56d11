package cloudsync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
)

var fixed = time.Unix(1772359200, 0)

func newTestQueue(t *testing.T, fsys afero.Fs) *Queue {
	t.Helper()
	q, err := NewQueue(fsys, "/spool/sync_queue.json", WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	return q
}

func TestQueue_FIFO(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t, afero.NewMemMapFs())
	ctx := context.Background()

	if _, err := q.Peek(); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("Peek on empty: err = %v", err)
	}
	if err := q.Enqueue(ctx, "add_item", map[string]any{"name": "牛奶", "quantity": 2}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, "clear", map[string]any{"count": 1}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if q.Len() != 2 {
		t.Fatalf("Len = %d, want 2", q.Len())
	}

	ev, err := q.Peek()
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if ev.Type != "add_item" || ev.TS != fixed.Unix() {
		t.Errorf("head = %+v", ev)
	}
	var payload map[string]any
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload["name"] != "牛奶" {
		t.Errorf("payload = %s, %v", ev.Payload, err)
	}

	if err := q.Pop(ctx); err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if ev, _ := q.Peek(); ev.Type != "clear" {
		t.Errorf("head after pop = %q, want clear", ev.Type)
	}
	if err := q.Pop(ctx); err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if err := q.Pop(ctx); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("Pop on empty: err = %v", err)
	}
}

func TestQueue_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	q := newTestQueue(t, fsys)
	ctx := context.Background()
	for _, typ := range []string{"add_item", "remove_item", "notified"} {
		if err := q.Enqueue(ctx, typ, map[string]any{"item_id": "x"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := q.Pop(ctx); err != nil {
		t.Fatal(err)
	}

	reopened := newTestQueue(t, fsys)
	if reopened.Len() != 2 {
		t.Fatalf("reopened Len = %d, want 2", reopened.Len())
	}
	if ev, _ := reopened.Peek(); ev.Type != "remove_item" {
		t.Errorf("reopened head = %q, want remove_item", ev.Type)
	}
}

func TestQueue_CorruptFileStartsEmpty(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "/spool/sync_queue.json", []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	q := newTestQueue(t, fsys)
	if q.Len() != 0 {
		t.Errorf("Len = %d, want 0", q.Len())
	}
	if err := q.Enqueue(context.Background(), "clear", nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
}

func TestQueue_UnencodablePayload(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t, afero.NewMemMapFs())
	if err := q.Enqueue(context.Background(), "bad", make(chan int)); err == nil {
		t.Fatal("expected encode error")
	}
	if q.Len() != 0 {
		t.Error("failed enqueue must not add an event")
	}
}

func TestNewQueue_Validation(t *testing.T) {
	t.Parallel()
	if _, err := NewQueue(nil, "/q.json"); err == nil {
		t.Error("expected error for nil filesystem")
	}
	if _, err := NewQueue(afero.NewMemMapFs(), ""); err == nil {
		t.Error("expected error for empty path")
	}
}
