// Package cloudsync mirrors inventory changes to a remote backend.
//
// Changes are appended to a persistent FIFO [Queue] (a JSON array in one
// file) so nothing is lost while the network is down. A [Worker] posts the
// head event to the backend and removes it only after a 2xx response.
package cloudsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/MrWong99/larder/internal/inventory"
	"github.com/MrWong99/larder/internal/observe"
)

// ErrQueueEmpty is returned by Peek and Pop on an empty queue.
var ErrQueueEmpty = errors.New("cloudsync: queue is empty")

// Event is one queued change.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	TS      int64           `json:"ts"`
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) { q.now = now }
}

// WithMetrics sets the metrics the pending gauge is recorded on.
func WithMetrics(m *observe.Metrics) QueueOption {
	return func(q *Queue) { q.metrics = m }
}

// Queue is a persistent FIFO of events. It is safe for concurrent use;
// every mutation rewrites the file through a temporary file and a rename.
type Queue struct {
	mu      sync.Mutex
	fs      afero.Fs
	path    string
	events  []Event
	now     func() time.Time
	metrics *observe.Metrics
}

var _ inventory.EventSink = (*Queue)(nil)

// NewQueue opens the queue file at path on fsys. A missing file is an empty
// queue. An unreadable file is logged and replaced by an empty queue so one
// corrupt write cannot stop syncing forever.
func NewQueue(fsys afero.Fs, path string, opts ...QueueOption) (*Queue, error) {
	if fsys == nil {
		return nil, errors.New("cloudsync: filesystem must not be nil")
	}
	if path == "" {
		return nil, errors.New("cloudsync: queue path must not be empty")
	}
	q := &Queue{fs: fsys, path: path, now: time.Now}
	for _, o := range opts {
		o(q)
	}
	if q.metrics == nil {
		q.metrics = observe.DefaultMetrics()
	}

	dir := filepath.Dir(path)
	if exists, _ := afero.DirExists(fsys, dir); !exists {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cloudsync: create %s: %w", dir, err)
		}
	}

	data, err := afero.ReadFile(fsys, path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("cloudsync: read %s: %w", path, err)
	case len(data) > 0:
		if err := json.Unmarshal(data, &q.events); err != nil {
			slog.Warn("cloudsync: discarding unreadable queue", "path", path, "err", err)
			q.events = nil
		}
	}
	q.record(context.Background())
	return q, nil
}

// Enqueue appends an event. payload is encoded as JSON. It implements
// [inventory.EventSink].
func (q *Queue) Enqueue(ctx context.Context, eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("cloudsync: encode %s payload: %w", eventType, err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	next := append(append(make([]Event, 0, len(q.events)+1), q.events...), Event{
		Type:    eventType,
		Payload: raw,
		TS:      q.now().Unix(),
	})
	if err := q.write(next); err != nil {
		return err
	}
	q.events = next
	q.record(ctx)
	return nil
}

// Peek returns the oldest event without removing it.
func (q *Queue) Peek() (Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return Event{}, ErrQueueEmpty
	}
	return q.events[0], nil
}

// Pop removes the oldest event.
func (q *Queue) Pop(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return ErrQueueEmpty
	}
	next := append([]Event(nil), q.events[1:]...)
	if err := q.write(next); err != nil {
		return err
	}
	q.events = next
	q.record(ctx)
	return nil
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func (q *Queue) write(events []Event) error {
	if events == nil {
		events = []Event{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("cloudsync: encode queue: %w", err)
	}
	tmp := q.path + ".tmp"
	if err := afero.WriteFile(q.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("cloudsync: write %s: %w", tmp, err)
	}
	if err := q.fs.Rename(tmp, q.path); err != nil {
		return fmt.Errorf("cloudsync: replace %s: %w", q.path, err)
	}
	return nil
}

func (q *Queue) record(ctx context.Context) {
	q.metrics.SyncPending.Record(ctx, int64(len(q.events)))
}
