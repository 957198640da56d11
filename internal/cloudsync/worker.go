package cloudsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/MrWong99/larder/internal/observe"
)

// Default worker timings.
const (
	DefaultInterval   = 30 * time.Second
	DefaultMinBackoff = time.Second
	DefaultMaxBackoff = 30 * time.Second
)

// WorkerConfig configures a [Worker].
type WorkerConfig struct {
	// URL receives one POST per event with the event JSON as body. Required.
	URL string

	// Interval is the wait after the queue has been drained. Defaults to
	// DefaultInterval.
	Interval time.Duration

	// MinBackoff is the first wait after a failed post. It doubles on every
	// consecutive failure up to MaxBackoff.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// Client is the HTTP client. Defaults to a client with a 15 s timeout.
	Client *http.Client
}

// Worker drains a Queue into the backend.
type Worker struct {
	queue   *Queue
	cfg     WorkerConfig
	metrics *observe.Metrics
}

// NewWorker returns a worker for q.
func NewWorker(q *Queue, cfg WorkerConfig) (*Worker, error) {
	if q == nil {
		return nil, errors.New("cloudsync: queue must not be nil")
	}
	if cfg.URL == "" {
		return nil, errors.New("cloudsync: sync URL must not be empty")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = DefaultMinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = max(DefaultMaxBackoff, cfg.MinBackoff)
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Worker{queue: q, cfg: cfg, metrics: q.metrics}, nil
}

// Run posts queued events until ctx is cancelled. It always returns nil
// after cancellation; delivery failures are retried, never returned.
func (w *Worker) Run(ctx context.Context) error {
	backoff := w.cfg.MinBackoff
	for {
		wait := w.cfg.Interval
		sent, err := w.Flush(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			slog.Warn("cloudsync: sync failed, will retry",
				"sent", sent,
				"pending", w.queue.Len(),
				"backoff", backoff,
				"err", err,
			)
			wait = backoff
			backoff = min(backoff*2, w.cfg.MaxBackoff)
		default:
			if sent > 0 {
				slog.Info("cloudsync: synced events", "count", sent)
			}
			backoff = w.cfg.MinBackoff
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// Flush posts events oldest first until the queue is empty or a post fails.
// It returns how many events were delivered.
func (w *Worker) Flush(ctx context.Context) (int, error) {
	sent := 0
	for {
		ev, err := w.queue.Peek()
		if errors.Is(err, ErrQueueEmpty) {
			return sent, nil
		}
		if err := w.post(ctx, ev); err != nil {
			return sent, err
		}
		if err := w.queue.Pop(ctx); err != nil {
			return sent, err
		}
		sent++
	}
}

func (w *Worker) post(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("cloudsync: encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("cloudsync: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := w.cfg.Client.Do(req)
	if err != nil {
		w.metrics.RecordProviderError(ctx, "cloudsync", "sync")
		return fmt.Errorf("cloudsync: post %s: %w", ev.Type, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		w.metrics.RecordProviderRequest(ctx, "cloudsync", "sync", "error")
		return fmt.Errorf("cloudsync: post %s: unexpected status %d", ev.Type, resp.StatusCode)
	}
	w.metrics.RecordProviderRequest(ctx, "cloudsync", "sync", "ok")
	return nil
}
