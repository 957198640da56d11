package pipeline

import (
	"context"
	"log/slog"
	"sync"
)

// taskRunner runs at most one background task at a time. Tasks inherit the
// context passed to start, which is the pipeline's root context.
type taskRunner struct {
	mu      sync.Mutex
	running string
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// start launches fn unless a task is already in flight. It reports whether
// the task was started.
func (r *taskRunner) start(ctx context.Context, name string, fn ActionFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running != "" {
		slog.Info("pipeline: background task already running", "task", r.running, "requested", name)
		return false
	}

	tctx, cancel := context.WithCancel(ctx)
	r.running = name
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			r.running = ""
			r.cancel = nil
			r.mu.Unlock()
			cancel()
		}()
		defer func() {
			if v := recover(); v != nil {
				slog.Error("pipeline: background task panicked", "task", name, "panic", v)
			}
		}()
		if err := fn(tctx); err != nil && tctx.Err() == nil {
			slog.Warn("pipeline: background task failed", "task", name, "err", err)
		}
	}()
	return true
}

// busy reports whether a task is in flight.
func (r *taskRunner) busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running != ""
}

// stop cancels the running task, if any, and waits for it to return.
func (r *taskRunner) stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}
