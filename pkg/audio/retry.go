package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Default retry parameters for transient capture failures.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 10 * time.Millisecond
	defaultMaxBackoff = 500 * time.Millisecond
)

// ErrTransient marks a capture failure the device is expected to recover
// from, such as an input overflow. Wrap it with fmt.Errorf("...: %w", ...).
var ErrTransient = errors.New("audio: transient device error")

// RetryConfig configures a [RetrySource].
type RetryConfig struct {
	// MaxRetries is the number of consecutive transient failures tolerated on
	// a single Read. Defaults to 10 if zero.
	MaxRetries int

	// Backoff is the initial wait between attempts. Doubles each attempt up
	// to MaxBackoff. Defaults to 10ms if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on the wait. Defaults to 500ms if zero.
	MaxBackoff time.Duration

	// IsTransient classifies errors. Defaults to errors.Is(err, ErrTransient).
	IsTransient func(error) bool
}

// RetrySource wraps a Source and retries transient read failures with
// exponential backoff, so callers only ever see permanent errors.
type RetrySource struct {
	Source
	cfg RetryConfig
}

var _ Source = (*RetrySource)(nil)

// NewRetrySource wraps src with the given retry policy.
func NewRetrySource(src Source, cfg RetryConfig) *RetrySource {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.IsTransient == nil {
		cfg.IsTransient = func(err error) bool { return errors.Is(err, ErrTransient) }
	}
	return &RetrySource{Source: src, cfg: cfg}
}

// Read implements [Source]. Transient errors are retried up to MaxRetries
// times; the last error is returned once the budget is exhausted.
func (r *RetrySource) Read(ctx context.Context, buf []int16) error {
	backoff := r.cfg.Backoff
	var err error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		err = r.Source.Read(ctx, buf)
		if err == nil || !r.cfg.IsTransient(err) {
			return err
		}

		slog.Debug("audio read failed, retrying",
			"attempt", attempt+1,
			"max_retries", r.cfg.MaxRetries,
			"backoff", backoff,
			"err", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > r.cfg.MaxBackoff {
			backoff = r.cfg.MaxBackoff
		}
	}
	return fmt.Errorf("audio: read failed after %d retries: %w", r.cfg.MaxRetries, err)
}
