// Package notify announces food that is about to expire.
//
// A [Notifier] scans the inventory on a fixed interval. Every item whose
// remaining days fall to the threshold or below is announced once per
// remaining-days value: an item at 3 days is spoken once, and again when it
// reaches 2.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/larder/internal/inventory"
	"github.com/MrWong99/larder/internal/observe"
)

// Defaults match a twice-daily scan with a three-day warning window.
const (
	DefaultInterval      = 12 * time.Hour
	DefaultThresholdDays = 3
)

// Speaker speaks an announcement.
type Speaker interface {
	Say(ctx context.Context, text string) error
}

// Refresher redraws the inventory view.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Config configures a Notifier.
type Config struct {
	// Interval between scans. Defaults to DefaultInterval.
	Interval time.Duration

	// ThresholdDays is the remaining-days value at or below which items are
	// announced. Negative values select DefaultThresholdDays.
	ThresholdDays int

	// Message formats the announcement. Defaults to DefaultMessage.
	Message func(name string, remainingDays int) string
}

// DefaultMessage is the default announcement text.
func DefaultMessage(name string, remainingDays int) string {
	if remainingDays <= 0 {
		return fmt.Sprintf("%s 今天过期", name)
	}
	return fmt.Sprintf("%s 将在 %d 天后过期", name, remainingDays)
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithRefresher redraws the view after announcements.
func WithRefresher(r Refresher) Option {
	return func(n *Notifier) { n.refresher = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// WithMetrics sets the metrics announcements are counted on.
func WithMetrics(m *observe.Metrics) Option {
	return func(n *Notifier) { n.metrics = m }
}

// Notifier periodically announces expiring items.
type Notifier struct {
	store     inventory.Store
	speaker   Speaker
	refresher Refresher
	now       func() time.Time
	metrics   *observe.Metrics

	mu  sync.Mutex
	cfg Config
}

// New returns a Notifier reading from store and announcing through speaker.
func New(store inventory.Store, speaker Speaker, cfg Config, opts ...Option) (*Notifier, error) {
	if store == nil {
		return nil, errors.New("notify: store must not be nil")
	}
	if speaker == nil {
		return nil, errors.New("notify: speaker must not be nil")
	}
	n := &Notifier{store: store, speaker: speaker, now: time.Now, cfg: normalize(cfg)}
	for _, o := range opts {
		o(n)
	}
	if n.metrics == nil {
		n.metrics = observe.DefaultMetrics()
	}
	return n, nil
}

func normalize(cfg Config) Config {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ThresholdDays < 0 {
		cfg.ThresholdDays = DefaultThresholdDays
	}
	if cfg.Message == nil {
		cfg.Message = DefaultMessage
	}
	return cfg
}

// Update replaces the interval and threshold. It takes effect after the
// current wait. Used by the config watcher.
func (n *Notifier) Update(interval time.Duration, thresholdDays int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	cfg := n.cfg
	cfg.Interval = interval
	cfg.ThresholdDays = thresholdDays
	n.cfg = normalize(cfg)
	slog.Info("notify: settings updated", "interval", n.cfg.Interval, "threshold_days", n.cfg.ThresholdDays)
}

func (n *Notifier) config() Config {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cfg
}

// Run scans immediately and then once per interval until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		if _, err := n.Check(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("notify: check failed", "err", err)
		}
		t := time.NewTimer(n.config().Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// Check runs one scan and returns how many items were announced. An item
// whose announcement fails is not marked and will be retried next scan.
func (n *Notifier) Check(ctx context.Context) (int, error) {
	cfg := n.config()
	items, err := n.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("notify: list inventory: %w", err)
	}

	now := n.now()
	announced := 0
	var errs []error
	for _, it := range items {
		days := it.RemainingDays(now)
		if days > cfg.ThresholdDays || it.LastNotifiedRemainingDays == days {
			continue
		}
		msg := cfg.Message(it.Name, days)
		if err := n.speaker.Say(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("announce %q: %w", it.Name, err))
			continue
		}
		if err := n.store.MarkNotified(ctx, it.ID, days); err != nil {
			errs = append(errs, fmt.Errorf("mark %q: %w", it.Name, err))
			continue
		}
		slog.Info("notify: announced expiring item", "id", it.ID, "name", it.Name, "remaining_days", days)
		n.metrics.Notifications.Add(ctx, 1)
		announced++
	}

	if announced > 0 && n.refresher != nil {
		if err := n.refresher.Refresh(ctx); err != nil {
			errs = append(errs, fmt.Errorf("refresh: %w", err))
		}
	}
	if len(errs) > 0 {
		return announced, fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return announced, nil
}
