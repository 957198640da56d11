package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/larder/internal/observe"
)

// ErrAllFailed is returned when every member of a [Group] failed or was
// skipped by its breaker. The member errors are joined to it.
var ErrAllFailed = errors.New("resilience: all providers failed")

type member[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group is an ordered chain of interchangeable providers. The first member
// is the primary.
type Group[T any] struct {
	kind    string
	cfg     BreakerConfig
	metrics *observe.Metrics
	members []member[T]
}

// NewGroup returns an empty chain for providers of the given kind ("stt",
// "llm", "tts"). cfg is copied for every member's breaker.
func NewGroup[T any](kind string, cfg BreakerConfig, metrics *observe.Metrics) *Group[T] {
	return &Group[T]{kind: kind, cfg: cfg, metrics: metrics}
}

// Add appends a provider. Members are tried in the order they were added.
// Add must not be called concurrently with Call.
func (g *Group[T]) Add(name string, v T) {
	cfg := g.cfg
	cfg.Name = g.kind + "/" + name
	g.members = append(g.members, member[T]{name: name, value: v, breaker: NewBreaker(cfg)})
}

// Len returns the number of members.
func (g *Group[T]) Len() int { return len(g.members) }

// Names returns the member names in order.
func (g *Group[T]) Names() []string {
	names := make([]string, len(g.members))
	for i, m := range g.members {
		names[i] = m.name
	}
	return names
}

// Breaker returns the breaker of the named member, or nil.
func (g *Group[T]) Breaker(name string) *Breaker {
	for _, m := range g.members {
		if m.name == name {
			return m.breaker
		}
	}
	return nil
}

// Call runs fn against each member of g until one succeeds. It stops early
// when ctx ends.
func Call[T, R any](ctx context.Context, g *Group[T], fn func(ctx context.Context, v T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for _, m := range g.members {
		var out R
		err := m.breaker.Do(ctx, func(ctx context.Context) error {
			var err error
			out, err = fn(ctx, m.value)
			return err
		})
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: skipping provider", "kind", g.kind, "provider", m.name)
			continue
		}
		if g.metrics != nil {
			g.metrics.RecordProviderError(ctx, m.name, g.kind)
		}
		observe.Logger(ctx).Warn("resilience: provider failed, trying next",
			"kind", g.kind, "provider", m.name, "err", err)
	}
	return zero, errors.Join(append([]error{ErrAllFailed}, errs...)...)
}
