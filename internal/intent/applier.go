// Package intent applies transcribed voice recordings to the inventory.
//
// Each recording carries the [types.Intent] chosen by the voice command that
// started it. Add and remove utterances are first sent to a language model
// for structured extraction; when the model is unavailable, fails, or finds
// no item name, a local keyword parser takes over so the kitchen keeps
// working offline.
package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/larder/internal/inventory"
	"github.com/MrWong99/larder/internal/observe"
	"github.com/MrWong99/larder/internal/pipeline"
	"github.com/MrWong99/larder/pkg/provider/llm"
	"github.com/MrWong99/larder/pkg/types"
)

var (
	// ErrEmptyTranscript is returned for a recording in which nothing was
	// recognised.
	ErrEmptyTranscript = errors.New("intent: empty transcript")

	// ErrNotUnderstood is returned when neither the model nor the local
	// parser could find an item name.
	ErrNotUnderstood = errors.New("intent: no item in transcript")

	// ErrUnknownIntent is returned for an intent this package does not
	// handle.
	ErrUnknownIntent = errors.New("intent: unknown intent")
)

// Publisher shows what was heard. The UI hub implements it.
type Publisher interface {
	PublishTranscript(text string, intent types.Intent)
}

// Option configures an [Applier].
type Option func(*Applier)

// WithLLM enables model-based extraction. Without it only the local parser
// runs.
func WithLLM(p llm.Provider) Option {
	return func(a *Applier) {
		if p != nil {
			a.extractor = NewExtractor(p)
		}
	}
}

// WithPublisher sets the transcript publisher.
func WithPublisher(p Publisher) Option {
	return func(a *Applier) { a.publisher = p }
}

// WithClock replaces time.Now, which dates the model prompt and resolves
// expiry dates.
func WithClock(now func() time.Time) Option {
	return func(a *Applier) { a.now = now }
}

// Applier implements [pipeline.IntentApplier] on an inventory store.
type Applier struct {
	store     inventory.Store
	extractor *Extractor
	publisher Publisher
	now       func() time.Time
}

var _ pipeline.IntentApplier = (*Applier)(nil)

// New returns an Applier that writes to store.
func New(store inventory.Store, opts ...Option) (*Applier, error) {
	if store == nil {
		return nil, errors.New("intent: store must not be nil")
	}
	a := &Applier{store: store, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// ApplyIntent implements [pipeline.IntentApplier].
func (a *Applier) ApplyIntent(ctx context.Context, text string, intent types.Intent) error {
	text = strings.TrimSpace(text)
	ctx = observe.WithFields(ctx, slog.String("intent", intent.String()))
	log := observe.Logger(ctx)
	if a.publisher != nil {
		a.publisher.PublishTranscript(text, intent)
	}
	if text == "" {
		return ErrEmptyTranscript
	}

	switch intent {
	case types.IntentGenericTest:
		log.Info("intent: test transcript", "text", text)
		return nil
	case types.IntentAddItem:
		it, err := a.add(ctx, text)
		if err != nil {
			return err
		}
		log.Info("intent: added item", "name", it.Name, "quantity", it.Quantity, "expires_at", it.ExpiresAt.Format(time.DateOnly))
		return nil
	case types.IntentRemoveItem:
		r, err := a.remove(ctx, text)
		if err != nil {
			return err
		}
		log.Info("intent: removed item", "name", r.Item.Name, "removed", r.Removed, "deleted", r.Deleted)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownIntent, intent)
	}
}

func (a *Applier) add(ctx context.Context, text string) (inventory.Item, error) {
	now := a.now()
	var it inventory.Item
	if a.extractor != nil {
		var err error
		it, err = a.extractor.ExtractAdd(ctx, text, now)
		if err != nil {
			observe.Logger(ctx).Warn("intent: model extraction failed, using local parser", "err", err)
		}
	}
	if it.Name == "" {
		parsed, ok := ParseAdd(text, now)
		if !ok {
			return inventory.Item{}, fmt.Errorf("%w: %q", ErrNotUnderstood, text)
		}
		it = parsed
	}
	it.AddedAt = now
	stored, err := a.store.Add(ctx, it)
	if err != nil {
		return inventory.Item{}, fmt.Errorf("intent: add %q: %w", it.Name, err)
	}
	return stored, nil
}

func (a *Applier) remove(ctx context.Context, text string) (inventory.Removal, error) {
	var (
		name     string
		quantity int
	)
	if a.extractor != nil {
		var err error
		name, quantity, err = a.extractor.ExtractRemove(ctx, text)
		if err != nil {
			observe.Logger(ctx).Warn("intent: model extraction failed, using local parser", "err", err)
		}
	}
	if name == "" {
		var ok bool
		name, quantity, ok = ParseRemove(text)
		if !ok {
			return inventory.Removal{}, fmt.Errorf("%w: %q", ErrNotUnderstood, text)
		}
	}
	r, err := a.store.Remove(ctx, name, quantity)
	if err != nil {
		return inventory.Removal{}, fmt.Errorf("intent: remove %q: %w", name, err)
	}
	return r, nil
}
