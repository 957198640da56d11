package pipeline

import (
	"context"

	"github.com/MrWong99/larder/pkg/types"
)

// Hooks receives user-interface notifications from the detection loop.
// Implementations must return quickly and must not block.
type Hooks interface {
	// OnWakeEnter is called when the wake phrase is verified.
	OnWakeEnter()

	// OnWakeExit is called when the command window times out.
	OnWakeExit()

	// OnIdleReset is called when an action or a processed recording returns
	// the pipeline to idle.
	OnIdleReset()
}

// StateObserver is optionally implemented by Hooks to observe every
// transition.
type StateObserver interface {
	OnStateChange(from, to State)
}

// NopHooks ignores every notification.
type NopHooks struct{}

func (NopHooks) OnWakeEnter() {}
func (NopHooks) OnWakeExit()  {}
func (NopHooks) OnIdleReset() {}

// IntentApplier turns a transcript into an inventory change.
type IntentApplier interface {
	ApplyIntent(ctx context.Context, text string, intent types.Intent) error
}

// IntentApplierFunc adapts a plain function to [IntentApplier].
type IntentApplierFunc func(ctx context.Context, text string, intent types.Intent) error

// ApplyIntent implements [IntentApplier].
func (f IntentApplierFunc) ApplyIntent(ctx context.Context, text string, intent types.Intent) error {
	return f(ctx, text, intent)
}

// Refresher redraws the inventory view after a recording was processed.
type Refresher interface {
	Refresh(ctx context.Context) error
}
