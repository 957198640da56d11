package audio_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/larder/pkg/audio"
	"github.com/MrWong99/larder/pkg/audio/mock"
)

func TestRetrySource_AbsorbsTransientErrors(t *testing.T) {
	t.Parallel()

	overflow := fmt.Errorf("overflow: %w", audio.ErrTransient)
	src := &mock.Source{
		Frames:   [][]int16{{7, 8}},
		ReadErrs: []error{overflow, overflow},
	}
	rs := audio.NewRetrySource(src, audio.RetryConfig{Backoff: time.Millisecond})

	buf := make([]int16, 2)
	if err := rs.Read(context.Background(), buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if buf[0] != 7 || buf[1] != 8 {
		t.Errorf("buf = %v, want [7 8]", buf)
	}
	if got := src.Calls(); got != 3 {
		t.Errorf("read calls = %d, want 3", got)
	}
}

func TestRetrySource_PermanentErrorPassesThrough(t *testing.T) {
	t.Parallel()

	boom := errors.New("device unplugged")
	src := &mock.Source{ReadErrs: []error{boom}}
	rs := audio.NewRetrySource(src, audio.RetryConfig{Backoff: time.Millisecond})

	err := rs.Read(context.Background(), make([]int16, 4))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if got := src.Calls(); got != 1 {
		t.Errorf("read calls = %d, want 1", got)
	}
}

func TestRetrySource_GivesUpAfterBudget(t *testing.T) {
	t.Parallel()

	overflow := fmt.Errorf("overflow: %w", audio.ErrTransient)
	errs := make([]error, 5)
	for i := range errs {
		errs[i] = overflow
	}
	src := &mock.Source{ReadErrs: errs}
	rs := audio.NewRetrySource(src, audio.RetryConfig{MaxRetries: 2, Backoff: time.Millisecond})

	err := rs.Read(context.Background(), make([]int16, 4))
	if !errors.Is(err, audio.ErrTransient) {
		t.Fatalf("err = %v, want wrapped ErrTransient", err)
	}
	if got := src.Calls(); got != 3 {
		t.Errorf("read calls = %d, want 3", got)
	}
}

func TestRetrySource_StopsOnCancel(t *testing.T) {
	t.Parallel()

	overflow := fmt.Errorf("overflow: %w", audio.ErrTransient)
	src := &mock.Source{ReadErrs: []error{overflow}}
	rs := audio.NewRetrySource(src, audio.RetryConfig{Backoff: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rs.Read(ctx, make([]int16, 4)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
