// Package mock provides a test double for [stt.Transcriber].
//
// Example:
//
//	tr := &mock.Transcriber{Text: "放入 牛奶 两盒"}
//	text, _ := tr.Transcribe(ctx, pcm)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/larder/pkg/provider/stt"
)

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Text is returned by every Transcribe call unless Texts is non-empty.
	Text string

	// Texts, if non-empty, is consumed one entry per call before falling
	// back to Text.
	Texts []string

	// Err, if non-nil, is returned instead of a transcript.
	Err error

	// Block, if non-nil, makes Transcribe wait until it is closed or ctx is
	// cancelled.
	Block chan struct{}

	// Panic, if non-empty, makes Transcribe panic with this value.
	Panic string

	// Calls records a copy of the audio passed to every call.
	Calls [][]byte
}

var _ stt.Transcriber = (*Transcriber)(nil)

// Transcribe records the call and returns the scripted result.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	t.mu.Lock()
	t.Calls = append(t.Calls, append([]byte(nil), pcm...))
	block := t.Block
	panicMsg := t.Panic
	t.mu.Unlock()

	if panicMsg != "" {
		panic(panicMsg)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return "", t.Err
	}
	if len(t.Texts) > 0 {
		text := t.Texts[0]
		t.Texts = t.Texts[1:]
		return text, nil
	}
	return t.Text, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (t *Transcriber) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = nil
}
