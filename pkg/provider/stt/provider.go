// Package stt defines the Transcriber interface for speech-to-text backends.
//
// A Transcriber takes one complete utterance of mono 16 kHz little-endian
// 16-bit PCM and returns its text. Calls may take seconds (network round trip
// or local inference) and must honour ctx cancellation.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned when Transcribe is called with no samples.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Transcriber is the abstraction over any batch speech-to-text backend.
type Transcriber interface {
	// Transcribe returns the text spoken in pcm. An utterance that contains
	// no recognisable speech yields "" and a nil error.
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}

// TranscriberFunc adapts a plain function to the Transcriber interface.
type TranscriberFunc func(ctx context.Context, pcm []byte) (string, error)

// Transcribe implements [Transcriber].
func (f TranscriberFunc) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	return f(ctx, pcm)
}
