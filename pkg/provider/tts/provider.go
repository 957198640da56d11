// Package tts defines the Provider interface for Text-to-Speech backends.
//
// larder speaks short announcements: expiry reminders and the opening of a
// recipe suggestion. Providers synthesize a whole utterance into 16-bit mono
// PCM which the speech package plays through the audio output.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyText is returned when Synthesize is called with blank text.
var ErrEmptyText = errors.New("tts: empty text")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the given voice and returns little-endian
	// signed 16-bit mono PCM at SampleRate. An empty voice selects the
	// provider default.
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)

	// SampleRate is the rate of the PCM returned by Synthesize.
	SampleRate() int

	// Name identifies the backend in logs and metrics.
	Name() string
}
