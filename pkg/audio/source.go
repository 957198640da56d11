// Package audio provides the capture and playback abstractions used by the
// voice pipeline, plus PCM helpers shared by recognizers and transcribers.
//
// All audio handled here is little-endian signed 16-bit PCM. Sources deliver
// interleaved samples as []int16; transcription backends receive raw bytes.
package audio

import (
	"context"
	"errors"
)

// ErrClosed is returned by Read and Play after the device has been closed.
var ErrClosed = errors.New("audio: device closed")

// Source is a blocking capture device.
//
// Implementations need not be safe for concurrent Read calls; the feed loop
// is the only reader.
type Source interface {
	// Channels returns the number of interleaved channels delivered by Read.
	Channels() int

	// FrameSize returns the device's natural period in samples per channel.
	FrameSize() int

	// SampleRate returns the capture rate in Hz.
	SampleRate() int

	// Read fills buf completely with interleaved samples. It blocks until the
	// buffer is full, ctx is cancelled or the device fails. len(buf) must be
	// a multiple of Channels().
	Read(ctx context.Context, buf []int16) error

	// Close releases the device. Further reads return ErrClosed.
	Close() error
}

// Sink plays raw PCM audio.
type Sink interface {
	// Play writes pcm (mono 16-bit at the sink's rate) and blocks until the
	// audio has been queued to the device or ctx is cancelled.
	Play(ctx context.Context, pcm []byte) error

	// SampleRate returns the rate pcm must be encoded at.
	SampleRate() int

	// Close releases the device.
	Close() error
}
