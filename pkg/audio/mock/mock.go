// Package mock provides in-memory implementations of [audio.Source] and
// [audio.Sink] for unit tests.
//
// Both mocks are safe for concurrent use and record every call.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/larder/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a scripted [audio.Source]. Each Read consumes the next entry of
// Frames (copied into the caller's buffer, zero padded). When Frames is
// exhausted Read blocks until ctx is cancelled, mimicking a silent device.
type Source struct {
	mu sync.Mutex

	// ChannelCount is returned by Channels. Defaults to 1.
	ChannelCount int

	// Frame is returned by FrameSize. Defaults to 512.
	Frame int

	// Rate is returned by SampleRate. Defaults to 16000.
	Rate int

	// Frames is the scripted capture. Consumed from the front.
	Frames [][]int16

	// ReadErrs, if non-empty, are returned by successive Read calls before
	// any frame is consumed. A nil entry means "read normally".
	ReadErrs []error

	// CloseErr is returned by Close.
	CloseErr error

	// ReadCalls counts Read invocations.
	ReadCalls int

	// ReadLens records len(buf) for every Read.
	ReadLens []int

	// Closed reports whether Close was called.
	Closed bool
}

var _ audio.Source = (*Source)(nil)

// Channels implements [audio.Source].
func (s *Source) Channels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ChannelCount <= 0 {
		return 1
	}
	return s.ChannelCount
}

// FrameSize implements [audio.Source].
func (s *Source) FrameSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Frame <= 0 {
		return 512
	}
	return s.Frame
}

// SampleRate implements [audio.Source].
func (s *Source) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Rate <= 0 {
		return 16000
	}
	return s.Rate
}

// Read implements [audio.Source].
func (s *Source) Read(ctx context.Context, buf []int16) error {
	s.mu.Lock()
	s.ReadCalls++
	s.ReadLens = append(s.ReadLens, len(buf))
	if s.Closed {
		s.mu.Unlock()
		return audio.ErrClosed
	}
	if len(s.ReadErrs) > 0 {
		err := s.ReadErrs[0]
		s.ReadErrs = s.ReadErrs[1:]
		if err != nil {
			s.mu.Unlock()
			return err
		}
	}
	if len(s.Frames) > 0 {
		f := s.Frames[0]
		s.Frames = s.Frames[1:]
		s.mu.Unlock()
		n := copy(buf, f)
		clear(buf[n:])
		return nil
	}
	s.mu.Unlock()

	<-ctx.Done()
	return ctx.Err()
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return s.CloseErr
}

// Calls returns the number of Read invocations so far.
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ReadCalls
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink is a recording [audio.Sink].
type Sink struct {
	mu sync.Mutex

	// Rate is returned by SampleRate. Defaults to 16000.
	Rate int

	// PlayErr is returned by Play.
	PlayErr error

	// Played holds a copy of every buffer passed to Play.
	Played [][]byte

	// Closed reports whether Close was called.
	Closed bool
}

var _ audio.Sink = (*Sink)(nil)

// Play implements [audio.Sink].
func (s *Sink) Play(_ context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.Played = append(s.Played, cp)
	return s.PlayErr
}

// SampleRate implements [audio.Sink].
func (s *Sink) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Rate <= 0 {
		return 16000
	}
	return s.Rate
}

// Close implements [audio.Sink].
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// PlayCount returns how many buffers have been played.
func (s *Sink) PlayCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Played)
}
