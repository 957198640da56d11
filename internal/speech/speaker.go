// Package speech speaks short announcements through the audio output.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/larder/internal/observe"
	"github.com/MrWong99/larder/pkg/audio"
	"github.com/MrWong99/larder/pkg/provider/tts"
)

// Option configures a Speaker.
type Option func(*Speaker)

// WithVoice selects the TTS voice. Empty uses the provider default.
func WithVoice(voice string) Option {
	return func(s *Speaker) { s.voice = voice }
}

// WithMetrics sets the metrics synthesis latency is recorded on.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Speaker) { s.metrics = m }
}

// Speaker synthesizes text and plays it. Calls to Say are serialized so
// announcements never overlap.
type Speaker struct {
	mu      sync.Mutex
	tts     tts.Provider
	sink    audio.Sink
	voice   string
	metrics *observe.Metrics
}

// New returns a Speaker that renders with p and plays on sink.
func New(p tts.Provider, sink audio.Sink, opts ...Option) (*Speaker, error) {
	if p == nil {
		return nil, errors.New("speech: tts provider must not be nil")
	}
	if sink == nil {
		return nil, errors.New("speech: audio sink must not be nil")
	}
	s := &Speaker{tts: p, sink: sink}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// Say speaks text and returns once it has been queued to the device.
func (s *Speaker) Say(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return tts.ErrEmptyText
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	pcm, err := s.tts.Synthesize(ctx, text, s.voice)
	s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(ctx, s.tts.Name(), "tts")
		return fmt.Errorf("speech: synthesize: %w", err)
	}
	s.metrics.RecordProviderRequest(ctx, s.tts.Name(), "tts", "ok")

	if from, to := s.tts.SampleRate(), s.sink.SampleRate(); from != to && from > 0 {
		pcm = audio.SamplesToBytes(audio.ResampleMono16(audio.BytesToSamples(pcm), from, to))
	}
	if err := s.sink.Play(ctx, pcm); err != nil {
		return fmt.Errorf("speech: play: %w", err)
	}
	return nil
}

// Truncate returns the first limit characters of text. Cutting happens on
// rune boundaries so multi-byte text stays valid.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i]
		}
		n++
	}
	return text
}
