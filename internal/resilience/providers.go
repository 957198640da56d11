package resilience

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/larder/internal/observe"
	"github.com/MrWong99/larder/pkg/audio"
	"github.com/MrWong99/larder/pkg/provider/llm"
	"github.com/MrWong99/larder/pkg/provider/stt"
	"github.com/MrWong99/larder/pkg/provider/tts"
)

// ErrNoProviders is returned by the chain constructors when given nothing.
var ErrNoProviders = errors.New("resilience: no providers")

// Named pairs a provider with the name it is logged under.
type Named[T any] struct {
	Name     string
	Provider T
}

func newGroup[T any](kind string, cfg BreakerConfig, m *observe.Metrics, chain []Named[T]) (*Group[T], error) {
	if len(chain) == 0 {
		return nil, ErrNoProviders
	}
	g := NewGroup[T](kind, cfg, m)
	for _, n := range chain {
		g.Add(n.Name, n.Provider)
	}
	return g, nil
}

// ─── STT ─────────────────────────────────────────────────────────────────────

// Transcriber is an [stt.Transcriber] backed by a chain of transcribers.
type Transcriber struct {
	group *Group[stt.Transcriber]
}

var _ stt.Transcriber = (*Transcriber)(nil)

// NewTranscriber builds a chain, primary first.
func NewTranscriber(cfg BreakerConfig, m *observe.Metrics, chain ...Named[stt.Transcriber]) (*Transcriber, error) {
	g, err := newGroup("stt", cfg, m, chain)
	if err != nil {
		return nil, err
	}
	return &Transcriber{group: g}, nil
}

// Transcribe implements [stt.Transcriber].
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", stt.ErrEmptyAudio
	}
	return Call(ctx, t.group, func(ctx context.Context, tr stt.Transcriber) (string, error) {
		return tr.Transcribe(ctx, pcm)
	})
}

// Group exposes the chain for inspection.
func (t *Transcriber) Group() *Group[stt.Transcriber] { return t.group }

// ─── LLM ─────────────────────────────────────────────────────────────────────

// LLM is an [llm.Provider] backed by a chain of providers.
type LLM struct {
	group *Group[llm.Provider]
}

var _ llm.Provider = (*LLM)(nil)

// NewLLM builds a chain, primary first. Names default to each provider's
// Name.
func NewLLM(cfg BreakerConfig, m *observe.Metrics, providers ...llm.Provider) (*LLM, error) {
	chain := make([]Named[llm.Provider], len(providers))
	for i, p := range providers {
		chain[i] = Named[llm.Provider]{Name: p.Name(), Provider: p}
	}
	g, err := newGroup("llm", cfg, m, chain)
	if err != nil {
		return nil, err
	}
	return &LLM{group: g}, nil
}

// Complete implements [llm.Provider].
func (l *LLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Call(ctx, l.group, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Name lists the chain, for example "openai>anyllm".
func (l *LLM) Name() string { return strings.Join(l.group.Names(), ">") }

// Group exposes the chain for inspection.
func (l *LLM) Group() *Group[llm.Provider] { return l.group }

// ─── TTS ─────────────────────────────────────────────────────────────────────

// TTS is a [tts.Provider] backed by a chain of providers. Audio from a
// fallback with a different sample rate is resampled to the primary's rate.
type TTS struct {
	group *Group[tts.Provider]
	rate  int
}

var _ tts.Provider = (*TTS)(nil)

// NewTTS builds a chain, primary first.
func NewTTS(cfg BreakerConfig, m *observe.Metrics, providers ...tts.Provider) (*TTS, error) {
	chain := make([]Named[tts.Provider], len(providers))
	for i, p := range providers {
		chain[i] = Named[tts.Provider]{Name: p.Name(), Provider: p}
	}
	g, err := newGroup("tts", cfg, m, chain)
	if err != nil {
		return nil, err
	}
	return &TTS{group: g, rate: providers[0].SampleRate()}, nil
}

// Synthesize implements [tts.Provider].
func (t *TTS) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}
	return Call(ctx, t.group, func(ctx context.Context, p tts.Provider) ([]byte, error) {
		pcm, err := p.Synthesize(ctx, text, voice)
		if err != nil {
			return nil, err
		}
		if r := p.SampleRate(); r != t.rate {
			pcm = audio.SamplesToBytes(audio.ResampleMono16(audio.BytesToSamples(pcm), r, t.rate))
		}
		return pcm, nil
	})
}

// SampleRate returns the primary's rate.
func (t *TTS) SampleRate() int { return t.rate }

// Name lists the chain.
func (t *TTS) Name() string { return strings.Join(t.group.Names(), ">") }
