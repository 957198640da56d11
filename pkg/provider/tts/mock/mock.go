// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Audio: make([]byte, 3200)}
//	pcm, _ := p.Synthesize(ctx, "牛奶还有2天过期", "")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/larder/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Text  string
	Voice string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Audio is returned by every successful Synthesize call.
	Audio []byte

	// Err, if non-nil, is returned by Synthesize.
	Err error

	// Rate is returned by SampleRate. Defaults to 16000.
	Rate int

	// Calls records every invocation of Synthesize in order.
	Calls []SynthesizeCall
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize records the call and returns Audio or Err.
func (p *Provider) Synthesize(_ context.Context, text, voice string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, SynthesizeCall{Text: text, Voice: voice})
	if p.Err != nil {
		return nil, p.Err
	}
	return append([]byte(nil), p.Audio...), nil
}

// SampleRate implements tts.Provider.
func (p *Provider) SampleRate() int {
	if p.Rate <= 0 {
		return 16000
	}
	return p.Rate
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return "mock" }

// Texts returns the text of every Synthesize call.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Text
	}
	return out
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
