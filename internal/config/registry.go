package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MrWong99/larder/pkg/provider/llm"
	"github.com/MrWong99/larder/pkg/provider/stt"
	"github.com/MrWong99/larder/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// is registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its configuration entry.
type Factory[T any] func(ProviderEntry) (T, error)

type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func (f *factories[T]) create(e ProviderEntry) (T, error) {
	factory, ok := f.m[e.Name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, e.Name)
	}
	p, err := factory(e)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("config: create %s/%s: %w", f.kind, e.Name, err)
	}
	return p, nil
}

func (f *factories[T]) names() []string {
	out := make([]string, 0, len(f.m))
	for n := range f.m {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Registry maps provider names to factories. Registering a name twice
// replaces the earlier factory. Safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	stt factories[stt.Transcriber]
	llm factories[llm.Provider]
	tts factories[tts.Provider]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		stt: factories[stt.Transcriber]{kind: "stt", m: map[string]Factory[stt.Transcriber]{}},
		llm: factories[llm.Provider]{kind: "llm", m: map[string]Factory[llm.Provider]{}},
		tts: factories[tts.Provider]{kind: "tts", m: map[string]Factory[tts.Provider]{}},
	}
}

// RegisterSTT registers a transcriber factory.
func (r *Registry) RegisterSTT(name string, f Factory[stt.Transcriber]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.m[name] = f
}

// RegisterLLM registers an LLM factory.
func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.m[name] = f
}

// RegisterTTS registers a TTS factory.
func (r *Registry) RegisterTTS(name string, f Factory[tts.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.m[name] = f
}

// CreateSTT builds the transcriber registered under e.Name.
func (r *Registry) CreateSTT(e ProviderEntry) (stt.Transcriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create(e)
}

// CreateLLM builds the LLM registered under e.Name.
func (r *Registry) CreateLLM(e ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.create(e)
}

// CreateTTS builds the TTS provider registered under e.Name.
func (r *Registry) CreateTTS(e ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tts.create(e)
}

// Names returns the registered names of kind ("stt", "llm" or "tts"),
// sorted.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "stt":
		return r.stt.names()
	case "llm":
		return r.llm.names()
	case "tts":
		return r.tts.names()
	}
	return nil
}
