package config

import (
	"errors"
	"testing"

	"github.com/MrWong99/larder/pkg/provider/llm"
	llmmock "github.com/MrWong99/larder/pkg/provider/llm/mock"
	"github.com/MrWong99/larder/pkg/provider/stt"
	sttmock "github.com/MrWong99/larder/pkg/provider/stt/mock"
	"github.com/MrWong99/larder/pkg/provider/tts"
	ttsmock "github.com/MrWong99/larder/pkg/provider/tts/mock"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var seen ProviderEntry
	r.RegisterSTT("whisper", func(e ProviderEntry) (stt.Transcriber, error) {
		seen = e
		return &sttmock.Transcriber{}, nil
	})
	r.RegisterLLM("openai", func(ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })
	r.RegisterLLM("anyllm", func(ProviderEntry) (llm.Provider, error) { return nil, errors.New("no key") })
	r.RegisterTTS("elevenlabs", func(ProviderEntry) (tts.Provider, error) { return &ttsmock.Provider{}, nil })

	entry := ProviderEntry{Name: "whisper", BaseURL: "http://localhost:8178"}
	if _, err := r.CreateSTT(entry); err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if seen.BaseURL != entry.BaseURL {
		t.Errorf("factory got %+v", seen)
	}
	if _, err := r.CreateLLM(ProviderEntry{Name: "openai"}); err != nil {
		t.Errorf("CreateLLM: %v", err)
	}
	if _, err := r.CreateTTS(ProviderEntry{Name: "elevenlabs"}); err != nil {
		t.Errorf("CreateTTS: %v", err)
	}

	if _, err := r.CreateTTS(ProviderEntry{Name: "coqui"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("unregistered: err = %v", err)
	}
	if _, err := r.CreateLLM(ProviderEntry{Name: "anyllm"}); err == nil || errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("factory failure: err = %v", err)
	}

	if got := r.Names("llm"); len(got) != 2 || got[0] != "anyllm" || got[1] != "openai" {
		t.Errorf("Names(llm) = %v", got)
	}
	if got := r.Names("vad"); got != nil {
		t.Errorf("Names(vad) = %v", got)
	}
}
