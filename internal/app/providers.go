package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/MrWong99/larder/internal/config"
	"github.com/MrWong99/larder/internal/observe"
	"github.com/MrWong99/larder/internal/resilience"
	"github.com/MrWong99/larder/pkg/provider/llm"
	"github.com/MrWong99/larder/pkg/provider/stt"
	"github.com/MrWong99/larder/pkg/provider/tts"
)

// BuildProviders creates every configured provider through reg and wraps
// each kind in a failover chain with per-provider circuit breakers. The
// returned close function releases providers that hold resources (native
// models, HTTP pools); call it after the App has shut down.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, func() error, error) {
	var closers []io.Closer
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c.Close())
		}
		return errors.Join(errs...)
	}
	track := func(v any) {
		if c, ok := v.(io.Closer); ok {
			closers = append(closers, c)
		}
	}
	fail := func(err error) (*Providers, func() error, error) {
		_ = closeAll()
		return nil, nil, err
	}

	bc := resilience.BreakerConfig{
		MaxFailures: cfg.Resilience.MaxFailures,
		Cooldown:    cfg.Resilience.Cooldown,
	}
	p := &Providers{}

	// ── STT ──
	sttChain := make([]resilience.Named[stt.Transcriber], 0, len(cfg.Providers.STT))
	for _, e := range cfg.Providers.STT {
		t, err := reg.CreateSTT(e)
		if err != nil {
			return fail(err)
		}
		track(t)
		sttChain = append(sttChain, resilience.Named[stt.Transcriber]{Name: e.Name, Provider: t})
	}
	tr, err := resilience.NewTranscriber(bc, m, sttChain...)
	if err != nil {
		return fail(fmt.Errorf("app: stt: %w", err))
	}
	p.STT = tr

	if e := cfg.Recognizer.Transcriber; e.Name != "" {
		t, err := reg.CreateSTT(e)
		if err != nil {
			return fail(err)
		}
		track(t)
		sp, err := resilience.NewTranscriber(bc, m, resilience.Named[stt.Transcriber]{Name: e.Name, Provider: t})
		if err != nil {
			return fail(fmt.Errorf("app: spotter: %w", err))
		}
		p.Spotter = sp
	}

	// ── LLM ──
	if len(cfg.Providers.LLM) > 0 {
		chain := make([]llm.Provider, 0, len(cfg.Providers.LLM))
		for _, e := range cfg.Providers.LLM {
			l, err := reg.CreateLLM(e)
			if err != nil {
				return fail(err)
			}
			track(l)
			chain = append(chain, l)
		}
		l, err := resilience.NewLLM(bc, m, chain...)
		if err != nil {
			return fail(fmt.Errorf("app: llm: %w", err))
		}
		p.LLM = l
	}

	// ── TTS ──
	if len(cfg.Providers.TTS) > 0 {
		chain := make([]tts.Provider, 0, len(cfg.Providers.TTS))
		for _, e := range cfg.Providers.TTS {
			t, err := reg.CreateTTS(e)
			if err != nil {
				return fail(err)
			}
			track(t)
			chain = append(chain, t)
		}
		t, err := resilience.NewTTS(bc, m, chain...)
		if err != nil {
			return fail(fmt.Errorf("app: tts: %w", err))
		}
		p.TTS = t
	}

	slog.Debug("app: providers built",
		"stt", len(sttChain),
		"llm", len(cfg.Providers.LLM),
		"tts", len(cfg.Providers.TTS),
		"dedicated_spotter", p.Spotter != nil,
	)
	return p, closeAll, nil
}
