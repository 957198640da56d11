package commands

import (
	"errors"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/larder/internal/config"
	"github.com/MrWong99/larder/pkg/provider/llm"
	"github.com/MrWong99/larder/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/larder/pkg/provider/llm/openai"
	"github.com/MrWong99/larder/pkg/provider/stt"
	"github.com/MrWong99/larder/pkg/provider/stt/cloudasr"
	oastt "github.com/MrWong99/larder/pkg/provider/stt/openai"
	"github.com/MrWong99/larder/pkg/provider/stt/whisper"
	"github.com/MrWong99/larder/pkg/provider/tts"
	"github.com/MrWong99/larder/pkg/provider/tts/elevenlabs"
)

// registerBuiltinProviders wires every provider that ships with larder into
// reg. The names match config.KnownProviders.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if e.Model != "" {
			opts = append(opts, whisper.WithModel(e.Model))
		}
		if lang := e.Option("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(e.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(e config.ProviderEntry) (stt.Transcriber, error) {
		path := e.Model
		if path == "" {
			path = e.Option("model_path")
		}
		var opts []whisper.NativeOption
		if lang := e.Option("language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(path, opts...)
	})

	reg.RegisterSTT("openai", func(e config.ProviderEntry) (stt.Transcriber, error) {
		var opts []oastt.Option
		if e.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(e.BaseURL))
		}
		if e.Model != "" {
			opts = append(opts, oastt.WithModel(e.Model))
		}
		if lang := e.Option("language"); lang != "" {
			opts = append(opts, oastt.WithLanguage(lang))
		}
		return oastt.New(e.APIKey, opts...)
	})

	// cloudasr authenticates with OAuth2 client credentials: client_id and
	// token_url come from options, the secret from api_key.
	reg.RegisterSTT("cloudasr", func(e config.ProviderEntry) (stt.Transcriber, error) {
		var opts []cloudasr.Option
		if cuid := e.Option("cuid"); cuid != "" {
			opts = append(opts, cloudasr.WithCUID(cuid))
		}
		return cloudasr.New(e.BaseURL, e.Option("token_url"), e.Option("client_id"), e.APIKey, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if e.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(e.BaseURL))
		}
		if org := e.Option("organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		return oallm.New(e.APIKey, e.Model, opts...)
	})

	// anyllm reaches every backend any-llm-go supports; options.provider
	// selects it (anthropic, gemini, mistral, deepseek, groq, ...).
	reg.RegisterLLM("anyllm", func(e config.ProviderEntry) (llm.Provider, error) {
		backend := e.Option("provider")
		if backend == "" {
			return nil, errors.New("anyllm: options.provider is required")
		}
		return anyllm.New(backend, e.Model, anyllmOptions(e)...)
	})

	reg.RegisterLLM("ollama", func(e config.ProviderEntry) (llm.Provider, error) {
		return anyllm.NewOllama(e.Model, anyllmOptions(e)...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if e.Model != "" {
			opts = append(opts, elevenlabs.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(e.BaseURL))
		}
		if f := e.Option("output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if v := e.Option("voice"); v != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(v))
		}
		return elevenlabs.New(e.APIKey, opts...)
	})
}

func anyllmOptions(e config.ProviderEntry) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if e.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
	}
	if e.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
	}
	return opts
}
