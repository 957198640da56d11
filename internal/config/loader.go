package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/larder/internal/pipeline"
)

// KnownProviders lists the provider names the registry ships with, per kind.
// [Validate] warns about anything else.
var KnownProviders = map[string][]string{
	"stt": {"whisper", "whisper-native", "openai", "cloudasr"},
	"llm": {"openai", "anyllm", "ollama"},
	"tts": {"elevenlabs"},
}

// Load reads and validates the YAML file at path.
func Load(path string) (*Config, error) {
	return LoadFile(afero.NewOsFs(), path)
}

// LoadFile reads and validates the YAML file at path on fsys.
func LoadFile(fsys afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over [Default] and validates the result.
// Unknown keys are rejected. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg for coherence and returns every problem found, joined.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		add("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}
	if cfg.Server.LogFormat != LogText && cfg.Server.LogFormat != LogJSON {
		add("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat)
	}

	// Audio
	switch cfg.Audio.Source {
	case SourcePortAudio:
	case SourceWAV:
		if cfg.Audio.WAVPath == "" {
			add("audio.wav_path is required when audio.source is wav")
		}
	default:
		add("audio.source %q is invalid; valid values: portaudio, wav", cfg.Audio.Source)
	}
	if cfg.Audio.SampleRate <= 0 {
		add("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels < 1 || cfg.Audio.Channels > 8 {
		add("audio.channels %d is out of range [1, 8]", cfg.Audio.Channels)
	}
	if cfg.Audio.FrameSize <= 0 {
		add("audio.frame_size must be positive")
	}
	if cfg.Audio.Playback && cfg.Audio.PlaybackRate <= 0 {
		add("audio.playback_rate must be positive when playback is enabled")
	}

	// Recognizer
	rc := cfg.Recognizer
	if len(rc.WakePhrases) == 0 || slices.Contains(rc.WakePhrases, "") {
		add("recognizer.wake_phrases must list at least one non-empty phrase")
	}
	if rc.WakeThreshold <= 0 || rc.WakeThreshold > 1 {
		add("recognizer.wake_threshold %.2f is out of range (0, 1]", rc.WakeThreshold)
	}
	if rc.CommandThreshold <= 0 || rc.CommandThreshold > 1 {
		add("recognizer.command_threshold %.2f is out of range (0, 1]", rc.CommandThreshold)
	}
	if rc.CommandTimeout <= 0 {
		add("recognizer.command_timeout must be positive")
	}
	for name, phrases := range rc.Commands {
		if _, err := pipeline.ParseCommand(name); err != nil {
			add("recognizer.commands: %w", err)
		}
		if len(phrases) == 0 {
			add("recognizer.commands.%s lists no phrases", name)
		}
	}
	if rc.Transcriber.Name != "" {
		warnUnknownProvider("stt", rc.Transcriber.Name)
	}

	// Recording
	if cfg.Recording.Duration <= 0 {
		add("recording.duration must be positive")
	}
	if _, err := pipeline.ParseStopAction(cfg.Recording.StopAction); err != nil {
		add("recording.stop_action: %w", err)
	}
	if cfg.Processing.Timeout <= 0 || cfg.Processing.ActionTimeout <= 0 {
		add("processing.timeout and processing.action_timeout must be positive")
	}

	// Providers
	if len(cfg.Providers.STT) == 0 {
		add("providers.stt must list at least one transcriber")
	}
	for kind, chain := range map[string][]ProviderEntry{
		"stt": cfg.Providers.STT,
		"llm": cfg.Providers.LLM,
		"tts": cfg.Providers.TTS,
	} {
		for i, e := range chain {
			if e.Name == "" {
				add("providers.%s[%d].name is required", kind, i)
				continue
			}
			warnUnknownProvider(kind, e.Name)
		}
	}
	if len(cfg.Providers.LLM) == 0 {
		slog.Warn("no LLM configured; item extraction falls back to the local parser and recipes to templates")
	}
	if len(cfg.Providers.TTS) == 0 && cfg.Notify.Enabled {
		slog.Warn("no TTS configured; expiry reminders will not be spoken")
	}
	if cfg.Resilience.MaxFailures < 0 || cfg.Resilience.Cooldown < 0 {
		add("resilience.max_failures and resilience.cooldown must not be negative")
	}

	// Inventory
	switch cfg.Inventory.Backend {
	case BackendMemory:
	case BackendFile, BackendBadger:
		if cfg.Inventory.Path == "" {
			add("inventory.path is required for the %s backend", cfg.Inventory.Backend)
		}
	case BackendPostgres:
		if cfg.Inventory.DSN == "" {
			add("inventory.dsn is required for the postgres backend")
		}
	default:
		add("inventory.backend %q is invalid; valid values: memory, file, badger, postgres", cfg.Inventory.Backend)
	}

	// Sync
	if cfg.Sync.URL != "" {
		if u, err := url.Parse(cfg.Sync.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			add("sync.url %q must be an http(s) URL", cfg.Sync.URL)
		}
		if cfg.Sync.Interval <= 0 {
			add("sync.interval must be positive")
		}
	}
	if cfg.Sync.QueuePath == "" {
		add("sync.queue_path is required")
	}

	// Notify
	if cfg.Notify.Enabled {
		if cfg.Notify.Interval <= 0 {
			add("notify.interval must be positive")
		}
		if cfg.Notify.ThresholdDays < 0 {
			add("notify.threshold_days must not be negative")
		}
	}

	// Recipes
	if cfg.Recipes.Path == "" {
		add("recipes.path is required")
	}
	if cfg.Recipes.MaxIngredients <= 0 || cfg.Recipes.SummaryLength <= 0 {
		add("recipes.max_ingredients and recipes.summary_length must be positive")
	}

	// UI
	if !strings.HasPrefix(cfg.UI.Path, "/") {
		add("ui.path %q must start with /", cfg.UI.Path)
	}

	return errors.Join(errs...)
}

func warnUnknownProvider(kind, name string) {
	if slices.Contains(KnownProviders[kind], name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a custom registration",
		"kind", kind, "name", name, "known", KnownProviders[kind])
}
