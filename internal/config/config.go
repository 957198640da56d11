// Package config holds the larder configuration schema, its YAML loader,
// the provider registry and a polling file watcher for live reloads.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogText LogFormat = "text"
	LogJSON LogFormat = "json"
)

// Audio source kinds.
const (
	SourcePortAudio = "portaudio"
	SourceWAV       = "wav"
)

// Inventory backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// Config is the root configuration. Use [Default] for a runnable baseline;
// [Load] starts from it, so a file only needs the keys it changes.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Audio      AudioConfig      `yaml:"audio"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Recording  RecordingConfig  `yaml:"recording"`
	Processing ProcessingConfig `yaml:"processing"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Inventory  InventoryConfig  `yaml:"inventory"`
	Sync       SyncConfig       `yaml:"sync"`
	Notify     NotifyConfig     `yaml:"notify"`
	Recipes    RecipesConfig    `yaml:"recipes"`
	UI         UIConfig         `yaml:"ui"`
}

// ServerConfig holds the HTTP listener and logging settings.
type ServerConfig struct {
	// ListenAddr serves /ws, /metrics, /healthz and /readyz. Empty disables
	// the HTTP server.
	ListenAddr string    `yaml:"listen_addr"`
	LogLevel   LogLevel  `yaml:"log_level"`
	LogFormat  LogFormat `yaml:"log_format"`
}

// AudioConfig selects the capture device and the playback output.
type AudioConfig struct {
	// Source is "portaudio" (default microphone) or "wav" (replay a file,
	// for demos and soak tests).
	Source  string `yaml:"source"`
	WAVPath string `yaml:"wav_path"`
	Loop    bool   `yaml:"loop"`

	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	FrameSize  int `yaml:"frame_size"`

	// Playback opens the default output device for spoken announcements.
	Playback     bool `yaml:"playback"`
	PlaybackRate int  `yaml:"playback_rate"`
}

// RecognizerConfig tunes the wake word and command spotter.
type RecognizerConfig struct {
	WakePhrases []string `yaml:"wake_phrases"`

	// Commands overrides the spoken variants of commands, keyed by command
	// name (add_item, show_inventory, ...). Commands left out keep their
	// built-in phrase.
	Commands map[string][]string `yaml:"commands"`

	WakeThreshold    float64       `yaml:"wake_threshold"`
	CommandThreshold float64       `yaml:"command_threshold"`
	CommandTimeout   time.Duration `yaml:"command_timeout"`
	RMSThreshold     float64       `yaml:"rms_threshold"`
	Silence          time.Duration `yaml:"silence"`
	MaxUtterance     time.Duration `yaml:"max_utterance"`
	QueueFrames      int           `yaml:"queue_frames"`

	// Transcriber is used for keyword spotting. When Name is empty the
	// providers.stt chain is shared.
	Transcriber ProviderEntry `yaml:"transcriber"`
}

// RecordingConfig controls command recordings.
type RecordingConfig struct {
	Duration   time.Duration `yaml:"duration"`
	AllowStop  bool          `yaml:"allow_stop"`
	StopAction string        `yaml:"stop_action"`
}

// ProcessingConfig bounds the work done after a recording.
type ProcessingConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	ActionTimeout time.Duration `yaml:"action_timeout"`
}

// ProvidersConfig lists the provider chains. The first entry of each list
// is the primary; later entries are fallbacks.
type ProvidersConfig struct {
	STT []ProviderEntry `yaml:"stt"`
	LLM []ProviderEntry `yaml:"llm"`
	TTS []ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the configuration shared by every provider type. Name
// selects the factory in the [Registry].
type ProviderEntry struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Options holds provider specific values (language, voice, token_url, ...).
	Options map[string]any `yaml:"options"`
}

// Option returns Options[key] as a string, or "".
func (e ProviderEntry) Option(key string) string {
	if v, ok := e.Options[key].(string); ok {
		return v
	}
	return ""
}

// ResilienceConfig tunes the per-provider circuit breakers.
type ResilienceConfig struct {
	MaxFailures int           `yaml:"max_failures"`
	Cooldown    time.Duration `yaml:"cooldown"`
}

// InventoryConfig selects the storage backend.
type InventoryConfig struct {
	Backend string `yaml:"backend"`

	// Path is the JSON file (file) or the database directory (badger).
	Path string `yaml:"path"`

	// DSN is the postgres connection string.
	DSN string `yaml:"dsn"`
}

// SyncConfig configures the cloud sync worker. An empty URL keeps events in
// the local queue only.
type SyncConfig struct {
	URL       string        `yaml:"url"`
	Interval  time.Duration `yaml:"interval"`
	QueuePath string        `yaml:"queue_path"`
}

// NotifyConfig configures expiry reminders.
type NotifyConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	ThresholdDays int           `yaml:"threshold_days"`
	Voice         string        `yaml:"voice"`
}

// RecipesConfig configures recipe suggestions.
type RecipesConfig struct {
	Path           string `yaml:"path"`
	MaxIngredients int    `yaml:"max_ingredients"`
	SummaryLength  int    `yaml:"summary_length"`
}

// UIConfig configures the websocket event hub.
type UIConfig struct {
	Path           string   `yaml:"path"`
	OriginPatterns []string `yaml:"origin_patterns"`
	QueueSize      int      `yaml:"queue_size"`
}

// Default returns the baseline configuration: microphone input, local
// whisper server, JSON file inventory and no cloud sync.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
			LogFormat:  LogText,
		},
		Audio: AudioConfig{
			Source:       SourcePortAudio,
			SampleRate:   16000,
			Channels:     1,
			FrameSize:    512,
			Playback:     true,
			PlaybackRate: 16000,
		},
		Recognizer: RecognizerConfig{
			WakePhrases:      []string{"你好小智", "ni hao xiao zhi"},
			WakeThreshold:    0.85,
			CommandThreshold: 0.80,
			CommandTimeout:   6 * time.Second,
			RMSThreshold:     0.02,
			Silence:          500 * time.Millisecond,
			MaxUtterance:     4 * time.Second,
			QueueFrames:      64,
		},
		Recording: RecordingConfig{
			Duration:   3 * time.Second,
			StopAction: "commit",
		},
		Processing: ProcessingConfig{
			Timeout:       30 * time.Second,
			ActionTimeout: 5 * time.Second,
		},
		Providers: ProvidersConfig{
			STT: []ProviderEntry{{Name: "whisper", BaseURL: "http://localhost:8178"}},
		},
		Resilience: ResilienceConfig{
			MaxFailures: 3,
			Cooldown:    30 * time.Second,
		},
		Inventory: InventoryConfig{
			Backend: BackendFile,
			Path:    "data/inventory.json",
		},
		Sync: SyncConfig{
			Interval:  30 * time.Second,
			QueuePath: "data/sync_queue.json",
		},
		Notify: NotifyConfig{
			Enabled:       true,
			Interval:      12 * time.Hour,
			ThresholdDays: 3,
		},
		Recipes: RecipesConfig{
			Path:           "data/last_recipe.json",
			MaxIngredients: 8,
			SummaryLength:  200,
		},
		UI: UIConfig{
			Path:      "/ws",
			QueueSize: 64,
		},
	}
}
