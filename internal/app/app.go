// Package app wires the larder subsystems into a running application.
//
// New builds every component from the config: audio capture, the keyword
// spotter, the inventory store, cloud sync, the UI hub, speech, the expiry
// notifier, recipe suggestions and finally the voice pipeline. Run supervises
// the long-running loops under one errgroup; Shutdown releases everything in
// reverse construction order.
//
// Tests inject doubles through the With* options. Anything not injected is
// created from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/larder/internal/cloudsync"
	"github.com/MrWong99/larder/internal/config"
	"github.com/MrWong99/larder/internal/intent"
	"github.com/MrWong99/larder/internal/inventory"
	"github.com/MrWong99/larder/internal/notify"
	"github.com/MrWong99/larder/internal/observe"
	"github.com/MrWong99/larder/internal/pipeline"
	"github.com/MrWong99/larder/internal/recipe"
	"github.com/MrWong99/larder/internal/speech"
	"github.com/MrWong99/larder/internal/ui"
	"github.com/MrWong99/larder/pkg/audio"
	"github.com/MrWong99/larder/pkg/audio/playback"
	"github.com/MrWong99/larder/pkg/provider/llm"
	"github.com/MrWong99/larder/pkg/provider/stt"
	"github.com/MrWong99/larder/pkg/provider/tts"
	"github.com/MrWong99/larder/pkg/recognizer"
)

// Providers holds the provider chains built from the registry. LLM and TTS
// may be nil.
type Providers struct {
	// STT transcribes command recordings.
	STT stt.Transcriber

	// Spotter transcribes utterances for wake and command spotting. Nil
	// shares STT.
	Spotter stt.Transcriber

	LLM llm.Provider
	TTS tts.Provider
}

type closer struct {
	name string
	fn   func() error
}

// App owns every subsystem's lifetime.
type App struct {
	cfg       *config.Config
	providers *Providers
	fs        afero.Fs
	metrics   *observe.Metrics
	scrape    http.Handler
	level     *slog.LevelVar
	watcher   *config.Watcher
	client    *http.Client

	source   audio.Source
	sink     audio.Sink
	playback *playback.Queue
	engine   recognizer.Engine
	backend  inventory.Store
	store    *inventory.Tracked
	queue    *cloudsync.Queue
	worker   *cloudsync.Worker
	hub      *ui.Hub
	speaker  *speech.Speaker
	notifier *notify.Notifier
	recipes  *recipe.Suggester
	applier  *intent.Applier
	pipeline *pipeline.Pipeline
	server   *http.Server

	closers  []closer
	stopOnce sync.Once
	stopErr  error
}

// Option configures New. Use these to inject test doubles.
type Option func(*App)

// WithSource uses src instead of opening the configured capture device.
func WithSource(src audio.Source) Option {
	return func(a *App) { a.source = src }
}

// WithSink uses sink for announcements instead of opening an output device.
func WithSink(sink audio.Sink) Option {
	return func(a *App) { a.sink = sink }
}

// WithEngine uses e instead of building the keyword spotter.
func WithEngine(e recognizer.Engine) Option {
	return func(a *App) { a.engine = e }
}

// WithStore uses s as the inventory backend.
func WithStore(s inventory.Store) Option {
	return func(a *App) { a.backend = s }
}

// WithFs stores files (inventory JSON, sync queue, last recipe, WAV input)
// on fsys.
func WithFs(fsys afero.Fs) Option {
	return func(a *App) { a.fs = fsys }
}

// WithMetrics records to m instead of the global meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics instead of the default
// Prometheus registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.scrape = h }
}

// WithLevelVar lets config reloads change the log level.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithWatcher runs w and applies its live changes.
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithHTTPClient is used for cloud sync posts.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) { a.client = c }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New builds every subsystem. On failure, whatever was already opened is
// closed again.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if providers == nil || providers.STT == nil {
		return nil, errors.New("app: an STT provider is required")
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.fs == nil {
		a.fs = afero.NewOsFs()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"audio", a.initAudio},
		{"inventory", a.initInventory},
		{"ui", a.initUI},
		{"speech", a.initSpeech},
		{"notifier", a.initNotifier},
		{"recipes", a.initRecipes},
		{"intent", a.initIntent},
		{"recognizer", a.initRecognizer},
		{"pipeline", a.initPipeline},
		{"http", a.initHTTP},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			_ = a.closeAll()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}
	return a, nil
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Pipeline returns the voice pipeline.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Store returns the tracked inventory store.
func (a *App) Store() inventory.Store { return a.store }

// Hub returns the UI event hub.
func (a *App) Hub() *ui.Hub { return a.hub }

// Handler returns the HTTP handler serving /ws, /metrics, /healthz and
// /readyz.
func (a *App) Handler() http.Handler { return a.server.Handler }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the pipeline, the sync worker, the notifier, the config watcher
// and the HTTP server, and blocks until ctx is cancelled or one of them
// fails. Cancellation is not an error.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.pipeline.Run(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("app: pipeline: %w", err)
		}
		return nil
	})
	if a.worker != nil {
		g.Go(func() error { return a.worker.Run(gctx) })
	}
	if a.notifier != nil {
		g.Go(func() error { return a.notifier.Run(gctx) })
	}
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}
	if a.cfg.Server.ListenAddr != "" {
		ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
		}
		slog.Info("app: http listening", "addr", ln.Addr().String())
		g.Go(func() error {
			if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = a.hub.Close()
			return a.server.Shutdown(sctx)
		})
	}

	slog.Info("app: running",
		"inventory", a.cfg.Inventory.Backend,
		"sync", a.worker != nil,
		"speech", a.speaker != nil,
		"llm", a.providers.LLM != nil,
	)
	err := g.Wait()
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown releases every subsystem in reverse construction order. ctx
// bounds the whole teardown. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- a.closeAll() }()
		select {
		case a.stopErr = <-done:
		case <-ctx.Done():
			a.stopErr = fmt.Errorf("app: shutdown: %w", ctx.Err())
		}
	})
	return a.stopErr
}

func (a *App) closeAll() error {
	var errs []error
	for _, c := range slices.Backward(a.closers) {
		if err := c.fn(); err != nil {
			slog.Warn("app: close failed", "component", c.name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// ApplyConfig applies the live-reloadable parts of a changed config. It is
// the config watcher's callback.
func (a *App) ApplyConfig(old, cur *config.Config) {
	d := config.Diff(old, cur)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.LogLevel))
		slog.Info("app: log level changed", "level", d.LogLevel)
	}
	if d.NotifyChanged && a.notifier != nil {
		a.notifier.Update(d.Notify.Interval, d.Notify.ThresholdDays)
		slog.Info("app: notifier updated", "interval", d.Notify.Interval, "threshold_days", d.Notify.ThresholdDays)
	}
	if len(d.Restart) > 0 {
		slog.Warn("app: config changes need a restart", "sections", d.Restart)
	}
}

// SlogLevel maps a config level to slog.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
