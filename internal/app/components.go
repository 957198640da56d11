package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	"github.com/MrWong99/larder/internal/cloudsync"
	"github.com/MrWong99/larder/internal/config"
	"github.com/MrWong99/larder/internal/health"
	"github.com/MrWong99/larder/internal/intent"
	"github.com/MrWong99/larder/internal/inventory"
	"github.com/MrWong99/larder/internal/inventory/postgres"
	"github.com/MrWong99/larder/internal/notify"
	"github.com/MrWong99/larder/internal/observe"
	"github.com/MrWong99/larder/internal/pipeline"
	"github.com/MrWong99/larder/internal/recipe"
	"github.com/MrWong99/larder/internal/speech"
	"github.com/MrWong99/larder/internal/ui"
	"github.com/MrWong99/larder/pkg/audio"
	"github.com/MrWong99/larder/pkg/audio/playback"
	"github.com/MrWong99/larder/pkg/audio/portaudio"
	"github.com/MrWong99/larder/pkg/recognizer/spotter"
)

func (a *App) initAudio(context.Context) error {
	ac := a.cfg.Audio
	if a.source == nil {
		src, err := a.openSource(ac)
		if err != nil {
			return err
		}
		a.source = audio.NewRetrySource(src, audio.RetryConfig{})
		a.onClose("audio source", src.Close)
	}
	if a.sink == nil && ac.Playback {
		p, err := portaudio.OpenPlayer(ac.PlaybackRate, ac.FrameSize)
		if err != nil {
			// Announcements are optional; the assistant still works silently.
			slog.Warn("app: no audio output, announcements disabled", "err", err)
			return nil
		}
		a.sink = p
		a.onClose("audio sink", p.Close)
	}
	if a.sink != nil {
		a.playback = playback.New(a.sink)
		a.onClose("playback", a.playback.Close)
	}
	return nil
}

func (a *App) openSource(ac config.AudioConfig) (audio.Source, error) {
	switch ac.Source {
	case config.SourceWAV:
		f, err := a.fs.Open(ac.WAVPath)
		if err != nil {
			return nil, fmt.Errorf("open wav: %w", err)
		}
		src, err := audio.NewWAVSource(f, audio.WithLoop(ac.Loop), audio.WithWAVFrameSize(ac.FrameSize))
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		return src, nil
	default:
		return portaudio.OpenCapture(ac.SampleRate, ac.Channels, ac.FrameSize)
	}
}

func (a *App) initInventory(ctx context.Context) error {
	ic := a.cfg.Inventory
	if a.backend == nil {
		b, err := OpenStore(ctx, ic, a.fs)
		if err != nil {
			return err
		}
		a.backend = b
	}
	a.onClose("inventory", a.backend.Close)

	q, err := cloudsync.NewQueue(a.fs, a.cfg.Sync.QueuePath, cloudsync.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	a.queue = q
	if a.cfg.Sync.URL != "" {
		a.worker, err = cloudsync.NewWorker(q, cloudsync.WorkerConfig{
			URL:      a.cfg.Sync.URL,
			Interval: a.cfg.Sync.Interval,
			Client:   a.client,
		})
		if err != nil {
			return err
		}
	}

	a.store = inventory.NewTracked(a.backend, q, a.metrics)
	a.store.RecordCount(ctx)
	return nil
}

// OpenStore opens the configured inventory backend. File backends live on
// fsys; badger and postgres manage their own storage.
func OpenStore(ctx context.Context, ic config.InventoryConfig, fsys afero.Fs) (inventory.Store, error) {
	switch ic.Backend {
	case config.BackendMemory:
		return inventory.NewMemoryStore(), nil
	case config.BackendFile:
		return inventory.NewFileStore(fsys, ic.Path)
	case config.BackendBadger:
		return inventory.NewBadgerStore(inventory.BadgerConfig{Dir: ic.Path})
	case config.BackendPostgres:
		return postgres.NewStore(ctx, ic.DSN)
	default:
		return nil, fmt.Errorf("unknown backend %q", ic.Backend)
	}
}

func (a *App) initUI(context.Context) error {
	a.hub = ui.NewHub(
		ui.WithInventory(a.store),
		ui.WithQueueSize(a.cfg.UI.QueueSize),
		ui.WithOriginPatterns(a.cfg.UI.OriginPatterns...),
	)
	return nil
}

func (a *App) initSpeech(context.Context) error {
	if a.providers.TTS == nil || a.playback == nil {
		return nil
	}
	sp, err := speech.New(a.providers.TTS, a.playback,
		speech.WithVoice(a.cfg.Notify.Voice),
		speech.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	a.speaker = sp
	return nil
}

// announcer returns the speaker, or a logger when speech is unavailable.
func (a *App) announcer() notify.Speaker {
	if a.speaker != nil {
		return a.speaker
	}
	return logSpeaker{}
}

type logSpeaker struct{}

func (logSpeaker) Say(ctx context.Context, text string) error {
	observe.Logger(ctx).Info("app: announcement", "text", text)
	return nil
}

func (a *App) initNotifier(context.Context) error {
	nc := a.cfg.Notify
	if !nc.Enabled {
		return nil
	}
	n, err := notify.New(a.store, a.announcer(), notify.Config{
		Interval:      nc.Interval,
		ThresholdDays: nc.ThresholdDays,
	}, notify.WithRefresher(a.hub), notify.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	a.notifier = n
	return nil
}

func (a *App) initRecipes(context.Context) error {
	opts := []recipe.Option{
		recipe.WithSpeaker(a.announcer()),
		recipe.WithPublisher(a.hub),
	}
	if a.providers.LLM != nil {
		opts = append(opts, recipe.WithLLM(a.providers.LLM))
	}
	s, err := recipe.New(a.store, a.fs, recipe.Config{
		Path:           a.cfg.Recipes.Path,
		MaxIngredients: a.cfg.Recipes.MaxIngredients,
		SummaryLength:  a.cfg.Recipes.SummaryLength,
	}, opts...)
	if err != nil {
		return err
	}
	a.recipes = s
	return nil
}

func (a *App) initIntent(context.Context) error {
	ap, err := intent.New(a.store,
		intent.WithLLM(a.providers.LLM),
		intent.WithPublisher(a.hub),
	)
	if err != nil {
		return err
	}
	a.applier = ap
	return nil
}

func (a *App) initRecognizer(context.Context) error {
	if a.engine != nil {
		return nil
	}
	rc := a.cfg.Recognizer
	tr := a.providers.Spotter
	if tr == nil {
		tr = a.providers.STT
	}
	phrases, err := CommandPhrases(rc.Commands)
	if err != nil {
		return err
	}
	e, err := spotter.New(tr,
		spotter.WithFormat(a.source.SampleRate(), a.source.Channels()),
		spotter.WithQueueFrames(rc.QueueFrames),
		spotter.WithEnergyGate(rc.RMSThreshold, rc.Silence),
		spotter.WithMaxUtterance(rc.MaxUtterance),
		spotter.WithCommandTimeout(rc.CommandTimeout),
		spotter.WithThresholds(rc.WakeThreshold, rc.CommandThreshold),
		spotter.WithWakePhrases(rc.WakePhrases...),
		spotter.WithCommands(phrases...),
	)
	if err != nil {
		return err
	}
	a.engine = e
	a.onClose("recognizer", e.Close)
	return nil
}

// CommandPhrases builds the spotter vocabulary: every command's built-in
// phrases, replaced by the configured variants where overrides exist.
func CommandPhrases(overrides map[string][]string) ([]spotter.Phrase, error) {
	custom := make(map[pipeline.Command][]string, len(overrides))
	for name, texts := range overrides {
		c, err := pipeline.ParseCommand(name)
		if err != nil {
			return nil, err
		}
		custom[c] = texts
	}
	var out []spotter.Phrase
	for _, c := range pipeline.Commands() {
		texts, ok := custom[c]
		if !ok {
			texts = c.Phrases()
		}
		for _, t := range texts {
			out = append(out, spotter.Phrase{CommandID: int(c), Text: t})
		}
	}
	return out, nil
}

// hooks forwards pipeline events to the UI and cuts announcements short
// when the wake phrase is heard.
type hooks struct {
	*ui.Hub
	playback *playback.Queue
}

func (h hooks) OnWakeEnter() {
	if h.playback != nil {
		h.playback.Interrupt()
	}
	h.Hub.OnWakeEnter()
}

// handlers binds the immediate and background commands to the UI, the
// inventory and the recipe suggester.
func (a *App) handlers() pipeline.Handlers {
	return pipeline.Handlers{
		ShowInventory: func(ctx context.Context) error {
			a.hub.Navigate(ui.ViewInventory)
			return a.hub.Refresh(ctx)
		},
		ClearInventory: func(ctx context.Context) error {
			n, err := a.store.Clear(ctx)
			if err != nil {
				return err
			}
			observe.Logger(ctx).Info("app: inventory cleared", "removed", n)
			return a.hub.Refresh(ctx)
		},
		RecommendRecipes: a.recipes.Recommend,
		ReturnHome: func(context.Context) error {
			a.hub.Navigate(ui.ViewHome)
			return nil
		},
	}
}

func (a *App) initPipeline(context.Context) error {
	table, err := pipeline.DefaultDispatchTable(a.handlers())
	if err != nil {
		return err
	}
	opts := []pipeline.Option{
		pipeline.WithHooks(hooks{Hub: a.hub, playback: a.playback}),
		pipeline.WithRefresher(a.hub),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithRecordDuration(a.cfg.Recording.Duration),
		pipeline.WithProcessTimeout(a.cfg.Processing.Timeout),
		pipeline.WithActionTimeout(a.cfg.Processing.ActionTimeout),
	}
	if a.cfg.Recording.AllowStop {
		action, err := pipeline.ParseStopAction(a.cfg.Recording.StopAction)
		if err != nil {
			return err
		}
		opts = append(opts, pipeline.WithStop(action))
	}
	p, err := pipeline.New(a.source, a.engine, a.providers.STT, a.applier, table, opts...)
	if err != nil {
		return err
	}
	a.pipeline = p
	a.hub.SetStopper(p.StopRecording)
	return nil
}

func (a *App) initHTTP(context.Context) error {
	scrape := a.scrape
	if scrape == nil {
		scrape = promhttp.Handler()
	}
	mux := http.NewServeMux()
	mux.Handle("GET "+a.cfg.UI.Path, a.hub)
	mux.Handle("GET /metrics", scrape)
	health.New(
		health.Ping("inventory", a.store),
		health.Running("detection", a.pipeline.Detecting),
	).Register(mux)

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}
