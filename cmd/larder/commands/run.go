package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/larder/internal/app"
	"github.com/MrWong99/larder/internal/config"
	"github.com/MrWong99/larder/internal/observe"
)

const shutdownTimeout = 15 * time.Second

var (
	noWatch bool
	quiet   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the assistant",
	Long: `Start audio capture, the keyword spotter, the voice pipeline, the UI
websocket hub and the background workers (cloud sync, expiry reminders).
Stops cleanly on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runApp(ctx, cmd)
	},
}

func init() {
	runCmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the config file on change")
	runCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "skip the startup summary")
	rootCmd.AddCommand(runCmd)
}

func runApp(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(os.Stderr, cfg.Server.LogFormat, &level))

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: Version})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown failed", "err", err)
		}
	}()
	metrics, err := tel.Metrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, closeProviders, err := app.BuildProviders(cfg, reg, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeProviders(); err != nil {
			slog.Warn("provider close failed", "err", err)
		}
	}()

	// ── Application ───────────────────────────────────────────────────────────
	var application *app.App
	opts := []app.Option{
		app.WithFs(appFs),
		app.WithMetrics(metrics),
		app.WithMetricsHandler(tel.Handler()),
		app.WithLevelVar(&level),
	}
	if !noWatch {
		w, err := config.NewWatcher(configPath, func(old, cur *config.Config) {
			if application != nil {
				application.ApplyConfig(old, cur)
			}
		}, config.WithFs(appFs))
		switch {
		case err == nil:
			opts = append(opts, app.WithWatcher(w))
		case cmd.Flags().Changed("config"):
			return err
		default:
			slog.Debug("config watcher disabled", "err", err)
		}
	}

	if !quiet {
		fmt.Fprintln(cmd.OutOrStdout(), startupSummary(cfg))
	}

	application, err = app.New(ctx, cfg, providers, opts...)
	if err != nil {
		return err
	}

	slog.Info("larder ready, press Ctrl+C to stop", "version", Version)
	runErr := application.Run(ctx)

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	slog.Info("shutting down")
	if err := application.Shutdown(sctx); err != nil {
		slog.Error("shutdown error", "err", err)
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func newLogger(w io.Writer, format config.LogFormat, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func startupSummary(cfg *config.Config) string {
	audioSrc := cfg.Audio.Source
	if cfg.Audio.Source == config.SourceWAV {
		audioSrc += " " + cfg.Audio.WAVPath
	}
	notify := "(disabled)"
	if cfg.Notify.Enabled {
		notify = fmt.Sprintf("every %s, %s ahead", cfg.Notify.Interval, plural(cfg.Notify.ThresholdDays, "day"))
	}
	return renderSummary("larder "+Version, []kv{
		{"Audio", fmt.Sprintf("%s @ %d Hz", audioSrc, cfg.Audio.SampleRate)},
		{"Wake", strings.Join(cfg.Recognizer.WakePhrases, " / ")},
		{"STT", providerNames(cfg.Providers.STT)},
		{"LLM", providerNames(cfg.Providers.LLM)},
		{"TTS", providerNames(cfg.Providers.TTS)},
		{"Inventory", cfg.Inventory.Backend},
		{"Cloud sync", orNone(cfg.Sync.URL)},
		{"Reminders", notify},
		{"Listen", orNone(cfg.Server.ListenAddr)},
	})
}

func providerNames(entries []config.ProviderEntry) string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
		if e.Model != "" {
			names[i] += "/" + e.Model
		}
	}
	return orNone(strings.Join(names, " > "))
}
