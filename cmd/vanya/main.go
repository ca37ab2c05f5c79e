// Command vanya runs the Vanya voice guide: a push-to-talk loop that listens
// to a question, asks the configured LLM for a verse with its meaning and
// practical guidance, and speaks the answer back.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/bawa-mj/vanya/internal/app"
	"github.com/bawa-mj/vanya/internal/config"
	"github.com/bawa-mj/vanya/internal/observe"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	console := flag.Bool("console", false, "drive the session from the terminal (m: mic, l: language, d: dismiss, q: quit)")
	watch := flag.Bool("watch", true, "reload the log level when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vanya: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vanya: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The console owns the terminal, so logs go to vanya.log in that mode.
	logOut := io.Writer(os.Stderr)
	if *console {
		f, err := os.OpenFile("vanya.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "vanya: open log file: %v\n", err)
			return 1
		}
		defer f.Close()
		logOut = f
	}
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("vanya starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, logger)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(logOut, cfg, providers)

	opts := []app.Option{
		app.WithLogger(logger),
		app.WithLevel(level),
		app.WithMetrics(metrics),
		app.WithMetricsHandler(promhttp.Handler()),
	}
	if *watch {
		opts = append(opts, app.WithConfigWatch(*configPath))
	}
	application, err := app.New(cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		if providers.Audio.Close != nil {
			_ = providers.Audio.Close()
		}
		return 1
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return application.Run(gctx) })
	if *console {
		g.Go(func() error {
			defer cancel()
			return runConsole(gctx, application.Machine())
		})
	} else {
		slog.Info("server ready; press Ctrl+C to shut down")
	}

	exit := 0
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exit = 1
	}
	cancel()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config, ps *app.Providers) {
	row := func(label, value string) {
		fmt.Fprintf(w, "║ %-12s %-28s ║\n", label, value)
	}
	name := func(entry config.ProviderEntry, present bool) string {
		switch {
		case entry.Name == "":
			return "(none)"
		case !present:
			return entry.Name + " (not built)"
		case entry.Model != "":
			return entry.Name + " / " + entry.Model
		}
		return entry.Name
	}
	listen := cfg.Server.ListenAddr
	if listen == config.ListenDisabled {
		listen = "disabled"
	}

	fmt.Fprintln(w, "╔═══════════════════════════════════════════╗")
	fmt.Fprintln(w, "║          Vanya · startup summary          ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════════╣")
	row("LLM", name(cfg.Providers.LLM, ps.LLM != nil))
	row("STT", name(cfg.Providers.STT, ps.STT != nil))
	row("TTS", name(cfg.Providers.TTS, ps.TTS != nil))
	row("Audio", name(cfg.Providers.Audio, ps.Audio.Source != nil))
	row("Locale", cfg.Session.DefaultLocale)
	row("HTTP", listen)
	row("Log level", strings.ToUpper(string(cfg.Server.LogLevel)))
	fmt.Fprintln(w, "╚═══════════════════════════════════════════╝")
}
