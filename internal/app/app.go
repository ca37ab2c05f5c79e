// Package app wires the Vanya subsystems together and owns their lifecycle.
//
// [New] turns a [config.Config] and a set of constructed [Providers] into a
// running interaction machine with its capture and playback engines, plus
// the HTTP presentation API. [App.Run] drives everything until the context
// is cancelled; [App.Shutdown] releases the providers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bawa-mj/vanya/internal/capture"
	"github.com/bawa-mj/vanya/internal/config"
	"github.com/bawa-mj/vanya/internal/interaction"
	"github.com/bawa-mj/vanya/internal/locale"
	"github.com/bawa-mj/vanya/internal/observe"
	"github.com/bawa-mj/vanya/internal/pipeline"
	"github.com/bawa-mj/vanya/internal/playback"
	"github.com/bawa-mj/vanya/internal/resilience"
	"github.com/bawa-mj/vanya/internal/speech"
	"github.com/bawa-mj/vanya/pkg/audio"
	"github.com/bawa-mj/vanya/pkg/provider/llm"
	"github.com/bawa-mj/vanya/pkg/provider/stt"
	"github.com/bawa-mj/vanya/pkg/provider/tts"
)

// serverShutdownTimeout bounds the graceful HTTP shutdown once Run's context
// is cancelled.
const serverShutdownTimeout = 5 * time.Second

// Providers holds the constructed provider instances. LLM is required; a
// missing STT provider or audio source leaves capture unsupported, and a
// missing TTS provider or audio sink makes replies text-only.
type Providers struct {
	LLM   llm.Provider
	STT   stt.Provider
	TTS   tts.Provider
	Audio config.AudioBackend
}

// App owns the interaction machine, the HTTP server and provider cleanup.
type App struct {
	cfg       *config.Config
	providers *Providers

	machine  *interaction.Machine
	pipeline *pipeline.Pipeline
	breaker  *resilience.LLM
	server   *http.Server
	listener net.Listener

	captureEngine  capture.Engine
	playbackEngine playback.Engine
	metrics        *observe.Metrics
	logger         *slog.Logger
	level          *slog.LevelVar
	metricsHandler http.Handler
	configPath     string

	closers  []func() error
	stopOnce sync.Once
}

// Option configures an [App] during construction.
type Option func(*App)

// WithCaptureEngine overrides the capture engine built from the providers.
func WithCaptureEngine(e capture.Engine) Option {
	return func(a *App) { a.captureEngine = e }
}

// WithPlaybackEngine overrides the playback engine built from the providers.
func WithPlaybackEngine(e playback.Engine) Option {
	return func(a *App) { a.playbackEngine = e }
}

// WithMetrics sets the metrics recorder shared by every subsystem.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the application logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithLevel hands the App the level variable behind its logger so that
// configuration reloads can change verbosity.
func WithLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithMetricsHandler serves h under /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithConfigWatch reloads the file at path while Run is active.
func WithConfigWatch(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithListener serves the HTTP API on ln instead of cfg.Server.ListenAddr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New builds the application. It does not start any goroutines; call
// [App.Run] for that.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an LLM provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		metrics:   observe.DefaultMetrics(),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	if providers.Audio.Close != nil {
		a.closers = append(a.closers, providers.Audio.Close)
	}

	backend := providers.LLM
	if cfg.Session.BreakerFailures > 0 {
		a.breaker = resilience.GuardLLM(backend, resilience.CircuitBreakerConfig{
			MaxFailures: cfg.Session.BreakerFailures,
			Cooldown:    cfg.Session.BreakerCooldown,
			Logger:      a.logger,
		})
		backend = a.breaker
	}
	a.pipeline = pipeline.New(backend,
		pipeline.WithTimeout(cfg.Session.RequestTimeout),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithLogger(a.logger),
	)

	if a.captureEngine == nil {
		a.captureEngine = a.buildCapture()
	}
	if a.playbackEngine == nil {
		a.playbackEngine = a.buildPlayback()
	}

	m, err := interaction.New(a.captureEngine, a.playbackEngine, a.pipeline,
		interaction.WithLocale(locale.Code(cfg.Session.DefaultLocale)),
		interaction.WithToastDuration(cfg.Session.ToastDuration),
		interaction.WithMetrics(a.metrics),
		interaction.WithLogger(a.logger),
		interaction.WithPlaybackOptions(
			playback.WithRate(cfg.Session.SpeechRate),
			playback.WithDefaultVoice(cfg.Session.DefaultVoiceID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("app: create interaction machine: %w", err)
	}
	a.machine = m

	if a.listener != nil || cfg.Server.ListenAddr != config.ListenDisabled {
		a.server = &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return a, nil
}

// buildCapture returns nil (capture unsupported) unless both a microphone
// and an STT provider are configured.
func (a *App) buildCapture() capture.Engine {
	if a.providers.STT == nil || a.providers.Audio.Source == nil {
		return nil
	}
	return speech.NewRecognizer(a.providers.Audio.Source, a.providers.STT,
		speech.WithCaptureFormat(audio.Format{SampleRate: a.cfg.Session.SampleRate, Channels: 1}),
		speech.WithEndpointing(time.Duration(a.cfg.Session.EndpointingMS)*time.Millisecond),
		speech.WithRecognizerLogger(a.logger),
	)
}

func (a *App) buildPlayback() playback.Engine {
	if a.providers.TTS == nil || a.providers.Audio.Sink == nil {
		a.logger.Warn("app: no speech output configured; replies are text-only")
		return silent{}
	}
	return speech.NewSynthesizer(a.providers.TTS, a.providers.Audio.Sink,
		speech.WithSynthesizerLogger(a.logger),
	)
}

// Machine returns the interaction machine.
func (a *App) Machine() *interaction.Machine { return a.machine }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run drives the interaction machine, the HTTP server and the config watcher
// until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if a.server != nil && ln == nil {
		var err error
		if ln, err = net.Listen("tcp", a.server.Addr); err != nil {
			return fmt.Errorf("app: listen on %s: %w", a.server.Addr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.machine.Run(gctx) })

	if a.server != nil {
		a.logger.Info("app: http api listening", "addr", ln.Addr().String())

		g.Go(func() error {
			if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
			defer cancel()
			return a.server.Shutdown(sctx)
		})
	}

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.onConfigChange, config.WithLogger(a.logger))
		if err != nil {
			a.logger.Warn("app: config watch disabled", "path", a.configPath, "err", err)
		} else {
			g.Go(func() error {
				<-gctx.Done()
				w.Stop()
				return nil
			})
		}
	}

	return g.Wait()
}

// onConfigChange applies the settings that can change without a restart.
func (a *App) onConfigChange(old, updated *config.Config) {
	diff := config.Diff(old, updated)
	if diff.LogLevelChanged && a.level != nil {
		a.level.Set(diff.NewLogLevel.Level())
		a.logger.Info("app: log level changed", "level", updated.Server.LogLevel)
	}
	if len(diff.RestartRequired) > 0 {
		a.logger.Warn("app: configuration changed; restart to apply", "sections", diff.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases provider resources in reverse registration order. Later
// calls are no-ops.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if ctx.Err() != nil {
				errs = append(errs, fmt.Errorf("app: shutdown deadline exceeded with %d closers left", i+1))
				break
			}
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// silent is the playback engine used when no speech output is configured.
type silent struct{}

func (silent) Voices(context.Context) ([]tts.VoiceProfile, error) { return nil, nil }

func (silent) Speak(ctx context.Context, _ playback.Utterance) error { return ctx.Err() }
