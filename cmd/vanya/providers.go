package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/bawa-mj/vanya/internal/app"
	"github.com/bawa-mj/vanya/internal/config"
	"github.com/bawa-mj/vanya/pkg/audio/malgo"
	"github.com/bawa-mj/vanya/pkg/provider/llm"
	"github.com/bawa-mj/vanya/pkg/provider/llm/anyllm"
	"github.com/bawa-mj/vanya/pkg/provider/llm/gemini"
	"github.com/bawa-mj/vanya/pkg/provider/stt"
	"github.com/bawa-mj/vanya/pkg/provider/stt/deepgram"
	"github.com/bawa-mj/vanya/pkg/provider/tts"
	"github.com/bawa-mj/vanya/pkg/provider/tts/elevenlabs"
)

// registerBuiltinProviders wires every provider that ships with Vanya into
// reg. The names match [config.ValidProviderNames].
func registerBuiltinProviders(reg *config.Registry, logger *slog.Logger) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	// gemini talks to the generateContent REST API directly so it can request
	// a JSON reply constrained by the response schema.
	reg.RegisterLLM("gemini", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []gemini.Option
		if entry.Model != "" {
			opts = append(opts, gemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, gemini.WithTimeout(d))
		}
		return gemini.New(entry.APIKey, opts...)
	})

	for _, name := range []string{"openai", "anthropic", "groq", "mistral", "deepseek", "llamacpp", "llamafile", "ollama"} {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("malgo", func(config.ProviderEntry) (config.AudioBackend, error) {
		d, err := malgo.New(logger)
		if err != nil {
			return config.AudioBackend{}, err
		}
		return config.AudioBackend{
			Source: d.Microphone(),
			Sink:   d.Speaker(),
			Close:  d.Close,
		}, nil
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			logger.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the providers named in cfg. Unnamed sections
// are left empty; app.New decides what that means for the session.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, createErr("llm", name, err)
		}
		ps.LLM = p
		slog.Info("provider created", "kind", "llm", "name", name)
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, createErr("stt", name, err)
		}
		ps.STT = p
		slog.Info("provider created", "kind", "stt", "name", name)
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, createErr("tts", name, err)
		}
		ps.TTS = p
		slog.Info("provider created", "kind", "tts", "name", name)
	}

	if name := cfg.Providers.Audio.Name; name != "" {
		b, err := reg.CreateAudio(cfg.Providers.Audio)
		if err != nil {
			// A host without sound devices still serves text replies; capture
			// is then reported as unsupported.
			slog.Warn("audio backend unavailable", "name", name, "err", err)
		} else {
			ps.Audio = b
			slog.Info("provider created", "kind", "audio", "name", name)
		}
	}

	return ps, nil
}

func createErr(kind, name string, err error) error {
	if errors.Is(err, config.ErrProviderNotRegistered) {
		return fmt.Errorf("%s provider %q is not built into this binary", kind, name)
	}
	return fmt.Errorf("create %s provider %q: %w", kind, name, err)
}

// optString returns the string value for key in opts, or "" when absent or
// not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// optDuration parses a Go duration string stored under key.
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}
