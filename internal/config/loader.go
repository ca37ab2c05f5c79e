package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":   {"gemini", "openai", "anthropic", "ollama", "groq", "mistral", "deepseek", "llamacpp", "llamafile"},
	"stt":   {"deepgram"},
	"tts":   {"elevenlabs"},
	"audio": {"malgo"},
}

// envKeys lists, per provider kind, the environment variables consulted for
// an API key in priority order.
var envKeys = map[string][]string{
	"llm": {"VANYA_LLM_API_KEY", "GEMINI_API_KEY"},
	"stt": {"DEEPGRAM_API_KEY"},
	"tts": {"ELEVENLABS_API_KEY"},
}

// Load reads the YAML configuration file at path, applies environment
// overrides and defaults, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	ApplyEnv(cfg, os.LookupEnv)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. The environment is not consulted.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// ApplyEnv fills empty provider API keys from the environment using lookup
// (typically [os.LookupEnv]). Keys set in the file take precedence.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	fill := func(kind string, entry *ProviderEntry) {
		if entry.APIKey != "" {
			return
		}
		for _, key := range envKeys[kind] {
			if v, ok := lookup(key); ok && v != "" {
				entry.APIKey = v
				return
			}
		}
	}
	fill("llm", &cfg.Providers.LLM)
	fill("stt", &cfg.Providers.STT)
	fill("tts", &cfg.Providers.TTS)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("audio", cfg.Providers.Audio.Name)

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}

	// Capture needs both a recogniser and a microphone; playback needs both a
	// synthesiser and a speaker.
	if cfg.Providers.STT.Name != "" && cfg.Providers.Audio.Name == "" {
		errs = append(errs, errors.New("providers.stt requires providers.audio to be configured"))
	}
	if cfg.Providers.TTS.Name != "" && cfg.Providers.Audio.Name == "" {
		errs = append(errs, errors.New("providers.tts requires providers.audio to be configured"))
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; speech capture will be reported as unsupported")
	}

	s := cfg.Session
	if s.DefaultLocale != "" && s.DefaultLocale != "en" && s.DefaultLocale != "hi" {
		errs = append(errs, fmt.Errorf("session.default_locale %q is invalid; valid values: en, hi", s.DefaultLocale))
	}
	if s.ToastDuration < 0 {
		errs = append(errs, fmt.Errorf("session.toast_duration %s must not be negative", s.ToastDuration))
	}
	if s.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.request_timeout %s must not be negative", s.RequestTimeout))
	}
	if s.SpeechRate != 0 && (s.SpeechRate < 0.5 || s.SpeechRate > 2.0) {
		errs = append(errs, fmt.Errorf("session.speech_rate %.2f is out of range [0.5, 2.0]", s.SpeechRate))
	}
	if s.EndpointingMS < 0 {
		errs = append(errs, fmt.Errorf("session.endpointing_ms %d must not be negative", s.EndpointingMS))
	}
	if s.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("session.sample_rate %d must not be negative", s.SampleRate))
	}
	if s.BreakerFailures < 0 || s.BreakerCooldown < 0 {
		errs = append(errs, errors.New("session.breaker_failures and session.breaker_cooldown must not be negative"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
