// Package config defines the configuration schema for the Vanya voice guide.
//
// Configuration is loaded from a YAML file (see [Load]) and validated on load.
// Provider sections name a registered factory (see [Registry]); the session
// section tunes the interaction loop.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls the verbosity of structured log output.
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

// Level converts l to the matching [slog.Level]. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// ListenDisabled as [ServerConfig.ListenAddr] turns the HTTP API off.
const ListenDisabled = "-"

// Default values applied by [ApplyDefaults].
const (
	DefaultListenAddr    = ":8080"
	DefaultLocale        = "en"
	DefaultToastDuration = 4 * time.Second
	DefaultSpeechRate    = 0.9
	DefaultEndpointingMS = 800
	DefaultSampleRate    = 16000
	DefaultServiceName   = "vanya"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Session   SessionConfig   `yaml:"session"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on (e.g., ":8080").
	// An empty value after defaults are applied is not possible; use "-" to
	// disable the HTTP listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls log verbosity. Changes are picked up by the watcher
	// without a restart.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig selects the backend for each capability.
type ProvidersConfig struct {
	LLM   ProviderEntry `yaml:"llm"`
	STT   ProviderEntry `yaml:"stt"`
	TTS   ProviderEntry `yaml:"tts"`
	Audio ProviderEntry `yaml:"audio"`
}

// ProviderEntry is the common configuration block for a single provider.
type ProviderEntry struct {
	// Name is the registered provider name (e.g., "gemini", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication credential. May be supplied through the
	// environment instead (see [ApplyEnv]).
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model where the provider offers several.
	Model string `yaml:"model"`

	// Options holds provider-specific settings not covered above.
	Options map[string]any `yaml:"options"`
}

// SessionConfig tunes the interaction loop.
type SessionConfig struct {
	// DefaultLocale is the locale code active at startup ("en" or "hi").
	DefaultLocale string `yaml:"default_locale"`

	// ToastDuration is how long a transient error stays visible.
	ToastDuration time.Duration `yaml:"toast_duration"`

	// RequestTimeout bounds a single backend request. Zero means no timeout.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// SpeechRate is the playback speaking rate in the range [0.5, 2.0].
	SpeechRate float64 `yaml:"speech_rate"`

	// DefaultVoiceID is the voice used when no installed voice matches the
	// reply locale.
	DefaultVoiceID string `yaml:"default_voice_id"`

	// EndpointingMS is the trailing silence, in milliseconds, after which the
	// recogniser closes the utterance.
	EndpointingMS int `yaml:"endpointing_ms"`

	// SampleRate is the capture sample rate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// BreakerFailures is the number of consecutive backend failures after
	// which requests fail fast for BreakerCooldown. Zero disables the
	// breaker.
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	// ServiceName is reported as the OTel service.name resource attribute.
	ServiceName string `yaml:"service_name"`
}

// ApplyDefaults fills zero-valued fields of cfg with their defaults.
// RequestTimeout stays zero unless set.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Session.DefaultLocale == "" {
		cfg.Session.DefaultLocale = DefaultLocale
	}
	if cfg.Session.ToastDuration == 0 {
		cfg.Session.ToastDuration = DefaultToastDuration
	}
	if cfg.Session.SpeechRate == 0 {
		cfg.Session.SpeechRate = DefaultSpeechRate
	}
	if cfg.Session.EndpointingMS == 0 {
		cfg.Session.EndpointingMS = DefaultEndpointingMS
	}
	if cfg.Session.SampleRate == 0 {
		cfg.Session.SampleRate = DefaultSampleRate
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}
