package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only the log level can be applied live; everything else is reported so the
// operator can be told a restart is needed.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists the top-level sections whose changes only take
	// effect after a restart (e.g., "providers.llm", "session").
	RestartRequired []string
}

// Changed reports whether d records any difference at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	providers := []struct {
		name     string
		old, new ProviderEntry
	}{
		{"providers.llm", old.Providers.LLM, new.Providers.LLM},
		{"providers.stt", old.Providers.STT, new.Providers.STT},
		{"providers.tts", old.Providers.TTS, new.Providers.TTS},
		{"providers.audio", old.Providers.Audio, new.Providers.Audio},
	}
	for _, p := range providers {
		// Options holds a map, so entries are not comparable with ==.
		if !reflect.DeepEqual(p.old, p.new) {
			d.RestartRequired = append(d.RestartRequired, p.name)
		}
	}
	if old.Session != new.Session {
		d.RestartRequired = append(d.RestartRequired, "session")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}
