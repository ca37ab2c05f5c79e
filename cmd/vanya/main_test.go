package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bawa-mj/vanya/internal/app"
	"github.com/bawa-mj/vanya/internal/config"
	"github.com/bawa-mj/vanya/internal/interaction"
	"github.com/bawa-mj/vanya/internal/transcript"
	llmmock "github.com/bawa-mj/vanya/pkg/provider/llm/mock"
)

func TestOptString(t *testing.T) {
	t.Parallel()
	opts := map[string]any{"output_format": "pcm_16000", "n": 3}

	tests := []struct {
		key  string
		want string
	}{
		{"output_format", "pcm_16000"},
		{"n", ""},
		{"missing", ""},
	}
	for _, tt := range tests {
		if got := optString(opts, tt.key); got != tt.want {
			t.Errorf("optString(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
	if got := optString(nil, "x"); got != "" {
		t.Errorf("optString(nil) = %q", got)
	}
}

func TestOptDuration(t *testing.T) {
	t.Parallel()
	opts := map[string]any{"timeout": "20s", "bad": "soon"}
	if got := optDuration(opts, "timeout"); got != 20*time.Second {
		t.Errorf("timeout = %v, want 20s", got)
	}
	if got := optDuration(opts, "bad"); got != 0 {
		t.Errorf("bad = %v, want 0", got)
	}
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	cfg := &config.Config{Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "gemini"}}}
	if _, err := buildProviders(cfg, reg); err == nil || !strings.Contains(err.Error(), "not built") {
		t.Errorf("unregistered llm error = %v", err)
	}

	reg.RegisterAudio("malgo", func(config.ProviderEntry) (config.AudioBackend, error) {
		return config.AudioBackend{}, errors.New("no devices")
	})
	cfg = &config.Config{Providers: config.ProvidersConfig{Audio: config.ProviderEntry{Name: "malgo"}}}
	ps, err := buildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("audio failure should not be fatal: %v", err)
	}
	if ps.Audio.Source != nil {
		t.Error("audio source set after failure")
	}
}

func TestStartupSummary(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server:    config.ServerConfig{ListenAddr: config.ListenDisabled, LogLevel: config.LogDebug},
		Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "gemini", Model: "gemini-2.5-flash"}},
		Session:   config.SessionConfig{DefaultLocale: "hi"},
	}
	var buf bytes.Buffer
	printStartupSummary(&buf, cfg, &app.Providers{LLM: &llmmock.Provider{}})

	out := buf.String()
	for _, want := range []string{"gemini / gemini-2.5-flash", "disabled", "DEBUG", "(none)"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestConsole_Keys(t *testing.T) {
	t.Parallel()
	c := consoleModel{ctx: context.Background(), width: 80}

	_, cmd := c.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}

	next, _ := c.Update(tea.WindowSizeMsg{Width: 40, Height: 10})
	if w := next.(consoleModel).width; w != 40 {
		t.Errorf("width = %d, want 40", w)
	}

	next, _ = c.Update(intentErrMsg{errors.New("interaction: machine stopped")})
	if !strings.Contains(next.View(), "machine stopped") {
		t.Error("intent error not rendered")
	}
}

func TestConsole_View(t *testing.T) {
	t.Parallel()
	c := consoleModel{width: 80, state: interaction.State{
		Mode:       interaction.Speaking,
		Locale:     "en",
		Label:      "हिन्दी",
		NoticeOpen: true,
		Notice:     "Speech capture is not available.",
		Error:      "Quota exceeded.",
		Turns: []transcript.Turn{
			{Speaker: transcript.User, Text: "I feel lost"},
			{Speaker: transcript.Assistant, Reply: transcript.Reply{Shloka: "S", Meaning: "M", Guidance: "G"}},
		},
	}}

	out := c.View()
	for _, want := range []string{"speaking", "> I feel lost", "Speech capture is not available.", "Quota exceeded.", "हिन्दी"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q:\n%s", want, out)
		}
	}

	c.state = interaction.State{Welcome: "Namaste"}
	if !strings.Contains(c.View(), "Namaste") {
		t.Error("welcome not shown for empty transcript")
	}
}
