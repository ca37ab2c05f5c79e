package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/bawa-mj/vanya/internal/app"
	"github.com/bawa-mj/vanya/internal/capture"
	capmock "github.com/bawa-mj/vanya/internal/capture/mock"
	"github.com/bawa-mj/vanya/internal/config"
	"github.com/bawa-mj/vanya/internal/interaction"
	"github.com/bawa-mj/vanya/internal/observe"
	playmock "github.com/bawa-mj/vanya/internal/playback/mock"
	audiomock "github.com/bawa-mj/vanya/pkg/audio/mock"
	"github.com/bawa-mj/vanya/pkg/provider/llm"
	llmmock "github.com/bawa-mj/vanya/pkg/provider/llm/mock"
	sttmock "github.com/bawa-mj/vanya/pkg/provider/stt/mock"
	ttsmock "github.com/bawa-mj/vanya/pkg/provider/tts/mock"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		Server:    config.ServerConfig{ListenAddr: config.ListenDisabled},
		Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "mock"}},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func testProviders() *app.Providers {
	return &app.Providers{
		LLM: &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
			Content: `{"shloka":"S","meaning":"M","guidance":"G"}`,
		}},
	}
}

func baseOptions(t *testing.T) []app.Option {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return []app.Option{
		app.WithMetrics(metrics),
		app.WithLogger(slog.New(slog.DiscardHandler)),
		app.WithMetricsHandler(http.NotFoundHandler()),
	}
}

// start runs a on a loopback listener and returns its base URL.
func start(t *testing.T, cfg *config.Config, providers *app.Providers, opts ...app.Option) (*app.App, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	opts = append(append(baseOptions(t), app.WithListener(ln)), opts...)
	a, err := app.New(cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})

	waitAlive(t, a.Machine())
	return a, "http://" + ln.Addr().String()
}

func waitAlive(t *testing.T, m *interaction.Machine) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !m.Alive() {
		if time.Now().After(deadline) {
			t.Fatal("machine did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func post(t *testing.T, url string) (int, interaction.State) {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var st interaction.State
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode, st
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := app.New(nil, testProviders()); err == nil {
		t.Error("New(nil config) succeeded")
	}
	if _, err := app.New(testConfig(), &app.Providers{}); err == nil {
		t.Error("New without LLM succeeded")
	}
	cfg := testConfig()
	cfg.Session.DefaultLocale = "fr"
	if _, err := app.New(cfg, testProviders(), baseOptions(t)...); err == nil {
		t.Error("New with unknown locale succeeded")
	}
}

func TestNew_CaptureSupport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		providers       *app.Providers
		wantUnsupported bool
	}{
		{"llm only", testProviders(), true},
		{"stt without microphone", func() *app.Providers {
			p := testProviders()
			p.STT = &sttmock.Provider{}
			return p
		}(), true},
		{"stt and microphone", func() *app.Providers {
			p := testProviders()
			p.STT = &sttmock.Provider{}
			p.TTS = &ttsmock.Provider{}
			p.Audio = config.AudioBackend{Source: audiomock.NewSource(), Sink: &audiomock.Sink{}}
			return p
		}(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a, err := app.New(testConfig(), tt.providers, baseOptions(t)...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			st := a.Machine().State()
			if st.Unsupported != tt.wantUnsupported || st.NoticeOpen != tt.wantUnsupported {
				t.Errorf("unsupported = %v, notice = %v, want %v", st.Unsupported, st.NoticeOpen, tt.wantUnsupported)
			}
		})
	}
}

func TestServer_Intents(t *testing.T) {
	t.Parallel()
	ce := &capmock.Engine{EndOnStop: true}
	a, base := start(t, testConfig(), testProviders(),
		app.WithCaptureEngine(ce),
		app.WithPlaybackEngine(playmock.NewEngine()),
	)

	resp, err := http.Get(base + "/api/state")
	if err != nil {
		t.Fatalf("GET /api/state: %v", err)
	}
	var st interaction.State
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if st.Mode != interaction.Idle || st.Locale != "en" {
		t.Errorf("initial state = %+v", st)
	}

	code, st := post(t, base+"/api/mic")
	if code != http.StatusOK || st.Mode != interaction.Listening {
		t.Errorf("POST /api/mic = %d mode %v, want 200 listening", code, st.Mode)
	}

	code, st = post(t, base+"/api/locale")
	if code != http.StatusOK || st.Locale != "hi" {
		t.Errorf("POST /api/locale = %d locale %q, want 200 hi", code, st.Locale)
	}

	if code, _ = post(t, base+"/api/mic"); code != http.StatusOK {
		t.Errorf("second POST /api/mic = %d, want 200", code)
	}
	deadline := time.Now().Add(3 * time.Second)
	for a.Machine().State().Mode != interaction.Idle {
		if time.Now().After(deadline) {
			t.Fatalf("mode = %v after stopping capture, want idle", a.Machine().State().Mode)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := ce.Calls(); len(got) != 1 || got[0] != "en-US" {
		t.Errorf("capture starts = %v, want [en-US]", got)
	}
}

func TestServer_DismissNotice(t *testing.T) {
	t.Parallel()
	_, base := start(t, testConfig(), testProviders(), app.WithPlaybackEngine(playmock.NewEngine()))

	code, st := post(t, base+"/api/notice/dismiss")
	if code != http.StatusOK || st.NoticeOpen || !st.Unsupported {
		t.Errorf("dismiss = %d %+v", code, st)
	}
	code, st = post(t, base+"/api/mic")
	if code != http.StatusOK || !st.NoticeOpen || st.Mode != interaction.Idle {
		t.Errorf("mic while unsupported = %d %+v, want notice reopened", code, st)
	}
}

func TestServer_Events(t *testing.T) {
	t.Parallel()
	_, base := start(t, testConfig(), testProviders(),
		app.WithCaptureEngine(&capmock.Engine{EndOnStop: true}),
		app.WithPlaybackEngine(playmock.NewEngine()),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+base[len("http"):]+"/api/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	var st interaction.State
	if err := wsjson.Read(ctx, conn, &st); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if st.Mode != interaction.Idle {
		t.Errorf("initial mode = %v", st.Mode)
	}

	post(t, base+"/api/mic")
	for st.Mode != interaction.Listening {
		if err := wsjson.Read(ctx, conn, &st); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
}

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	a, err := app.New(testConfig(), testProviders(), baseOptions(t)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	get := func(path string) int {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := get("/healthz"); code != http.StatusOK {
		t.Errorf("/healthz = %d", code)
	}
	if code := get("/readyz"); code != http.StatusServiceUnavailable {
		t.Errorf("/readyz before Run = %d, want 503", code)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	waitAlive(t, a.Machine())

	if code := get("/readyz"); code != http.StatusOK {
		t.Errorf("/readyz while running = %d, want 200", code)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
	if code := get("/readyz"); code != http.StatusServiceUnavailable {
		t.Errorf("/readyz after stop = %d, want 503", code)
	}
	if code, _ := post(t, srv.URL+"/api/mic"); code != http.StatusServiceUnavailable {
		t.Errorf("POST /api/mic after stop = %d, want 503", code)
	}
}

func TestApp_Shutdown(t *testing.T) {
	t.Parallel()
	var closed atomic.Int32
	p := testProviders()
	p.Audio = config.AudioBackend{Close: func() error {
		closed.Add(1)
		return nil
	}}

	a, err := app.New(testConfig(), p, baseOptions(t)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if n := closed.Load(); n != 1 {
		t.Errorf("audio closed %d times, want 1", n)
	}
}

func TestServer_BreakerReadiness(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Session.BreakerFailures = 1
	cfg.Session.BreakerCooldown = time.Hour

	ce := &capmock.Engine{EndOnStop: true}
	providers := &app.Providers{LLM: &llmmock.Provider{CompleteErr: errors.New("connection refused")}}
	a, base := start(t, cfg, providers,
		app.WithCaptureEngine(ce),
		app.WithPlaybackEngine(playmock.NewEngine()),
	)

	readyz := func() (int, string) {
		resp, err := http.Get(base + "/readyz")
		if err != nil {
			t.Fatalf("GET /readyz: %v", err)
		}
		defer resp.Body.Close()
		var body struct {
			Checks map[string]string `json:"checks"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return resp.StatusCode, body.Checks["llm"]
	}
	if code, llmCheck := readyz(); code != http.StatusOK || llmCheck != "ok" {
		t.Fatalf("/readyz = %d llm=%q, want 200 ok", code, llmCheck)
	}

	post(t, base+"/api/mic")
	sess := ce.Last()
	sess.Emit(capture.EngineEvent{Type: capture.EngineStarted})
	sess.Emit(capture.EngineEvent{Type: capture.EngineResult, Text: "I feel lost"})

	deadline := time.Now().Add(3 * time.Second)
	for a.Machine().State().Error == "" {
		if time.Now().After(deadline) {
			t.Fatal("no error toast after backend failure")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if code, llmCheck := readyz(); code != http.StatusServiceUnavailable || !strings.HasPrefix(llmCheck, "fail") {
		t.Errorf("/readyz = %d llm=%q, want 503 fail", code, llmCheck)
	}
}
