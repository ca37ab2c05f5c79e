package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/bawa-mj/vanya/pkg/provider/tts"
)

// ---- WebSocket message construction ----

func TestBuildWSMessage_FlushCommand(t *testing.T) {
	// ElevenLabs flush = {"text":""} with no other fields.
	data, err := buildWSMessage("", nil)
	if err != nil {
		t.Fatalf("buildWSMessage: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal flush: %v", err)
	}
	if string(raw["text"]) != `""` {
		t.Errorf("expected empty string for text, got %s", raw["text"])
	}
	if _, exists := raw["voice_settings"]; exists {
		t.Error("flush message should not contain voice_settings")
	}
}

func TestSettingsFor_Speed(t *testing.T) {
	vs := settingsFor(tts.VoiceProfile{ID: "v", SpeedFactor: 0.9})
	if vs.Speed != 0.9 {
		t.Errorf("Speed = %v, want 0.9", vs.Speed)
	}
	data, _ := json.Marshal(settingsFor(tts.VoiceProfile{ID: "v"}))
	if strings.Contains(string(data), "speed") {
		t.Errorf("unset SpeedFactor should omit speed, got %s", data)
	}
}

// ---- URL construction ----

func TestBuildStreamURL(t *testing.T) {
	p, _ := New("key")
	raw := p.buildStreamURL("voice-abc123", "hi-IN")

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Scheme != "wss" {
		t.Errorf("scheme = %q, want wss", u.Scheme)
	}
	if u.Path != "/v1/text-to-speech/voice-abc123/stream-input" {
		t.Errorf("path = %q", u.Path)
	}
	q := u.Query()
	if q.Get("model_id") != defaultModel {
		t.Errorf("model_id = %q", q.Get("model_id"))
	}
	if q.Get("output_format") != defaultOutputFmt {
		t.Errorf("output_format = %q", q.Get("output_format"))
	}
	if q.Get("language_code") != "hi" {
		t.Errorf("language_code = %q, want hi", q.Get("language_code"))
	}
}

func TestPrimarySubtag(t *testing.T) {
	tests := map[string]string{
		"hi-IN": "hi",
		"en_US": "en",
		"EN":    "en",
		"":      "",
	}
	for in, want := range tests {
		if got := primarySubtag(in); got != want {
			t.Errorf("primarySubtag(%q) = %q, want %q", in, got, want)
		}
	}
}

// ---- Voice list response parsing ----

func TestParseVoicesResponse_Languages(t *testing.T) {
	raw := []byte(`{
		"voices": [
			{
				"voice_id": "abc123",
				"name": "Swara",
				"category": "premade",
				"labels": {"gender": "female", "language": "hi"},
				"verified_languages": [{"language": "hi", "locale": "hi-IN"}, {"language": "en"}]
			},
			{
				"voice_id": "def456",
				"name": "Adam",
				"labels": {"gender": "male"}
			}
		]
	}`)

	profiles, err := parseVoicesResponse(raw)
	if err != nil {
		t.Fatalf("parseVoicesResponse: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}

	swara := profiles[0]
	if swara.Provider != "elevenlabs" {
		t.Errorf("Provider = %q", swara.Provider)
	}
	if swara.Metadata["gender"] != "female" || swara.Metadata["category"] != "premade" {
		t.Errorf("Metadata = %v", swara.Metadata)
	}
	want := []string{"hi-IN", "en", "hi"}
	if fmt.Sprint(swara.Languages) != fmt.Sprint(want) {
		t.Errorf("Languages = %v, want %v", swara.Languages, want)
	}
	if len(profiles[1].Languages) != 0 {
		t.Errorf("Adam Languages = %v, want none", profiles[1].Languages)
	}
	if _, ok := profiles[1].Metadata["category"]; ok {
		t.Error("expected no 'category' key in metadata when category is empty")
	}
}

func TestParseVoicesResponse_InvalidJSON(t *testing.T) {
	_, err := parseVoicesResponse([]byte(`{invalid`))
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestListVoices_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/voices" || r.Header.Get("xi-api-key") != "key" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"voices":[{"voice_id":"v1","name":"Rachel"}]}`)
	}))
	defer srv.Close()

	p, _ := New("key", WithBaseURLs("", srv.URL))
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "v1" {
		t.Errorf("voices = %+v", voices)
	}

	bad, _ := New("wrong", WithBaseURLs("", srv.URL))
	if _, err := bad.ListVoices(context.Background()); err == nil {
		t.Error("expected error for non-200 status")
	}
}

// ---- streaming against a fake server ----

func TestSynthesizeStream_RoundTrip(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	received := make(chan []string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		ctx := r.Context()

		var msgs []string
		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			msgs = append(msgs, string(data))
			var m textMessage
			_ = json.Unmarshal(data, &m)
			if m.Text == "" {
				break
			}
		}
		received <- msgs

		audio, _ := json.Marshal(audioResponse{Audio: base64.StdEncoding.EncodeToString(pcm)})
		_ = c.Write(ctx, websocket.MessageText, audio)
		final, _ := json.Marshal(audioResponse{IsFinal: true})
		_ = c.Write(ctx, websocket.MessageText, final)
		c.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	p, _ := New("secret", WithBaseURLs("ws"+strings.TrimPrefix(srv.URL, "http"), ""))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	text := make(chan string, 1)
	text <- "Karmanye vadhikaraste. Meaning. Guidance."
	close(text)

	s, err := p.SynthesizeStream(ctx, text, tts.StreamConfig{Voice: tts.VoiceProfile{ID: "v1", SpeedFactor: 0.9}, Language: "en-US"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}

	var got []byte
	for chunk := range s.Audio() {
		got = append(got, chunk...)
	}
	if string(got) != string(pcm) {
		t.Errorf("audio = %v, want %v", got, pcm)
	}
	if err := s.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}

	msgs := <-received
	if len(msgs) != 3 {
		t.Fatalf("server got %d messages, want 3 (BOI, text, flush): %v", len(msgs), msgs)
	}
	var boi boiMessage
	if err := json.Unmarshal([]byte(msgs[0]), &boi); err != nil {
		t.Fatalf("unmarshal BOI: %v", err)
	}
	if boi.XiAPIKey != "secret" {
		t.Errorf("xi_api_key = %q", boi.XiAPIKey)
	}
	if boi.VoiceSettings == nil || boi.VoiceSettings.Speed != 0.9 {
		t.Errorf("voice_settings = %+v, want speed 0.9", boi.VoiceSettings)
	}
}

func TestSynthesizeStream_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		_, _, _ = c.Read(r.Context())
		msg, _ := json.Marshal(audioResponse{Error: "quota_exceeded", Message: "out of credits"})
		_ = c.Write(r.Context(), websocket.MessageText, msg)
		c.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	p, _ := New("secret", WithBaseURLs("ws"+strings.TrimPrefix(srv.URL, "http"), ""))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	text := make(chan string)
	s, err := p.SynthesizeStream(ctx, text, tts.StreamConfig{Voice: tts.VoiceProfile{ID: "v1"}})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	for range s.Audio() {
	}
	if s.Err() == nil {
		t.Fatal("expected stream error")
	}
	if !strings.Contains(s.Err().Error(), "quota_exceeded") {
		t.Errorf("Err() = %v, want quota_exceeded", s.Err())
	}
}

func TestSynthesizeStream_EmptyVoice(t *testing.T) {
	p, _ := New("key")
	if _, err := p.SynthesizeStream(context.Background(), nil, tts.StreamConfig{}); err == nil {
		t.Error("expected error for empty voice ID")
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_WithOptions(t *testing.T) {
	p, err := New("key", WithModel("eleven_multilingual_v2"), WithOutputFormat("pcm_24000"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "eleven_multilingual_v2" {
		t.Errorf("expected model 'eleven_multilingual_v2', got %q", p.model)
	}
	if p.outputFormat != "pcm_24000" {
		t.Errorf("expected outputFormat 'pcm_24000', got %q", p.outputFormat)
	}
	if p.wsBase != defaultWSBase || p.apiBase != defaultAPIBase {
		t.Errorf("bases = %q, %q", p.wsBase, p.apiBase)
	}
}
