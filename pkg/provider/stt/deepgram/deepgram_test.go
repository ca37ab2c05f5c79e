package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/bawa-mj/vanya/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en-US", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "interim_results", "false", q.Get("interim_results"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	if _, ok := q["endpointing"]; ok {
		t.Error("expected no endpointing param when unset")
	}
}

func TestBuildURL_SingleUtterance(t *testing.T) {
	p, err := New("key", WithModel("nova-2"), WithSampleRate(48000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{
		Language:    "hi-IN",
		Endpointing: 800 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "nova-2", q.Get("model"))
	assertEqual(t, "language", "hi-IN", q.Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
	assertEqual(t, "endpointing", "800", q.Get("endpointing"))
	assertEqual(t, "interim_results", "false", q.Get("interim_results"))
}

func TestBuildURL_InterimResults(t *testing.T) {
	p, _ := New("key")
	rawURL, err := p.buildURL(stt.StreamConfig{InterimResults: true})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(rawURL)
	assertEqual(t, "interim_results", "true", u.Query().Get("interim_results"))
}

// ---- JSON parsing tests ----

func TestParseDeepgramResponse_SpeechFinal(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"speech_final": true,
		"start": 0.5,
		"duration": 1.25,
		"channel": {
			"alternatives": [{
				"transcript": "I feel anxious about my exam",
				"confidence": 0.95,
				"words": [
					{"word": "I", "start": 0.5, "end": 0.6, "confidence": 0.97}
				]
			}]
		}
	}`)

	tr, ok := parseDeepgramResponse(raw)
	if !ok {
		t.Fatal("expected ok=true for valid Results message")
	}
	if !tr.IsFinal || !tr.SpeechFinal {
		t.Errorf("IsFinal=%v SpeechFinal=%v, want both true", tr.IsFinal, tr.SpeechFinal)
	}
	assertEqual(t, "text", "I feel anxious about my exam", tr.Text)
	if tr.Duration != 1250*time.Millisecond {
		t.Errorf("Duration = %v, want 1.25s", tr.Duration)
	}
	if tr.Timestamp != 500*time.Millisecond {
		t.Errorf("Timestamp = %v, want 500ms", tr.Timestamp)
	}
	if len(tr.Words) != 1 || tr.Words[0].Word != "I" {
		t.Errorf("Words = %+v", tr.Words)
	}
}

func TestParseDeepgramResponse_Ignored(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"metadata", `{"type":"Metadata","request_id":"abc"}`},
		{"empty alternatives", `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{"invalid json", `{invalid`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := parseDeepgramResponse([]byte(tt.raw)); ok {
				t.Error("expected ok=false")
			}
		})
	}
}

// ---- live session against a fake server ----

func TestStartStream_FinalsAndClose(t *testing.T) {
	gotAuth := make(chan string, 1)
	gotAudio := make(chan []byte, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()

		ctx := r.Context()
		typ, data, err := c.Read(ctx)
		if err != nil || typ != websocket.MessageBinary {
			return
		}
		gotAudio <- data

		_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"hello"}]}}`))
		// Wait for CloseStream or the client closing.
		_, _, _ = c.Read(ctx)
		c.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	p, err := New("secret", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if err := sess.SendAudio([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	assertEqual(t, "authorization", "Token secret", <-gotAuth)
	if audio := <-gotAudio; len(audio) != 4 {
		t.Errorf("server got %d audio bytes, want 4", len(audio))
	}

	select {
	case tr := <-sess.Finals():
		assertEqual(t, "text", "hello", tr.Text)
		if !tr.SpeechFinal {
			t.Error("expected SpeechFinal")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for final transcript")
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := sess.SendAudio([]byte{0}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("SendAudio after Close = %v, want ErrSessionClosed", err)
	}
	if _, ok := <-sess.Finals(); ok {
		t.Error("expected Finals to be closed after Close")
	}
	if err := sess.Err(); err != nil {
		t.Errorf("Err() after normal close = %v, want nil", err)
	}
}

func TestStartStream_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, _ := New("bad", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if _, err := p.StartStream(context.Background(), stt.StreamConfig{}); err == nil {
		t.Fatal("expected dial error")
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "model", defaultModel, p.model)
	assertEqual(t, "language", defaultLanguage, p.language)
	assertEqual(t, "endpoint", deepgramEndpoint, p.endpoint)
	if p.sampleRate != defaultSampleRate {
		t.Errorf("expected sampleRate %d, got %d", defaultSampleRate, p.sampleRate)
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
