package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bawa-mj/vanya/pkg/provider/llm"
)

func newTestProvider(t *testing.T, h http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	p, err := New("test-key", WithBaseURL(srv.URL), WithModel("gemini-test"), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNew_EmptyKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
}

func TestNew_Timeout(t *testing.T) {
	t.Parallel()

	custom := &http.Client{}
	tests := []struct {
		name string
		opts []Option
	}{
		{"default client", []Option{WithTimeout(5 * time.Second)}},
		{"timeout before client", []Option{WithTimeout(5 * time.Second), WithHTTPClient(custom)}},
		{"timeout after client", []Option{WithHTTPClient(custom), WithTimeout(5 * time.Second)}},
		{"timeout after nil client", []Option{WithHTTPClient(nil), WithTimeout(5 * time.Second)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := New("test-key", tt.opts...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if p.client == nil || p.client.Timeout != 5*time.Second {
				t.Errorf("client timeout = %+v, want 5s", p.client)
			}
			if custom.Timeout != 0 {
				t.Errorf("caller's client was modified: Timeout = %v", custom.Timeout)
			}
		})
	}
}

func TestComplete_RequestShape(t *testing.T) {
	t.Parallel()

	var (
		gotPath string
		gotKey  string
		gotBody requestBody
	)
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"{\"shloka\":\"S\"}"}]},"finishReason":"STOP"}]}`)
	})

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt:     "You are Vanya.",
		Messages:         []llm.Message{{Role: llm.RoleUser, Content: `User Said: "hello"`}},
		ResponseMIMEType: "application/json",
		ResponseSchema:   map[string]any{"type": "object"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != `{"shloka":"S"}` {
		t.Errorf("Content = %q, want %q", resp.Content, `{"shloka":"S"}`)
	}
	if resp.FinishReason != "STOP" {
		t.Errorf("FinishReason = %q, want STOP", resp.FinishReason)
	}
	if gotPath != "/v1beta/models/gemini-test:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("x-goog-api-key = %q, want test-key", gotKey)
	}
	if gotBody.SystemInstruction == nil || gotBody.SystemInstruction.Parts[0].Text != "You are Vanya." {
		t.Errorf("systemInstruction = %+v", gotBody.SystemInstruction)
	}
	if len(gotBody.Contents) != 1 || gotBody.Contents[0].Role != "user" {
		t.Fatalf("contents = %+v", gotBody.Contents)
	}
	if gotBody.GenerationConfig == nil || gotBody.GenerationConfig.ResponseMIMEType != "application/json" {
		t.Errorf("generationConfig = %+v", gotBody.GenerationConfig)
	}
	if gotBody.GenerationConfig != nil && gotBody.GenerationConfig.ResponseJSONSchema == nil {
		t.Error("expected responseJsonSchema to be forwarded")
	}
}

func TestComplete_StatusError(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"code":429}}`)
	})

	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	var se *llm.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *llm.StatusError", err)
	}
	if se.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", se.StatusCode)
	}
	if se.Body == "" {
		t.Error("expected error body to be captured")
	}
}

func TestComplete_EmptyEnvelope(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"no candidates", `{}`},
		{"empty candidates", `{"candidates":[]}`},
		{"no content", `{"candidates":[{}]}`},
		{"no parts", `{"candidates":[{"content":{"parts":[]}}]}`},
		{"no text", `{"candidates":[{"content":{"parts":[{}]}}]}`},
		{"empty text", `{"candidates":[{"content":{"parts":[{"text":""}]}}]}`},
		{"not json", `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := p.Complete(context.Background(), llm.CompletionRequest{
				Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
			})
			if !errors.Is(err, llm.ErrEmptyResponse) {
				t.Errorf("err = %v, want ErrEmptyResponse", err)
			}
		})
	}
}

func TestComplete_NetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p, err := New("k", WithBaseURL(url))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected network error")
	}
	var se *llm.StatusError
	if errors.As(err, &se) {
		t.Errorf("network failure should not be a StatusError, got %v", se)
	}
}

func TestBuildRequest_Roles(t *testing.T) {
	t.Parallel()

	body := buildRequest(llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "sys"},
			{Role: llm.RoleUser, Content: "q"},
			{Role: llm.RoleAssistant, Content: "a"},
		},
	})
	if body.SystemInstruction == nil || body.SystemInstruction.Parts[0].Text != "sys" {
		t.Errorf("system message should fold into systemInstruction, got %+v", body.SystemInstruction)
	}
	if len(body.Contents) != 2 {
		t.Fatalf("len(contents) = %d, want 2", len(body.Contents))
	}
	if body.Contents[1].Role != "model" {
		t.Errorf("assistant role = %q, want model", body.Contents[1].Role)
	}
	if body.GenerationConfig != nil {
		t.Errorf("generationConfig should be omitted for plain requests, got %+v", body.GenerationConfig)
	}
}
