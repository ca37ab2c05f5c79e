// Package gemini provides an LLM provider backed by the Google Generative
// Language REST API (generateContent).
//
// Each Complete call is exactly one POST to
// {baseURL}/v1beta/models/{model}:generateContent. The reply text is read from
// candidates[0].content.parts[0].text; any missing step of that path yields
// [llm.ErrEmptyResponse]. Non-2xx statuses yield a [*llm.StatusError].
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bawa-mj/vanya/pkg/provider/llm"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.0-flash"

	// maxErrorBody caps how much of a failed response body is kept.
	maxErrorBody = 2048
)

var tracer = otel.Tracer("github.com/bawa-mj/vanya/pkg/provider/llm/gemini")

// Provider implements llm.Provider using the Gemini generateContent endpoint.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithModel overrides the default model (gemini-2.0-flash).
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL overrides the API base URL. Intended for tests and proxies.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client. The client's transport is used as
// is; nil keeps the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.client = c
	}
}

// WithTimeout sets a whole-request timeout on the HTTP client, whichever
// client is in use after all options are applied. Zero means no timeout beyond
// the transport's own defaults.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// Compile-time interface assertion.
var _ llm.Provider = (*Provider)(nil)

// New creates a Gemini Provider. apiKey must not be empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	if p.client == nil {
		p.client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if p.timeout > 0 {
		// Copy so a caller-supplied client is left untouched.
		c := *p.client
		c.Timeout = p.timeout
		p.client = &c
	}
	return p, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return "gemini" }

// ── wire types ───────────────────────────────────────────────────────────────

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMIMEType   string  `json:"responseMimeType,omitempty"`
	ResponseJSONSchema any     `json:"responseJsonSchema,omitempty"`
	Temperature        float64 `json:"temperature,omitempty"`
	MaxOutputTokens    int     `json:"maxOutputTokens,omitempty"`
}

type requestBody struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type responseBody struct {
	Candidates []struct {
		Content *struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, span := tracer.Start(ctx, "gemini.generateContent")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", p.model))

	resp, err := p.complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return resp, nil
}

func (p *Provider) complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	payload, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, p.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: send request: %w", err)
	}
	defer resp.Body.Close()

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &llm.StatusError{Provider: "gemini", StatusCode: resp.StatusCode, Body: string(body)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gemini: read response: %w", err)
	}

	var out responseBody
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("gemini: decode envelope: %w", llm.ErrEmptyResponse)
	}
	return extract(out)
}

// extract walks candidates[0].content.parts[0].text.
func extract(out responseBody) (*llm.CompletionResponse, error) {
	if len(out.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: no candidates: %w", llm.ErrEmptyResponse)
	}
	cand := out.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini: candidate has no parts: %w", llm.ErrEmptyResponse)
	}
	text := cand.Content.Parts[0].Text
	if text == nil || *text == "" {
		return nil, fmt.Errorf("gemini: part has no text: %w", llm.ErrEmptyResponse)
	}

	result := &llm.CompletionResponse{
		Content:      *text,
		FinishReason: cand.FinishReason,
	}
	if u := out.UsageMetadata; u != nil {
		result.Usage = llm.Usage{
			PromptTokens:     u.PromptTokenCount,
			CompletionTokens: u.CandidatesTokenCount,
			TotalTokens:      u.TotalTokenCount,
		}
	}
	return result, nil
}

// buildRequest converts an llm.CompletionRequest into the generateContent body.
func buildRequest(req llm.CompletionRequest) requestBody {
	body := requestBody{}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.SystemPrompt}}}
	}
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			// Gemini has no system role in contents; fold it into the instruction.
			if body.SystemInstruction == nil {
				body.SystemInstruction = &content{}
			}
			body.SystemInstruction.Parts = append(body.SystemInstruction.Parts, part{Text: m.Content})
		case llm.RoleAssistant:
			body.Contents = append(body.Contents, content{Role: "model", Parts: []part{{Text: m.Content}}})
		default:
			body.Contents = append(body.Contents, content{Role: "user", Parts: []part{{Text: m.Content}}})
		}
	}

	if req.ResponseMIMEType != "" || req.ResponseSchema != nil || req.Temperature != 0 || req.MaxTokens > 0 {
		body.GenerationConfig = &generationConfig{
			ResponseMIMEType:   req.ResponseMIMEType,
			ResponseJSONSchema: req.ResponseSchema,
			Temperature:        req.Temperature,
			MaxOutputTokens:    req.MaxTokens,
		}
	}
	return body
}
