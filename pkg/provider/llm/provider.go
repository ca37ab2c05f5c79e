// Package llm defines the Provider interface for generative-text backends.
//
// An LLM provider wraps a remote or local model API (e.g., Google Gemini, OpenAI,
// Anthropic, or a local Ollama instance) and exposes a uniform request/response
// interface so the response pipeline can ask for a single structured completion
// without coupling to any specific SDK or wire format.
//
// Implementations must be safe for concurrent use. Every call is exactly one
// attempt; providers must not retry on their own.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrEmptyResponse is returned by [Provider.Complete] when the backend answered
// successfully but the response envelope carried no extractable text.
var ErrEmptyResponse = errors.New("llm: response contained no content")

// StatusError reports a non-success HTTP status returned by the backend.
// Providers that talk HTTP directly return it so callers can distinguish quota
// exhaustion (429) from other transport failures.
type StatusError struct {
	// Provider is the short provider name (e.g., "gemini").
	Provider string

	// StatusCode is the HTTP status code returned by the backend.
	StatusCode int

	// Body is a truncated copy of the error body for diagnostics.
	Body string
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d %s", e.Provider, e.StatusCode, http.StatusText(e.StatusCode))
}

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and system
	// prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages must
// be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is typically
	// from the "user" role and drives the response.
	Messages []Message

	// SystemPrompt is an optional high-priority instruction injected before the
	// conversation history. Providers without a dedicated system field prepend it
	// as a "system"-role message.
	SystemPrompt string

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero means
	// use the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// ResponseMIMEType asks the backend for a specific output encoding, typically
	// "application/json". Providers that cannot enforce it ignore the field.
	ResponseMIMEType string

	// ResponseSchema is an optional JSON-serialisable JSON Schema the reply must
	// conform to. Providers that cannot enforce it ignore the field.
	ResponseSchema any
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// FinishReason reports why generation stopped, as reported by the backend.
	FinishReason string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Returns a *StatusError for non-success HTTP statuses, ErrEmptyResponse
	// (possibly wrapped) when the reply envelope holds no text, and any other
	// error for network failures or ctx cancellation.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name returns the short provider name used in logs and metrics.
	Name() string
}
