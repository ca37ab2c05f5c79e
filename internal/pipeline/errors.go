package pipeline

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bawa-mj/vanya/internal/locale"
	"github.com/bawa-mj/vanya/pkg/provider/llm"
)

// TransportError reports a failed round trip: a non-success HTTP status or a
// network-level failure (StatusCode 0).
type TransportError struct {
	Provider   string
	StatusCode int
	Err        error
}

// Error implements error.
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("pipeline: transport: %s returned status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("pipeline: transport: %s: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error { return e.Err }

// Quota reports whether the backend rejected the request for quota.
func (e *TransportError) Quota() bool { return e.StatusCode == http.StatusTooManyRequests }

// EmptyResponseError reports a successful round trip whose envelope carried
// no extractable text.
type EmptyResponseError struct {
	Err error
}

// Error implements error.
func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("pipeline: empty response: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *EmptyResponseError) Unwrap() error { return e.Err }

// ParseError reports a reply that is not a JSON object with non-empty
// shloka, meaning and guidance strings.
type ParseError struct {
	// Body is the fence-stripped payload, truncated for diagnostics.
	Body string
	Err  error
}

// Error implements error.
func (e *ParseError) Error() string {
	return fmt.Sprintf("pipeline: parse reply: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error { return e.Err }

// classify maps a provider error onto the pipeline taxonomy.
func classify(provider string, err error) error {
	var se *llm.StatusError
	switch {
	case errors.As(err, &se):
		return &TransportError{Provider: provider, StatusCode: se.StatusCode, Err: err}
	case errors.Is(err, llm.ErrEmptyResponse):
		return &EmptyResponseError{Err: err}
	default:
		return &TransportError{Provider: provider, Err: err}
	}
}

// Kind returns a short label for err suitable for metrics and logs: "quota",
// "transport", "empty", "parse" or "other".
func Kind(err error) string {
	var te *TransportError
	var ee *EmptyResponseError
	var pe *ParseError
	switch {
	case errors.As(err, &te):
		if te.Quota() {
			return "quota"
		}
		return "transport"
	case errors.As(err, &ee):
		return "empty"
	case errors.As(err, &pe):
		return "parse"
	}
	return "other"
}

// Message returns the user-facing text for a pipeline failure in loc, which
// should be the request's locale snapshot. Quota rejections get their own
// text; every other failure gets the generic one.
func Message(err error, loc locale.Locale) string {
	var te *TransportError
	if errors.As(err, &te) && te.Quota() {
		return loc.Strings.QuotaError
	}
	return loc.Strings.Error
}
