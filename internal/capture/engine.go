// Package capture wraps a single-utterance speech recognition engine and
// translates its lifecycle into generation-tagged events for the interaction
// loop.
//
// The [Engine] interface is the seam to the real recogniser (see the speech
// package for the microphone + streaming STT implementation). The [Adapter]
// enforces one session at a time, drops empty results, reports at most one
// result per session, and suppresses the trailing end event after a failure.
package capture

import (
	"context"
	"errors"
	"fmt"
)

// Engine error codes. They mirror the codes a browser recogniser reports.
const (
	CodeNotAllowed   = "not-allowed"
	CodeNetwork      = "network"
	CodeNoSpeech     = "no-speech"
	CodeAborted      = "aborted"
	CodeAudioCapture = "audio-capture"
)

// ErrUnsupported is wrapped by the error Start returns when no engine is
// available.
var ErrUnsupported = errors.New("capture: no recognition engine available")

// EngineError is a recogniser failure tagged with an engine error code.
type EngineError struct {
	Code string
	Err  error
}

// Error implements error.
func (e *EngineError) Error() string {
	if e.Err == nil {
		return "capture: " + e.Code
	}
	return fmt.Sprintf("capture: %s: %v", e.Code, e.Err)
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error { return e.Err }

// EngineEventType enumerates the raw events a [Session] produces.
type EngineEventType int

const (
	// EngineStarted means the recogniser began listening.
	EngineStarted EngineEventType = iota

	// EngineResult carries a final transcript.
	EngineResult

	// EngineFailed carries an *EngineError.
	EngineFailed
)

// EngineEvent is one raw event from a recognition session.
type EngineEvent struct {
	Type EngineEventType
	Text string
	Err  *EngineError
}

// Session is one single-utterance recognition run.
//
// Events is closed when the engine stops listening; the close is the end
// event. Stop asks the engine to finish gracefully and may be called more
// than once.
type Session interface {
	Events() <-chan EngineEvent
	Stop()
}

// Engine starts recognition sessions.
type Engine interface {
	// Start begins listening in the BCP-47 language tag lang. A synchronous
	// failure is returned as an *EngineError.
	Start(ctx context.Context, lang string) (Session, error)
}

// FailureKind classifies a capture failure for the user.
type FailureKind int

const (
	// FailureOther covers every failure except a permission refusal.
	FailureOther FailureKind = iota

	// FailurePermissionDenied means microphone access was refused.
	FailurePermissionDenied
)

// String implements fmt.Stringer.
func (k FailureKind) String() string {
	if k == FailurePermissionDenied {
		return "permission_denied"
	}
	return "other"
}

// KindOf classifies err. Only an *EngineError with [CodeNotAllowed] is a
// permission refusal.
func KindOf(err error) FailureKind {
	var ee *EngineError
	if errors.As(err, &ee) && ee.Code == CodeNotAllowed {
		return FailurePermissionDenied
	}
	return FailureOther
}
