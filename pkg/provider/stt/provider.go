// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a real-time transcription service (e.g., Deepgram) and
// exposes a uniform streaming interface. The central abstraction is
// SessionHandle: once opened, a session accepts raw PCM audio frames and emits
// Transcript values on two streams, low-latency partials and authoritative
// finals. A final carrying SpeechFinal marks the end of an utterance, which is
// what single-utterance capture waits for.
//
// Implementations must be safe for concurrent use. Audio input and transcript
// output channels are goroutine-safe by construction.
package stt

import (
	"context"
	"time"
)

// StreamConfig describes the audio format and recognition hints for a new STT
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. 16000 is the usual choice for
	// microphone capture.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono (required by most STT
	// providers).
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US", "hi-IN").
	// An empty string uses the provider default.
	Language string

	// InterimResults asks the provider for partial transcripts. Single-utterance
	// capture leaves this false and only consumes finals.
	InterimResults bool

	// Endpointing is the trailing silence after which the provider declares the
	// utterance finished. Zero uses the provider default.
	Endpointing time.Duration
}

// SessionHandle represents an open STT streaming session. It is an interface so
// that test code can provide mock implementations without requiring a live provider
// connection.
//
// Callers must call Close when the session is no longer needed. All methods must
// be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes to the provider for
	// transcription. Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel of interim transcripts. It only
	// carries values when StreamConfig.InterimResults was set. The channel is
	// closed when the session ends.
	Partials() <-chan Transcript

	// Finals returns a read-only channel of committed transcripts. The channel is
	// closed when the session ends.
	Finals() <-chan Transcript

	// Err reports why the session ended. It returns nil while the session is
	// live and after a normal close.
	Err() error

	// Close terminates the session, flushes any pending audio, and releases all
	// associated resources. After Close returns, the Partials and Finals channels
	// will be closed. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a new streaming transcription session with the given audio
	// format and recognition configuration. The returned SessionHandle is ready to
	// accept audio immediately.
	//
	// Returns an error if the provider cannot establish the session (e.g.,
	// authentication failure, unsupported configuration, or ctx already cancelled).
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
