// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs) and
// presents a uniform streaming interface. The primary entry point is
// SynthesizeStream, which accepts a channel of text fragments and returns a
// Stream whose audio channel emits raw PCM bytes as they become available.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// StreamConfig selects the voice and language for one synthesis stream.
type StreamConfig struct {
	// Voice is the voice profile to synthesise with. Voice.SpeedFactor, when
	// non-zero, sets the speaking rate.
	Voice VoiceProfile

	// Language is the BCP-47 tag of the text (e.g., "hi-IN"). Providers that
	// accept a language hint forward it; others ignore it.
	Language string
}

// Stream is one running synthesis.
type Stream interface {
	// Audio emits raw PCM chunks. It is closed when synthesis completes, fails,
	// or ctx is cancelled.
	Audio() <-chan []byte

	// Err reports why the stream ended early. It is only meaningful after Audio
	// has been closed, and is nil after a complete synthesis.
	Err() error
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and returns
	// a Stream that emits raw PCM audio as it is synthesised. The caller must
	// drain Audio to avoid blocking the provider's internal goroutines.
	//
	// Returns a non-nil error only if the stream cannot be started.
	SynthesizeStream(ctx context.Context, text <-chan string, cfg StreamConfig) (Stream, error)

	// ListVoices returns all voice profiles available from this provider.
	//
	// Returns an error if the provider cannot be reached or if ctx is cancelled
	// before the list is retrieved.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
