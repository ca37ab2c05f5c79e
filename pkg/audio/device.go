// Package audio defines the local audio device abstractions used by the speech
// engines: a microphone [Source] and a speaker [Sink], plus PCM helpers.
//
// Implementations live in sub-packages (audio/malgo for real devices,
// audio/mock for tests). All audio is little-endian signed 16-bit PCM.
package audio

import (
	"context"
	"errors"
)

// ErrPermissionDenied is returned (possibly wrapped) when the operating system
// refuses access to the microphone.
var ErrPermissionDenied = errors.New("audio: device permission denied")

// ErrNoDevice is returned (possibly wrapped) when no suitable device exists.
var ErrNoDevice = errors.New("audio: no device available")

// Input is an open microphone capture.
type Input interface {
	// Frames delivers captured audio. It is closed after Close.
	Frames() <-chan AudioFrame

	// Close stops capturing and releases the device. Safe to call more than once.
	Close() error
}

// Source opens microphone captures. Only one Input may be open at a time.
type Source interface {
	// Open starts capturing in format f.
	Open(ctx context.Context, f Format) (Input, error)
}

// Output is an open speaker stream.
type Output interface {
	// Write queues PCM for playback. It does not wait for the audio to play.
	Write(pcm []byte) error

	// Drain blocks until all queued audio has been played or ctx is done.
	Drain(ctx context.Context) error

	// Close stops playback immediately, discarding queued audio. Safe to call
	// more than once.
	Close() error
}

// Sink opens speaker streams. Only one Output may be open at a time.
type Sink interface {
	// Open prepares playback of PCM in format f.
	Open(ctx context.Context, f Format) (Output, error)
}
