// Package mock provides an in-memory [playback.Engine] for unit tests.
//
// By default Speak blocks until the test calls Finish (or ctx ends), so tests
// control exactly when an utterance completes:
//
//	eng := mock.NewEngine()
//	// ... adapter.Speak(...)
//	eng.Finish(nil) // completes the oldest pending utterance
//
// It is safe for concurrent use.
package mock

import (
	"context"
	"sync"

	"github.com/bawa-mj/vanya/internal/playback"
	"github.com/bawa-mj/vanya/pkg/provider/tts"
)

var _ playback.Engine = (*Engine)(nil)

// Engine is a mock implementation of [playback.Engine].
type Engine struct {
	mu sync.Mutex

	// VoicesResult is returned by Voices.
	VoicesResult []tts.VoiceProfile

	// VoicesErr is returned by Voices when non-nil.
	VoicesErr error

	// IgnoreCancel makes Speak keep blocking after ctx is cancelled and
	// return nil once finished, like an engine that reports end late.
	IgnoreCancel bool

	spoken  []playback.Utterance
	pending chan error
	started chan playback.Utterance
}

// NewEngine returns a ready mock engine.
func NewEngine() *Engine {
	return &Engine{
		pending: make(chan error, 16),
		started: make(chan playback.Utterance, 16),
	}
}

// Voices implements [playback.Engine].
func (e *Engine) Voices(context.Context) ([]tts.VoiceProfile, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.VoicesResult, e.VoicesErr
}

// Speak implements [playback.Engine].
func (e *Engine) Speak(ctx context.Context, u playback.Utterance) error {
	e.mu.Lock()
	e.spoken = append(e.spoken, u)
	ignore := e.IgnoreCancel
	e.mu.Unlock()
	e.started <- u

	if ignore {
		return <-e.pending
	}
	select {
	case err := <-e.pending:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finish completes one blocked Speak call with err.
func (e *Engine) Finish(err error) { e.pending <- err }

// Started returns a channel that receives each utterance as Speak begins.
func (e *Engine) Started() <-chan playback.Utterance { return e.started }

// Spoken returns every utterance passed to Speak.
func (e *Engine) Spoken() []playback.Utterance {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]playback.Utterance, len(e.spoken))
	copy(out, e.spoken)
	return out
}
