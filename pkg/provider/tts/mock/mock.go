// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio chunks to consumers and to verify that
// the correct voice, language and text fragments are passed to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    SynthesizeChunks: [][]byte{[]byte("audio1"), []byte("audio2")},
//	    ListVoicesResult: []tts.VoiceProfile{{ID: "v1", Name: "Alice"}},
//	}
//	s, _ := p.SynthesizeStream(ctx, textCh, tts.StreamConfig{Voice: voice})
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/bawa-mj/vanya/pkg/provider/tts"
)

// SynthesizeStreamCall records a single invocation of SynthesizeStream.
type SynthesizeStreamCall struct {
	// Ctx is the context passed to SynthesizeStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to SynthesizeStream.
	Cfg tts.StreamConfig
}

// ListVoicesCall records a single invocation of ListVoices.
type ListVoicesCall struct {
	// Ctx is the context passed to ListVoices.
	Ctx context.Context
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SynthesizeChunks is the sequence of audio byte slices emitted on the
	// stream's audio channel.
	SynthesizeChunks [][]byte

	// SynthesizeErr, if non-nil, is returned as the error from SynthesizeStream
	// instead of starting a stream.
	SynthesizeErr error

	// StreamErr, if non-nil, is reported by the stream's Err after its audio
	// channel closes.
	StreamErr error

	// Hold, if non-nil, keeps the audio channel open after the chunks have been
	// sent until Hold is closed or ctx is done.
	Hold chan struct{}

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.VoiceProfile

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// --- Call records ---

	// SynthesizeStreamCalls records every call to SynthesizeStream in order.
	SynthesizeStreamCalls []SynthesizeStreamCall

	// ListVoicesCalls records every call to ListVoices in order.
	ListVoicesCalls []ListVoicesCall

	texts []string
}

type stream struct {
	audio chan []byte
	err   error
	done  chan struct{}
}

func (s *stream) Audio() <-chan []byte { return s.audio }

func (s *stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// SynthesizeStream records the call and, if SynthesizeErr is nil, returns a
// stream that emits SynthesizeChunks then closes.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, cfg tts.StreamConfig) (tts.Stream, error) {
	p.mu.Lock()
	p.SynthesizeStreamCalls = append(p.SynthesizeStreamCalls, SynthesizeStreamCall{Ctx: ctx, Cfg: cfg})
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([][]byte, len(p.SynthesizeChunks))
	copy(chunks, p.SynthesizeChunks)
	hold := p.Hold
	idx := len(p.texts)
	p.texts = append(p.texts, "")
	s := &stream{audio: make(chan []byte, len(chunks)), err: p.StreamErr, done: make(chan struct{})}
	p.mu.Unlock()

	// Drain the incoming text channel so the caller never blocks writing to it.
	textDone := make(chan struct{})
	go func() {
		defer close(textDone)
		var b strings.Builder
		for frag := range text {
			b.WriteString(frag)
		}
		p.mu.Lock()
		p.texts[idx] = b.String()
		p.mu.Unlock()
	}()

	go func() {
		defer close(s.audio)
		defer close(s.done)
		select {
		case <-textDone:
		case <-ctx.Done():
			return
		}
		for _, audio := range chunks {
			select {
			case <-ctx.Done():
				return
			case s.audio <- audio:
			}
		}
		if hold != nil {
			select {
			case <-hold:
			case <-ctx.Done():
			}
		}
	}()
	return s, nil
}

// Texts returns the full text consumed by each SynthesizeStream call, in call
// order. Entries are filled once the caller closes its text channel.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.texts))
	copy(out, p.texts)
	return out
}

// Calls returns a copy of the recorded SynthesizeStream calls. Thread-safe.
func (p *Provider) Calls() []SynthesizeStreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeStreamCall, len(p.SynthesizeStreamCalls))
	copy(out, p.SynthesizeStreamCalls)
	return out
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCalls = append(p.ListVoicesCalls, ListVoicesCall{Ctx: ctx})
	return p.ListVoicesResult, p.ListVoicesErr
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeStreamCalls = nil
	p.ListVoicesCalls = nil
	p.texts = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
