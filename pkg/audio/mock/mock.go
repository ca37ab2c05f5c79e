// Package mock provides in-memory implementations of [audio.Source] and
// [audio.Sink] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every call so tests can
// assert on call counts and arguments, and expose exported fields that control
// return values.
//
// Typical usage:
//
//	src := mock.NewSource()
//	in, _ := src.Open(ctx, audio.Format{SampleRate: 16000, Channels: 1})
//	src.Push([]byte{0, 0})
//
//	sink := &mock.Sink{}
//	out, _ := sink.Open(ctx, format)
//	_ = out.Write(pcm)
package mock

import (
	"context"
	"sync"

	"github.com/bawa-mj/vanya/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source].
type Source struct {
	mu sync.Mutex

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// Formats records the format of every Open call.
	Formats []audio.Format

	current *Input
	inputs  []*Input
}

// NewSource returns an empty Source.
func NewSource() *Source { return &Source{} }

// Open implements [audio.Source].
func (s *Source) Open(_ context.Context, f audio.Format) (audio.Input, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Formats = append(s.Formats, f)
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	in := &Input{frames: make(chan audio.AudioFrame, 64), format: f}
	s.current = in
	s.inputs = append(s.inputs, in)
	return in, nil
}

// Push delivers pcm on the most recently opened Input. It reports false when no
// open Input exists.
func (s *Source) Push(pcm []byte) bool {
	s.mu.Lock()
	in := s.current
	s.mu.Unlock()
	if in == nil {
		return false
	}
	return in.push(pcm)
}

// Inputs returns every Input opened so far.
func (s *Source) Inputs() []*Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Input, len(s.inputs))
	copy(out, s.inputs)
	return out
}

// Input is a mock implementation of [audio.Input].
type Input struct {
	mu     sync.Mutex
	frames chan audio.AudioFrame
	format audio.Format
	closed bool
	closes int
}

func (in *Input) push(pcm []byte) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return false
	}
	select {
	case in.frames <- audio.AudioFrame{Data: pcm, SampleRate: in.format.SampleRate, Channels: in.format.Channels}:
		return true
	default:
		return false
	}
}

// Frames implements [audio.Input].
func (in *Input) Frames() <-chan audio.AudioFrame { return in.frames }

// Close implements [audio.Input].
func (in *Input) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.closes++
	if !in.closed {
		in.closed = true
		close(in.frames)
	}
	return nil
}

// Closed reports whether Close has been called.
func (in *Input) Closed() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.closed
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink is a mock implementation of [audio.Sink].
type Sink struct {
	mu sync.Mutex

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// WriteErr, if non-nil, is returned by every Output.Write.
	WriteErr error

	// DrainGate, if non-nil, makes Output.Drain block until it is closed, the
	// Output is closed, or ctx is done.
	DrainGate chan struct{}

	outputs []*Output
}

// Open implements [audio.Sink].
func (s *Sink) Open(_ context.Context, f audio.Format) (audio.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	out := &Output{Format: f, writeErr: s.WriteErr, gate: s.DrainGate, done: make(chan struct{})}
	s.outputs = append(s.outputs, out)
	return out, nil
}

// Outputs returns every Output opened so far.
func (s *Sink) Outputs() []*Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Output, len(s.outputs))
	copy(out, s.outputs)
	return out
}

// Output is a mock implementation of [audio.Output].
type Output struct {
	// Format is the format passed to Open.
	Format audio.Format

	mu       sync.Mutex
	written  []byte
	writeErr error
	gate     chan struct{}
	done     chan struct{}
	closed   bool
	drains   int
}

// Write implements [audio.Output].
func (o *Output) Write(pcm []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.writeErr != nil {
		return o.writeErr
	}
	o.written = append(o.written, pcm...)
	return nil
}

// Drain implements [audio.Output].
func (o *Output) Drain(ctx context.Context) error {
	o.mu.Lock()
	o.drains++
	gate := o.gate
	o.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements [audio.Output].
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.done)
	}
	return nil
}

// Written returns a copy of all PCM written so far.
func (o *Output) Written() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]byte, len(o.written))
	copy(out, o.written)
	return out
}

// Closed reports whether Close has been called.
func (o *Output) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Ensure the mocks implement the audio interfaces at compile time.
var (
	_ audio.Source = (*Source)(nil)
	_ audio.Input  = (*Input)(nil)
	_ audio.Sink   = (*Sink)(nil)
	_ audio.Output = (*Output)(nil)
)
