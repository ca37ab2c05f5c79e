// Package speech provides the production capture and playback engines: a
// [Recognizer] that streams the microphone into a streaming STT provider, and
// a [Synthesizer] that streams TTS audio to the speaker.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bawa-mj/vanya/internal/capture"
	"github.com/bawa-mj/vanya/pkg/audio"
	"github.com/bawa-mj/vanya/pkg/provider/stt"
)

// Compile-time interface assertions.
var (
	_ capture.Engine  = (*Recognizer)(nil)
	_ capture.Session = (*recognition)(nil)
)

// RecognizerOption configures a [Recognizer].
type RecognizerOption func(*Recognizer)

// WithCaptureFormat sets the microphone format sent to the STT provider.
func WithCaptureFormat(f audio.Format) RecognizerOption {
	return func(r *Recognizer) {
		if f.SampleRate > 0 && f.Channels > 0 {
			r.format = f
		}
	}
}

// WithEndpointing sets the trailing silence after which the provider closes
// the utterance.
func WithEndpointing(d time.Duration) RecognizerOption {
	return func(r *Recognizer) { r.endpointing = d }
}

// WithRecognizerLogger sets the recogniser's logger.
func WithRecognizerLogger(l *slog.Logger) RecognizerOption {
	return func(r *Recognizer) {
		if l != nil {
			r.logger = l
		}
	}
}

// Recognizer is a single-utterance [capture.Engine]: each session listens
// until the provider marks the end of speech, then ends on its own.
type Recognizer struct {
	source      audio.Source
	provider    stt.Provider
	format      audio.Format
	endpointing time.Duration
	logger      *slog.Logger
}

// NewRecognizer returns a recogniser reading from source and transcribing
// with provider.
func NewRecognizer(source audio.Source, provider stt.Provider, opts ...RecognizerOption) *Recognizer {
	r := &Recognizer{
		source:      source,
		provider:    provider,
		format:      audio.Format{SampleRate: 16000, Channels: 1},
		endpointing: 800 * time.Millisecond,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start opens the microphone and an STT stream in lang. A refused microphone
// is reported with [capture.CodeNotAllowed].
func (r *Recognizer) Start(ctx context.Context, lang string) (capture.Session, error) {
	in, err := r.source.Open(ctx, r.format)
	if err != nil {
		code := capture.CodeAudioCapture
		if errors.Is(err, audio.ErrPermissionDenied) {
			code = capture.CodeNotAllowed
		}
		return nil, &capture.EngineError{Code: code, Err: err}
	}

	sctx, cancel := context.WithCancel(ctx)
	h, err := r.provider.StartStream(sctx, stt.StreamConfig{
		SampleRate:     r.format.SampleRate,
		Channels:       r.format.Channels,
		Language:       lang,
		InterimResults: false,
		Endpointing:    r.endpointing,
	})
	if err != nil {
		cancel()
		_ = in.Close()
		return nil, &capture.EngineError{Code: capture.CodeNetwork, Err: err}
	}

	s := &recognition{
		in:     in,
		format: r.format,
		handle: h,
		cancel: cancel,
		events: make(chan capture.EngineEvent, 4),
		stop:   make(chan struct{}),
		logger: r.logger.With("lang", lang),
	}
	go s.run(sctx)
	return s, nil
}

// recognition is one live session.
type recognition struct {
	in     audio.Input
	format audio.Format
	handle stt.SessionHandle
	cancel context.CancelFunc
	events chan capture.EngineEvent
	logger *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

func (s *recognition) Events() <-chan capture.EngineEvent { return s.events }

// Stop asks the session to flush what was heard and finish.
func (s *recognition) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *recognition) run(ctx context.Context) {
	defer close(s.events)
	defer s.cancel()

	s.events <- capture.EngineEvent{Type: capture.EngineStarted}

	sendErr := make(chan error, 1)
	go func() {
		// Devices may deliver a different format than requested; the STT
		// stream was opened with s.format.
		frames := audio.ConvertStream(s.in.Frames(), s.format)
		for frame := range frames {
			if err := s.handle.SendAudio(frame.Data); err != nil {
				sendErr <- err
				// halt closes the input, which ends frames.
				audio.Drain(frames)
				return
			}
		}
	}()

	var (
		heard   []string
		halted  bool
		emitted bool
	)
	halt := func() {
		if halted {
			return
		}
		halted = true
		_ = s.in.Close()
		_ = s.handle.Close()
	}
	defer halt()

	finals := s.handle.Finals()
	stop, done := s.stop, ctx.Done()
	for finals != nil {
		select {
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			if text := strings.TrimSpace(t.Text); text != "" {
				heard = append(heard, text)
			}
			if t.SpeechFinal && len(heard) > 0 {
				s.result(heard)
				emitted = true
				halt()
			}
		case err := <-sendErr:
			if halted {
				continue
			}
			s.logger.Warn("speech: sending audio failed", "err", err)
			halt()
			s.events <- capture.EngineEvent{
				Type: capture.EngineFailed,
				Err:  &capture.EngineError{Code: capture.CodeNetwork, Err: err},
			}
			return
		case <-stop:
			stop = nil
			halt()
		case <-done:
			done = nil
			halt()
		}
	}

	if !halted {
		if err := s.handle.Err(); err != nil {
			s.logger.Warn("speech: stream ended abnormally", "err", err)
			s.events <- capture.EngineEvent{
				Type: capture.EngineFailed,
				Err:  &capture.EngineError{Code: capture.CodeNetwork, Err: err},
			}
			return
		}
	}
	if !emitted && len(heard) > 0 {
		s.result(heard)
	}
}

func (s *recognition) result(heard []string) {
	s.events <- capture.EngineEvent{Type: capture.EngineResult, Text: strings.Join(heard, " ")}
}
