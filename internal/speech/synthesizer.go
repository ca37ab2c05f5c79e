package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bawa-mj/vanya/internal/playback"
	"github.com/bawa-mj/vanya/pkg/audio"
	"github.com/bawa-mj/vanya/pkg/provider/tts"
)

var _ playback.Engine = (*Synthesizer)(nil)

// SynthesizerOption configures a [Synthesizer].
type SynthesizerOption func(*Synthesizer)

// WithPlaybackFormat sets the PCM format the TTS provider produces.
func WithPlaybackFormat(f audio.Format) SynthesizerOption {
	return func(s *Synthesizer) {
		if f.SampleRate > 0 && f.Channels > 0 {
			s.format = f
		}
	}
}

// WithSynthesizerLogger sets the synthesiser's logger.
func WithSynthesizerLogger(l *slog.Logger) SynthesizerOption {
	return func(s *Synthesizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// Synthesizer is a [playback.Engine] that streams provider audio to sink.
type Synthesizer struct {
	provider tts.Provider
	sink     audio.Sink
	format   audio.Format
	logger   *slog.Logger
}

// NewSynthesizer returns a synthesiser speaking through sink.
func NewSynthesizer(provider tts.Provider, sink audio.Sink, opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{
		provider: provider,
		sink:     sink,
		format:   audio.Format{SampleRate: 16000, Channels: 1},
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Voices lists the provider's voices.
func (s *Synthesizer) Voices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return s.provider.ListVoices(ctx)
}

// Speak synthesises u and blocks until the speaker has played all of it.
// Cancelling ctx stops the speaker immediately.
func (s *Synthesizer) Speak(ctx context.Context, u playback.Utterance) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out, err := s.sink.Open(ctx, s.format)
	if err != nil {
		return fmt.Errorf("speech: open output: %w", err)
	}
	defer out.Close()

	voice := u.Voice
	if u.Rate > 0 {
		voice.SpeedFactor = u.Rate
	}
	text := make(chan string, 1)
	text <- u.Text
	close(text)

	stream, err := s.provider.SynthesizeStream(ctx, text, tts.StreamConfig{Voice: voice, Language: u.Lang})
	if err != nil {
		return fmt.Errorf("speech: synthesize: %w", err)
	}

	var written int
	for chunk := range stream.Audio() {
		if err := out.Write(chunk); err != nil {
			cancel()
			audio.Drain(stream.Audio())
			return fmt.Errorf("speech: write output: %w", err)
		}
		written += len(chunk)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("speech: synthesize: %w", err)
	}

	s.logger.Debug("speech: utterance queued", "lang", u.Lang, "voice", voice.ID, "audio", s.format.Duration(written))
	return out.Drain(ctx)
}
