// Package playback speaks replies through a synthesis [Engine] and reports
// completion as generation-tagged events.
//
// Only one utterance plays at a time. [Adapter.Cancel] stops the current
// utterance synchronously from the caller's point of view: once it returns,
// no event for that utterance will be delivered.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/bawa-mj/vanya/internal/locale"
	"github.com/bawa-mj/vanya/pkg/provider/tts"
)

// DefaultRate is the speaking rate used when none is configured.
const DefaultRate = 0.9

// Utterance is one piece of text to speak.
type Utterance struct {
	Text string

	// Lang is the BCP-47 tag of Text.
	Lang string

	// Rate is the speaking-rate multiplier (1.0 = engine default).
	Rate float64

	// Voice is the selected voice. A zero ID means the engine default.
	Voice tts.VoiceProfile
}

// Engine is a speech synthesiser.
type Engine interface {
	// Voices lists the installed voices. The list may be empty.
	Voices(ctx context.Context) ([]tts.VoiceProfile, error)

	// Speak plays u and blocks until playback finishes, fails, or ctx is
	// cancelled, in which case it returns ctx.Err() promptly.
	Speak(ctx context.Context, u Utterance) error
}

// EventKind enumerates playback outcomes.
type EventKind int

const (
	Ended EventKind = iota
	Failed
)

// String implements fmt.Stringer.
func (k EventKind) String() string {
	if k == Failed {
		return "failed"
	}
	return "ended"
}

// Event reports the outcome of one utterance.
type Event struct {
	Gen  uint64
	Kind EventKind
	Err  error // Failed only
}

// Sink receives playback events from the adapter's playback goroutine.
type Sink func(Event)

// Option configures an [Adapter].
type Option func(*Adapter)

// WithRate sets the speaking rate. Non-positive values are ignored.
func WithRate(r float64) Option {
	return func(a *Adapter) {
		if r > 0 {
			a.rate = r
		}
	}
}

// WithDefaultVoice sets the voice used when no installed voice matches.
func WithDefaultVoice(id string) Option {
	return func(a *Adapter) { a.defaultVoice = id }
}

// WithLogger sets the adapter's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

type active struct {
	gen       uint64
	cancel    context.CancelFunc
	cancelled bool
}

// Adapter owns one [Engine]. It is safe for concurrent use.
type Adapter struct {
	engine       Engine
	sink         Sink
	logger       *slog.Logger
	rate         float64
	defaultVoice string

	mu     sync.Mutex
	cur    *active
	voices []tts.VoiceProfile
	wg     sync.WaitGroup
}

// NewAdapter returns an adapter delivering events to sink.
func NewAdapter(engine Engine, sink Sink, opts ...Option) *Adapter {
	a := &Adapter{
		engine: engine,
		sink:   sink,
		logger: slog.Default(),
		rate:   DefaultRate,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Speak starts speaking text in loc's synthesis language and returns
// immediately. Any utterance already playing is cancelled first.
func (a *Adapter) Speak(ctx context.Context, gen uint64, text string, loc locale.Locale) {
	a.Cancel()

	pctx, cancel := context.WithCancel(ctx)
	p := &active{gen: gen, cancel: cancel}

	a.mu.Lock()
	a.cur = p
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()

		u := Utterance{
			Text:  text,
			Lang:  loc.SynthesisTag,
			Rate:  a.rate,
			Voice: a.voiceFor(pctx, loc.SynthesisTag),
		}

		a.logger.Debug("playback: speaking", "gen", gen, "lang", u.Lang, "voice", u.Voice.ID)
		err := a.engine.Speak(pctx, u)
		a.finish(p, err)
	}()
}

func (a *Adapter) finish(p *active, err error) {
	a.mu.Lock()
	if p.cancelled {
		a.mu.Unlock()
		return
	}
	if a.cur == p {
		a.cur = nil
	}
	a.mu.Unlock()

	if err == nil {
		a.sink(Event{Gen: p.gen, Kind: Ended})
		return
	}
	// A canceled error here means the parent context ended, not Cancel.
	if !errors.Is(err, context.Canceled) {
		a.logger.Warn("playback: failed", "gen", p.gen, "err", err)
	}
	a.sink(Event{Gen: p.gen, Kind: Failed, Err: err})
}

// Cancel stops the current utterance. It is safe to call when idle. After it
// returns no event for the cancelled utterance is delivered.
func (a *Adapter) Cancel() {
	a.mu.Lock()
	p := a.cur
	a.cur = nil
	if p != nil {
		p.cancelled = true
	}
	a.mu.Unlock()
	if p != nil {
		p.cancel()
		a.logger.Debug("playback: cancelled", "gen", p.gen)
	}
}

// Active reports whether an utterance is playing.
func (a *Adapter) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cur != nil
}

// Close cancels playback and waits for the playback goroutine to exit.
func (a *Adapter) Close() {
	a.Cancel()
	a.wg.Wait()
}

// voiceFor picks a voice for tag. The installed list is fetched lazily and
// cached once it is non-empty, since engines may populate it late.
func (a *Adapter) voiceFor(ctx context.Context, tag string) tts.VoiceProfile {
	a.mu.Lock()
	voices := a.voices
	a.mu.Unlock()

	if len(voices) == 0 {
		fetched, err := a.engine.Voices(ctx)
		if err != nil {
			a.logger.Warn("playback: listing voices failed, using default voice", "err", err)
		}
		if len(fetched) > 0 {
			a.mu.Lock()
			a.voices = fetched
			a.mu.Unlock()
			voices = fetched
		}
	}

	if v, ok := SelectVoice(voices, tag); ok {
		return v
	}
	return tts.VoiceProfile{ID: a.defaultVoice}
}
