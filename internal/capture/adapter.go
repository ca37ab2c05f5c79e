package capture

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// EventKind enumerates the events an [Adapter] delivers.
type EventKind int

const (
	Started EventKind = iota
	Result
	Ended
	Failed
)

// String implements fmt.Stringer.
func (k EventKind) String() string {
	switch k {
	case Started:
		return "started"
	case Result:
		return "result"
	case Ended:
		return "ended"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Event is a capture lifecycle event tagged with the generation passed to
// [Adapter.Start].
type Event struct {
	Gen     uint64
	Kind    EventKind
	Text    string      // Result only
	Failure FailureKind // Failed only
	Err     error       // Failed only
}

// Sink receives adapter events. It is called from the adapter's session
// goroutine, never concurrently for one session.
type Sink func(Event)

// Option configures an [Adapter].
type Option func(*Adapter)

// WithLogger sets the adapter's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithLanguage sets the initial recognition tag. The default is "en-US".
func WithLanguage(tag string) Option {
	return func(a *Adapter) { a.lang = tag }
}

// Adapter owns one [Engine] and enforces the Stopped → Started → Stopped
// session lifecycle. It is safe for concurrent use.
type Adapter struct {
	engine Engine
	sink   Sink
	logger *slog.Logger

	mu      sync.Mutex
	lang    string
	session Session
	gen     uint64
	wg      sync.WaitGroup
}

// NewAdapter returns an adapter delivering events to sink. A nil engine
// yields an unsupported adapter whose Start always fails.
func NewAdapter(engine Engine, sink Sink, opts ...Option) *Adapter {
	a := &Adapter{
		engine: engine,
		sink:   sink,
		logger: slog.Default(),
		lang:   "en-US",
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Supported reports whether a recognition engine is available.
func (a *Adapter) Supported() bool { return a.engine != nil }

// Active reports whether a session is running.
func (a *Adapter) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session != nil
}

// SetLocale sets the recognition tag for the next Start. A running session
// keeps its tag.
func (a *Adapter) SetLocale(tag string) {
	a.mu.Lock()
	a.lang = tag
	a.mu.Unlock()
}

// Language returns the tag the next Start will use.
func (a *Adapter) Language() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lang
}

// Start begins a session tagged gen. It is a no-op returning nil when a
// session is already running. A synchronous engine failure is returned; use
// [KindOf] to classify it. No events are delivered for a failed Start.
func (a *Adapter) Start(ctx context.Context, gen uint64) error {
	if a.engine == nil {
		return &EngineError{Code: CodeAudioCapture, Err: ErrUnsupported}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != nil {
		a.logger.Debug("capture: start ignored, session already running", "gen", a.gen)
		return nil
	}

	sess, err := a.engine.Start(ctx, a.lang)
	if err != nil {
		a.logger.Warn("capture: engine start failed", "lang", a.lang, "err", err)
		return err
	}
	a.session = sess
	a.gen = gen
	a.logger.Debug("capture: session started", "gen", gen, "lang", a.lang)

	a.wg.Add(1)
	go a.pump(sess, gen)
	return nil
}

// Stop asks the running session to finish gracefully. The Ended event follows
// asynchronously. Stop is a no-op when no session is running.
func (a *Adapter) Stop() {
	a.mu.Lock()
	sess := a.session
	a.mu.Unlock()
	if sess != nil {
		sess.Stop()
	}
}

// Close stops any running session and waits for its goroutine to exit.
func (a *Adapter) Close() {
	a.Stop()
	a.wg.Wait()
}

// pump translates one session's raw events. After a failure the session is
// released immediately and nothing further is delivered for it.
func (a *Adapter) pump(sess Session, gen uint64) {
	defer a.wg.Done()

	var gotResult, failed bool
	for ev := range sess.Events() {
		if failed {
			continue
		}
		switch ev.Type {
		case EngineStarted:
			a.sink(Event{Gen: gen, Kind: Started})
		case EngineResult:
			text := strings.TrimSpace(ev.Text)
			if text == "" || gotResult {
				continue
			}
			gotResult = true
			a.sink(Event{Gen: gen, Kind: Result, Text: text})
		case EngineFailed:
			failed = true
			sess.Stop()
			a.release(sess)
			var err error = &EngineError{Code: CodeAborted}
			if ev.Err != nil {
				err = ev.Err
			}
			a.sink(Event{Gen: gen, Kind: Failed, Failure: KindOf(err), Err: err})
		}
	}
	if !failed {
		a.release(sess)
		a.sink(Event{Gen: gen, Kind: Ended})
	}
}

func (a *Adapter) release(sess Session) {
	a.mu.Lock()
	if a.session == sess {
		a.session = nil
	}
	a.mu.Unlock()
}
