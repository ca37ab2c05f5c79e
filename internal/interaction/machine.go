// Package interaction implements the orchestrator that coordinates speech
// capture, the response pipeline and speech playback.
//
// A [Machine] owns one event-loop goroutine ([Machine.Run]). Intents from the
// presentation layer and events from the capture and playback adapters and
// the pipeline are posted to a single inbox and applied one at a time, so all
// interaction state has a single writer. Every capture, pipeline and playback
// invocation is tagged with a generation; an event whose generation is not the
// current one is discarded.
//
// Each submission snapshots the active locale. The snapshot picks the reply
// language, the playback voice and every error string for that request, no
// matter how often the user toggles the locale while it is in flight.
package interaction

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bawa-mj/vanya/internal/capture"
	"github.com/bawa-mj/vanya/internal/config"
	"github.com/bawa-mj/vanya/internal/locale"
	"github.com/bawa-mj/vanya/internal/observe"
	"github.com/bawa-mj/vanya/internal/pipeline"
	"github.com/bawa-mj/vanya/internal/playback"
	"github.com/bawa-mj/vanya/internal/transcript"
)

var (
	// ErrStopped is returned by intents once [Machine.Run] has returned.
	ErrStopped = errors.New("interaction: machine stopped")

	// ErrRunning is returned by every call to [Machine.Run] after the first.
	ErrRunning = errors.New("interaction: machine already running")
)

// Responder performs one backend round trip for a submitted utterance.
// [*pipeline.Pipeline] satisfies it.
type Responder interface {
	Respond(ctx context.Context, text string, loc locale.Locale) (transcript.Reply, error)
}

// Option configures a [Machine].
type Option func(*Machine)

// WithLocales sets the locale registry. The default is [locale.Default].
func WithLocales(r *locale.Registry) Option {
	return func(m *Machine) {
		if r != nil {
			m.locales = r
		}
	}
}

// WithLocale sets the initial locale. The default is the registry's first.
func WithLocale(code locale.Code) Option {
	return func(m *Machine) { m.initial = code }
}

// WithToastDuration sets how long a transient message stays visible.
func WithToastDuration(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.toastFor = d
		}
	}
}

// WithTranscript sets the transcript turns are appended to.
func WithTranscript(t *transcript.Transcript) Option {
	return func(m *Machine) {
		if t != nil {
			m.transcript = t
		}
	}
}

// WithMetrics sets the metrics sink. The default is [observe.DefaultMetrics].
func WithMetrics(mt *observe.Metrics) Option {
	return func(m *Machine) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// WithLogger sets the machine's logger. It is also handed to the adapters.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithPlaybackOptions passes extra options to the playback adapter.
func WithPlaybackOptions(opts ...playback.Option) Option {
	return func(m *Machine) { m.playbackOpts = append(m.playbackOpts, opts...) }
}

// Machine is the interaction state machine. Intent methods are safe for
// concurrent use; they block until the intent has been applied.
type Machine struct {
	locales      *locale.Registry
	initial      locale.Code
	toastFor     time.Duration
	transcript   *transcript.Transcript
	metrics      *observe.Metrics
	logger       *slog.Logger
	playbackOpts []playback.Option

	capture  *capture.Adapter
	playback *playback.Adapter
	respond  Responder

	inbox   chan message
	stopped chan struct{}
	running atomic.Bool
	wg      sync.WaitGroup

	// Loop-owned state. Only the Run goroutine touches these fields.
	runCtx      context.Context
	mode        Mode
	gen         uint64
	loc         locale.Locale
	captureLoc  locale.Locale
	speakLoc    locale.Locale
	modeSince   time.Time
	errText     string
	toastID     uint64
	toastTimer  *time.Timer
	noticeOpen  bool
	unsupported bool
	version     uint64

	stateMu sync.RWMutex
	state   State
	subs    map[uint64]chan State
	nextSub uint64
	closed  bool
}

// New returns a machine driving the given engines. A nil captureEngine marks
// capture as unsupported: the mic intent then only re-opens the notice.
func New(captureEngine capture.Engine, playbackEngine playback.Engine, respond Responder, opts ...Option) (*Machine, error) {
	m := &Machine{
		locales:    locale.Default(),
		toastFor:   config.DefaultToastDuration,
		transcript: transcript.New(),
		metrics:    observe.DefaultMetrics(),
		logger:     slog.Default(),
		respond:    respond,
		inbox:      make(chan message, 16),
		stopped:    make(chan struct{}),
		subs:       make(map[uint64]chan State),
	}
	for _, o := range opts {
		o(m)
	}

	loc := m.locales.Default()
	if m.initial != "" {
		var err error
		if loc, err = m.locales.Resolve(m.initial); err != nil {
			return nil, err
		}
	}
	m.loc = loc

	if playbackEngine == nil {
		return nil, errors.New("interaction: playback engine is required")
	}
	m.capture = capture.NewAdapter(captureEngine, m.onCapture,
		capture.WithLogger(m.logger),
		capture.WithLanguage(loc.RecognitionTag),
	)
	popts := append([]playback.Option{playback.WithLogger(m.logger)}, m.playbackOpts...)
	m.playback = playback.NewAdapter(playbackEngine, m.onPlayback, popts...)

	m.unsupported = !m.capture.Supported()
	m.noticeOpen = m.unsupported
	m.state = m.snapshot()
	return m, nil
}

// Run processes intents and events until ctx is cancelled. On return capture
// is stopped, playback is cancelled and subscriber streams are closed.
func (m *Machine) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrRunning
	}

	m.runCtx = ctx
	m.modeSince = time.Now()
	m.logger.Info("interaction: started",
		"locale", m.loc.Code,
		"capture_supported", !m.unsupported,
	)
	defer m.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-m.inbox:
			msg.apply()
			m.publish()
			if msg.done != nil {
				close(msg.done)
			}
		}
	}
}

func (m *Machine) shutdown() {
	close(m.stopped)
	m.capture.Close()
	m.playback.Close()
	if m.toastTimer != nil {
		m.toastTimer.Stop()
	}
	m.wg.Wait()

	m.stateMu.Lock()
	m.closed = true
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
		m.metrics.EventSubscribers.Add(context.Background(), -1)
	}
	m.stateMu.Unlock()

	m.logger.Info("interaction: stopped", "turns", m.transcript.Len())
}

// message is one unit of work for the loop. done, when set, is closed after
// apply has run and the resulting state has been published.
type message struct {
	apply func()
	done  chan struct{}
}

// post enqueues f for the loop. It fails once the loop has stopped.
func (m *Machine) post(ctx context.Context, f func()) error {
	return m.send(ctx, message{apply: f})
}

func (m *Machine) send(ctx context.Context, msg message) error {
	select {
	case m.inbox <- msg:
		return nil
	case <-m.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// do runs f on the loop and waits for it to complete.
func (m *Machine) do(ctx context.Context, f func()) error {
	done := make(chan struct{})
	if err := m.send(ctx, message{apply: f, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-m.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ToggleMic applies the mic intent: start listening when idle, stop the
// capture when listening, stop speaking when speaking. It does nothing while
// a request is in flight. Without a capture engine it re-opens the notice.
func (m *Machine) ToggleMic(ctx context.Context) error {
	return m.do(ctx, m.toggleMic)
}

// ToggleLocale switches to the next locale. Playback is cancelled first.
// Requests already in flight keep their locale.
func (m *Machine) ToggleLocale(ctx context.Context) error {
	return m.do(ctx, m.toggleLocale)
}

// DismissNotice closes the unsupported-capture notice.
func (m *Machine) DismissNotice(ctx context.Context) error {
	return m.do(ctx, func() { m.noticeOpen = false })
}

// Alive reports whether Run is currently processing intents.
func (m *Machine) Alive() bool {
	if !m.running.Load() {
		return false
	}
	select {
	case <-m.stopped:
		return false
	default:
		return true
	}
}

// State returns the latest published snapshot.
func (m *Machine) State() State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// Subscribe returns a stream of snapshots, starting with the current one.
// Slow readers only see the newest snapshot. The stream is closed by cancel
// or when the machine stops.
func (m *Machine) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	m.stateMu.Lock()
	if m.closed {
		m.stateMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.state
	m.stateMu.Unlock()
	m.metrics.EventSubscribers.Add(context.Background(), 1)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.stateMu.Lock()
			defer m.stateMu.Unlock()
			if _, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(ch)
				m.metrics.EventSubscribers.Add(context.Background(), -1)
			}
		})
	}
}

func (m *Machine) snapshot() State {
	return State{
		Version:     m.version,
		Mode:        m.mode,
		Turns:       m.transcript.Turns(),
		Locale:      m.loc.Code,
		Label:       m.loc.Label,
		Welcome:     m.loc.Strings.Welcome,
		Error:       m.errText,
		Unsupported: m.unsupported,
		NoticeOpen:  m.noticeOpen,
		Notice:      m.noticeText(),
	}
}

func (m *Machine) noticeText() string {
	if !m.unsupported {
		return ""
	}
	return m.loc.Strings.Unsupported
}

// publish stores a new snapshot and fans it out when anything visible
// changed since the last one.
func (m *Machine) publish() {
	m.stateMu.RLock()
	prev := m.state
	m.stateMu.RUnlock()

	s := m.snapshot()
	s.Version = prev.Version
	if sameView(prev, s) {
		return
	}
	m.version++
	s.Version = m.version

	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.state = s
	for _, ch := range m.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// next advances the generation, invalidating every outstanding invocation.
func (m *Machine) next() uint64 {
	m.gen++
	return m.gen
}

func (m *Machine) setMode(to Mode) {
	if m.mode == to {
		return
	}
	from := m.mode
	now := time.Now()
	switch from {
	case Listening:
		m.metrics.CaptureDuration.Record(m.runCtx, now.Sub(m.modeSince).Seconds())
	case Speaking:
		m.metrics.PlaybackDuration.Record(m.runCtx, now.Sub(m.modeSince).Seconds())
	}
	m.mode = to
	m.modeSince = now
	m.metrics.RecordTransition(m.runCtx, from.String(), to.String())
	m.logger.Debug("interaction: mode changed", "from", from, "to", to, "gen", m.gen)
}

// toast shows text until it expires or a newer toast replaces it.
func (m *Machine) toast(kind, text string) {
	m.toastID++
	id := m.toastID
	m.errText = text
	m.metrics.RecordToast(m.runCtx, kind)
	m.logger.Info("interaction: toast", "kind", kind, "text", text)

	if m.toastTimer != nil {
		m.toastTimer.Stop()
	}
	m.toastTimer = time.AfterFunc(m.toastFor, func() {
		_ = m.post(context.Background(), func() {
			if m.toastID == id {
				m.errText = ""
			}
		})
	})
}

func (m *Machine) toggleMic() {
	if m.unsupported {
		m.noticeOpen = true
		return
	}

	switch m.mode {
	case Idle:
		if m.capture.Active() {
			m.logger.Debug("interaction: previous capture still closing, mic ignored")
			return
		}
		gen := m.next()
		m.captureLoc = m.loc
		if err := m.capture.Start(m.runCtx, gen); err != nil {
			m.captureFailed(capture.KindOf(err), err)
			return
		}
		m.setMode(Listening)
	case Listening:
		m.capture.Stop()
	case Processing:
		m.logger.Debug("interaction: mic ignored while processing", "gen", m.gen)
	case Speaking:
		m.playback.Cancel()
		m.next()
		m.setMode(Idle)
	}
}

func (m *Machine) toggleLocale() {
	next, err := m.locales.Next(m.loc.Code)
	if err != nil {
		m.logger.Error("interaction: toggle locale", "locale", m.loc.Code, "err", err)
		return
	}
	if m.mode == Speaking {
		m.playback.Cancel()
		m.next()
		m.setMode(Idle)
	}
	m.loc = next
	m.capture.SetLocale(next.RecognitionTag)
	m.logger.Info("interaction: locale changed", "locale", next.Code)
}

func (m *Machine) onCapture(ev capture.Event) {
	_ = m.post(context.Background(), func() { m.handleCapture(ev) })
}

func (m *Machine) onPlayback(ev playback.Event) {
	_ = m.post(context.Background(), func() { m.handlePlayback(ev) })
}

func (m *Machine) handleCapture(ev capture.Event) {
	if ev.Gen != m.gen || m.mode != Listening {
		m.logger.Debug("interaction: stale capture event dropped",
			"kind", ev.Kind, "event_gen", ev.Gen, "gen", m.gen, "mode", m.mode)
		return
	}

	switch ev.Kind {
	case capture.Started:
	case capture.Result:
		m.capture.Stop()
		m.submit(ev.Text)
	case capture.Ended:
		m.next()
		m.setMode(Idle)
	case capture.Failed:
		m.next()
		m.captureFailed(ev.Failure, ev.Err)
		m.setMode(Idle)
	}
}

func (m *Machine) captureFailed(kind capture.FailureKind, err error) {
	m.logger.Warn("interaction: capture failed", "kind", kind, "err", err)
	text := m.captureLoc.Strings.CaptureFailed
	if kind == capture.FailurePermissionDenied {
		text = m.captureLoc.Strings.PermissionDenied
	}
	m.toast("capture."+kind.String(), text)
}

// submit appends the user turn and hands text to the responder under a
// snapshot of the current locale.
func (m *Machine) submit(text string) {
	loc := m.loc
	gen := m.next()

	m.transcript.AppendUser(text, loc.Code)
	m.metrics.RecordTurn(m.runCtx, string(transcript.User))
	m.setMode(Processing)

	ctx := m.runCtx
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		reply, err := m.respond.Respond(ctx, text, loc)
		_ = m.post(context.Background(), func() { m.handleReply(gen, loc, reply, err) })
	}()
}

func (m *Machine) handleReply(gen uint64, loc locale.Locale, reply transcript.Reply, err error) {
	if gen != m.gen || m.mode != Processing {
		m.logger.Debug("interaction: stale reply dropped", "event_gen", gen, "gen", m.gen, "mode", m.mode)
		return
	}
	if err != nil {
		m.next()
		m.toast("pipeline."+pipeline.Kind(err), pipeline.Message(err, loc))
		m.setMode(Idle)
		return
	}

	m.transcript.AppendAssistant(reply, loc.Code)
	m.metrics.RecordTurn(m.runCtx, string(transcript.Assistant))

	gen = m.next()
	m.speakLoc = loc
	m.setMode(Speaking)
	m.playback.Speak(m.runCtx, gen, reply.Utterance(), loc)
}

func (m *Machine) handlePlayback(ev playback.Event) {
	if ev.Gen != m.gen || m.mode != Speaking {
		m.logger.Debug("interaction: stale playback event dropped",
			"kind", ev.Kind, "event_gen", ev.Gen, "gen", m.gen, "mode", m.mode)
		return
	}
	m.next()
	if ev.Kind == playback.Failed {
		m.toast("playback", m.speakLoc.Strings.PlaybackFailed)
	}
	m.setMode(Idle)
}
