// Package mock provides an in-memory [capture.Engine] for unit tests.
//
// Each successful Start produces a [Session] the test drives by hand:
//
//	eng := &mock.Engine{}
//	sess, _ := eng.Start(ctx, "en-US")
//	s := eng.Last()
//	s.Emit(capture.EngineEvent{Type: capture.EngineResult, Text: "hello"})
//	s.End()
//
// It is safe for concurrent use.
package mock

import (
	"context"
	"sync"

	"github.com/bawa-mj/vanya/internal/capture"
)

var (
	_ capture.Engine  = (*Engine)(nil)
	_ capture.Session = (*Session)(nil)
)

// Engine is a mock implementation of [capture.Engine].
type Engine struct {
	mu sync.Mutex

	// StartErr is returned by Start when non-nil.
	StartErr error

	// EndOnStop makes Session.Stop close the event channel, like a
	// recogniser that ends immediately when asked to stop.
	EndOnStop bool

	// StartCalls records the language tag of every Start call.
	StartCalls []string

	sessions []*Session
}

// Start implements [capture.Engine].
func (e *Engine) Start(_ context.Context, lang string) (capture.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.StartCalls = append(e.StartCalls, lang)
	if e.StartErr != nil {
		return nil, e.StartErr
	}
	s := &Session{
		Lang:      lang,
		events:    make(chan capture.EngineEvent, 16),
		endOnStop: e.EndOnStop,
	}
	e.sessions = append(e.sessions, s)
	return s, nil
}

// Sessions returns every session started so far.
func (e *Engine) Sessions() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Session, len(e.sessions))
	copy(out, e.sessions)
	return out
}

// Last returns the most recent session, or nil.
func (e *Engine) Last() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sessions) == 0 {
		return nil
	}
	return e.sessions[len(e.sessions)-1]
}

// Calls returns a copy of StartCalls.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.StartCalls))
	copy(out, e.StartCalls)
	return out
}

// Session is a hand-driven [capture.Session].
type Session struct {
	// Lang is the tag the session was started with.
	Lang string

	mu        sync.Mutex
	events    chan capture.EngineEvent
	ended     bool
	stops     int
	endOnStop bool
}

// Events implements [capture.Session].
func (s *Session) Events() <-chan capture.EngineEvent { return s.events }

// Stop implements [capture.Session].
func (s *Session) Stop() {
	s.mu.Lock()
	s.stops++
	end := s.endOnStop
	s.mu.Unlock()
	if end {
		s.End()
	}
}

// Emit delivers ev unless the session has already ended.
func (s *Session) Emit(ev capture.EngineEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.events <- ev
	}
}

// End closes the event channel. Safe to call more than once.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.ended = true
		close(s.events)
	}
}

// Stops returns how many times Stop was called.
func (s *Session) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}
