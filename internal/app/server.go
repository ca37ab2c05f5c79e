package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bawa-mj/vanya/internal/health"
	"github.com/bawa-mj/vanya/internal/interaction"
	"github.com/bawa-mj/vanya/internal/observe"
	"github.com/bawa-mj/vanya/internal/resilience"
)

// Handler returns the HTTP presentation API:
//
//	GET  /api/state           current snapshot
//	POST /api/mic             mic intent
//	POST /api/locale          locale toggle intent
//	POST /api/notice/dismiss  close the unsupported-capture notice
//	GET  /api/events          WebSocket stream of snapshots
//	GET  /healthz, /readyz    probes
//	GET  /metrics             Prometheus scrape endpoint
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/state", a.handleState)
	mux.HandleFunc("POST /api/mic", a.intent(a.machine.ToggleMic))
	mux.HandleFunc("POST /api/locale", a.intent(a.machine.ToggleLocale))
	mux.HandleFunc("POST /api/notice/dismiss", a.intent(a.machine.DismissNotice))
	mux.HandleFunc("GET /api/events", a.handleEvents)

	checkers := []health.Checker{
		health.Func("interaction", "interaction loop is not running", a.machine.Alive),
	}
	if a.breaker != nil {
		checkers = append(checkers, health.Func("llm", "circuit breaker is open", func() bool {
			return a.breaker.State() != resilience.StateOpen
		}))
	}
	health.New(checkers).Register(mux)

	metrics := a.metricsHandler
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	mux.Handle("GET /metrics", metrics)

	return observe.Middleware(a.metrics)(mux)
}

func (a *App) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.machine.State())
}

// intent adapts a machine intent into a handler that answers with the
// snapshot published after the intent was applied.
func (a *App) intent(apply func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := apply(r.Context()); err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, interaction.ErrStopped):
				status = http.StatusServiceUnavailable
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				status = http.StatusRequestTimeout
			}
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, a.machine.State())
	}
}

// handleEvents streams every published snapshot to a WebSocket client until
// either side goes away.
func (a *App) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		a.logger.Debug("app: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	// Client messages are not part of the protocol; CloseRead discards them
	// and cancels ctx when the peer disconnects.
	ctx := conn.CloseRead(r.Context())

	states, cancel := a.machine.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			if err := wsjson.Write(ctx, conn, st); err != nil {
				a.logger.Debug("app: websocket write failed", "err", err)
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
