// Package health serves the liveness and readiness probes of the Vanya
// server.
//
//   - GET /healthz reports that the process can serve HTTP.
//   - GET /readyz runs every registered [Checker] concurrently and returns
//     200 only when all of them pass.
//
// Both endpoints answer with a JSON object carrying a "status" field ("ok" or
// "fail"); /readyz adds a "checks" map keyed by checker name.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// DefaultCheckTimeout bounds a single readiness check.
const DefaultCheckTimeout = 3 * time.Second

// Checker is a named readiness probe. Check returns nil when the component is
// ready.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Func adapts a boolean probe into a [Checker] that fails with reason when
// ready reports false.
func Func(name, reason string, ready func() bool) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if !ready() {
				return notReady(reason)
			}
			return nil
		},
	}
}

type notReady string

func (e notReady) Error() string { return string(e) }

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Option configures a [Handler].
type Option func(*Handler)

// WithCheckTimeout overrides [DefaultCheckTimeout].
func WithCheckTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// Handler serves the probe endpoints. The checker list is fixed at
// construction.
type Handler struct {
	checkers []Checker
	timeout  time.Duration
}

// New returns a handler evaluating checkers on each readiness request.
func New(checkers []Checker, opts ...Option) *Handler {
	h := &Handler{
		checkers: append([]Checker(nil), checkers...),
		timeout:  DefaultCheckTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz answers 200 when every checker passes and 503 otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]string, len(h.checkers))
		failed bool
	)
	for _, c := range h.checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			status := "ok"
			if err := c.Check(ctx); err != nil {
				status = "fail: " + err.Error()
			}
			mu.Lock()
			checks[c.Name] = status
			if status != "ok" {
				failed = true
			}
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	res, code := result{Status: "ok", Checks: checks}, http.StatusOK
	if failed {
		res.Status, code = "fail", http.StatusServiceUnavailable
	}
	writeJSON(w, code, res)
}

// Register mounts /healthz and /readyz on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
