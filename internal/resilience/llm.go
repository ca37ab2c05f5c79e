package resilience

import (
	"context"

	"github.com/bawa-mj/vanya/pkg/provider/llm"
)

var _ llm.Provider = (*LLM)(nil)

// LLM wraps an [llm.Provider] with a [CircuitBreaker]. While the breaker is
// open Complete fails fast with an [*OpenError] carrying the last backend
// failure.
type LLM struct {
	provider llm.Provider
	breaker  *CircuitBreaker
}

// GuardLLM wraps p. An empty cfg.Name defaults to "llm/" + p.Name().
func GuardLLM(p llm.Provider, cfg CircuitBreakerConfig) *LLM {
	if cfg.Name == "" {
		cfg.Name = "llm/" + p.Name()
	}
	return &LLM{provider: p, breaker: NewCircuitBreaker(cfg)}
}

// Complete forwards to the wrapped provider through the breaker.
func (g *LLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var resp *llm.CompletionResponse
	err := g.breaker.Execute(func() error {
		var err error
		resp, err = g.provider.Complete(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Name returns the wrapped provider's name so metrics stay keyed by backend.
func (g *LLM) Name() string { return g.provider.Name() }

// State returns the breaker state.
func (g *LLM) State() State { return g.breaker.State() }
