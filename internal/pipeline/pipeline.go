// Package pipeline performs exactly one backend round trip per submitted
// utterance and turns the reply into a [transcript.Reply].
//
// Every request is phrased for a locale snapshot taken by the caller at
// submission time. Failures map onto three error types: [TransportError],
// [EmptyResponseError] and [ParseError]; [Message] picks the user-facing text
// for any of them. No retries are performed.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bawa-mj/vanya/internal/locale"
	"github.com/bawa-mj/vanya/internal/observe"
	"github.com/bawa-mj/vanya/internal/transcript"
	"github.com/bawa-mj/vanya/pkg/provider/llm"
)

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithTimeout bounds each request. Zero, the default, means no bound beyond
// the transport's own.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

// WithTemperature sets the sampling temperature. Zero keeps the provider
// default.
func WithTemperature(t float64) Option {
	return func(p *Pipeline) { p.temperature = t }
}

// WithMetrics sets the metrics sink. The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithLogger sets the pipeline's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// Pipeline is safe for concurrent use, although the interaction loop never
// has more than one request in flight.
type Pipeline struct {
	provider    llm.Provider
	timeout     time.Duration
	temperature float64
	metrics     *observe.Metrics
	logger      *slog.Logger
	schema      any
}

// New returns a pipeline backed by provider.
func New(provider llm.Provider, opts ...Option) *Pipeline {
	p := &Pipeline{
		provider: provider,
		metrics:  observe.DefaultMetrics(),
		logger:   slog.Default(),
		schema:   ReplySchema(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Request builds the completion request for text under loc.
func (p *Pipeline) Request(text string, loc locale.Locale) llm.CompletionRequest {
	return llm.CompletionRequest{
		SystemPrompt: SystemInstruction(loc),
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: UserPrompt(text)},
		},
		Temperature:      p.temperature,
		ResponseMIMEType: "application/json",
		ResponseSchema:   p.schema,
	}
}

// Respond sends text to the backend under the locale snapshot loc and parses
// the reply. It makes exactly one attempt.
func (p *Pipeline) Respond(ctx context.Context, text string, loc locale.Locale) (transcript.Reply, error) {
	name := p.provider.Name()
	ctx, span := observe.StartSpan(ctx, "pipeline.respond",
		trace.WithAttributes(
			attribute.String("locale", string(loc.Code)),
			attribute.String("provider", name),
		),
	)
	defer span.End()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	log := observe.LoggerFrom(ctx, p.logger).With("locale", loc.Code, "provider", name)
	start := time.Now()

	reply, err := p.respond(ctx, name, text, loc)

	status := "ok"
	if err != nil {
		status = Kind(err)
		p.metrics.RecordProviderError(ctx, name, "llm")
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		log.Warn("pipeline: request failed", "kind", status, "err", err)
	} else {
		log.Debug("pipeline: reply parsed", "elapsed", time.Since(start))
	}
	p.metrics.RecordProviderRequest(ctx, name, "llm", status)
	observe.ObserveSince(ctx, p.metrics.PipelineDuration, start, attribute.String("status", status))
	return reply, err
}

func (p *Pipeline) respond(ctx context.Context, name, text string, loc locale.Locale) (transcript.Reply, error) {
	resp, err := p.provider.Complete(ctx, p.Request(text, loc))
	if err != nil {
		return transcript.Reply{}, classify(name, err)
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("usage.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("usage.completion_tokens", resp.Usage.CompletionTokens),
	)
	return Parse(resp.Content)
}
