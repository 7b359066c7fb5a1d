package observer

import (
	"context"
	"time"

	shadow "github.com/shadowhq/shadow"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	shadowlog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedProvider wraps a shadow.ProviderClient with OTEL instrumentation,
// used to decorate the Stream Processor's provider (per §9's "abstract it
// behind a ProviderClient capability").
type ObservedProvider struct {
	inner shadow.ProviderClient
	inst  *Instruments
	model string
}

// WrapProvider returns an instrumented ProviderClient that emits traces,
// metrics, and logs.
func WrapProvider(inner shadow.ProviderClient, model string, inst *Instruments) *ObservedProvider {
	return &ObservedProvider{inner: inner, inst: inst, model: model}
}

func (o *ObservedProvider) Name() string                   { return o.inner.Name() }
func (o *ObservedProvider) SupportsNativeReasoning() bool { return o.inner.SupportsNativeReasoning() }

func (o *ObservedProvider) Chat(ctx context.Context, req shadow.ChatRequest) (shadow.ChatResponse, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.chat", trace.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
	))
	defer span.End()
	start := time.Now()

	resp, err := o.inner.Chat(ctx, req)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	o.record(ctx, span, "chat", status, durationMs, resp.Usage)
	return resp, err
}

// StreamChat instruments the streaming path. Chunk count is tracked through
// a pass-through channel, which the inner StreamChat closes per its
// contract; raw is closed once every chunk has been forwarded.
func (o *ObservedProvider) StreamChat(ctx context.Context, req shadow.ChatRequest, raw chan<- shadow.ProviderChunk) error {
	defer close(raw)
	ctx, span := o.inst.Tracer.Start(ctx, "llm.chat_stream", trace.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
	))
	defer span.End()
	start := time.Now()

	wrapped := make(chan shadow.ProviderChunk, cap(raw))
	chunks := 0
	done := make(chan struct{})
	var usage shadow.Usage
	go func() {
		defer close(done)
		for chunk := range wrapped {
			chunks++
			if chunk.Usage.Total() > 0 {
				usage = chunk.Usage
			}
			raw <- chunk
		}
	}()

	err := o.inner.StreamChat(ctx, req, wrapped)
	<-done

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(AttrStreamChunks.Int(chunks))
	o.record(ctx, span, "chat_stream", status, durationMs, usage)
	return err
}

func (o *ObservedProvider) record(ctx context.Context, span trace.Span, method, status string, durationMs float64, usage shadow.Usage) {
	cost := o.inst.Cost.Calculate(o.model, usage.InputTokens, usage.OutputTokens)

	attrs := metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		AttrLLMMethod.String(method),
	)

	span.SetAttributes(
		AttrTokensInput.Int(usage.InputTokens),
		AttrTokensOutput.Int(usage.OutputTokens),
		AttrCostUSD.Float64(cost),
	)

	o.inst.TokenUsage.Add(ctx, int64(usage.InputTokens), metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		attribute.String("direction", "input"),
	))
	o.inst.TokenUsage.Add(ctx, int64(usage.OutputTokens), metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		attribute.String("direction", "output"),
	))
	o.inst.CostTotal.Add(ctx, cost, attrs)
	o.inst.LLMRequests.Add(ctx, 1, metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		AttrLLMMethod.String(method),
		attribute.String("status", status),
	))
	o.inst.LLMDuration.Record(ctx, durationMs, attrs)

	// Structured log
	var rec shadowlog.Record
	rec.SetSeverity(shadowlog.SeverityInfo)
	rec.SetBody(shadowlog.StringValue("llm call completed"))
	rec.AddAttributes(
		shadowlog.String("llm.model", o.model),
		shadowlog.String("llm.provider", o.inner.Name()),
		shadowlog.String("llm.method", method),
		shadowlog.Int("llm.tokens.input", usage.InputTokens),
		shadowlog.Int("llm.tokens.output", usage.OutputTokens),
		shadowlog.Float64("llm.cost_usd", cost),
		shadowlog.Float64("llm.duration_ms", durationMs),
		shadowlog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)
}

// compile-time check
var _ shadow.ProviderClient = (*ObservedProvider)(nil)
