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

// ObservedEmbedding wraps a shadow.Embedder with OTEL instrumentation. Used
// by the Background Service Manager's indexing job (see the index package)
// when embedding repository chunks before upserting them into qdrant.
type ObservedEmbedding struct {
	inner shadow.Embedder
	inst  *Instruments
	model string
}

// WrapEmbedding returns an instrumented embedder.
func WrapEmbedding(inner shadow.Embedder, model string, inst *Instruments) *ObservedEmbedding {
	return &ObservedEmbedding{inner: inner, inst: inst, model: model}
}

func (o *ObservedEmbedding) Name() string   { return o.inner.Name() }
func (o *ObservedEmbedding) Dimensions() int { return o.inner.Dimensions() }

func (o *ObservedEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.embed", trace.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		AttrEmbedTextCount.Int(len(texts)),
		AttrEmbedDimensions.Int(o.inner.Dimensions()),
	))
	defer span.End()
	start := time.Now()

	result, err := o.inner.Embed(ctx, texts)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	attrs := metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
	)

	o.inst.EmbedRequests.Add(ctx, 1, metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		attribute.String("status", status),
	))
	o.inst.EmbedDuration.Record(ctx, durationMs, attrs)

	// Structured log
	var rec shadowlog.Record
	rec.SetSeverity(shadowlog.SeverityInfo)
	rec.SetBody(shadowlog.StringValue("embedding completed"))
	rec.AddAttributes(
		shadowlog.String("llm.model", o.model),
		shadowlog.String("llm.provider", o.inner.Name()),
		shadowlog.Int("llm.embed.text_count", len(texts)),
		shadowlog.Float64("llm.duration_ms", durationMs),
		shadowlog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)

	return result, err
}

// compile-time check
var _ shadow.Embedder = (*ObservedEmbedding)(nil)
