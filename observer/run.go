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

// Attribute keys for Orchestrator run-level spans and metrics.
var (
	AttrRunVariantID = attribute.Key("run.variant_id")
	AttrRunModel     = attribute.Key("run.model")
	AttrRunStatus    = attribute.Key("run.status")
	AttrRunSteps     = attribute.Key("run.steps")
)

// StartRunSpan opens the parent span for one Agent Orchestrator run
// (§4.8 RunState RUNNING), under which the Stream Processor's provider
// calls and the Tool Executor's executions nest as child spans via context
// propagation. Replaces the teacher's ObservedAgent wrapper: the
// Orchestrator is a single long-lived state machine, not a polymorphic
// Agent/Network/Workflow hierarchy, so run tracing is a plain helper rather
// than a decorator interface. The Orchestrator does not call it; it opens
// its run span through OrchestratorConfig.Tracer.
func StartRunSpan(ctx context.Context, inst *Instruments, variantID, modelID string) (context.Context, trace.Span) {
	return inst.Tracer.Start(ctx, "orchestrator.run", trace.WithAttributes(
		AttrRunVariantID.String(variantID),
		AttrRunModel.String(modelID),
	))
}

// RecordRun emits the run-completion metrics, span attributes, and
// structured log entry once an Orchestrator run reaches a terminal state.
func RecordRun(ctx context.Context, inst *Instruments, span trace.Span, variantID, modelID, status string, steps int, usage shadow.Usage, start time.Time, err error) {
	durationMs := float64(time.Since(start).Milliseconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		AttrRunStatus.String(status),
		AttrRunSteps.Int(steps),
		AttrTokensInput.Int(usage.InputTokens),
		AttrTokensOutput.Int(usage.OutputTokens),
	)

	inst.RunExecutions.Add(ctx, 1, metric.WithAttributes(
		AttrRunModel.String(modelID),
		attribute.String("status", status),
	))
	inst.RunDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrRunModel.String(modelID),
	))

	var rec shadowlog.Record
	rec.SetSeverity(shadowlog.SeverityInfo)
	rec.SetBody(shadowlog.StringValue("orchestrator run completed"))
	rec.AddAttributes(
		shadowlog.String("run.variant_id", variantID),
		shadowlog.String("run.model", modelID),
		shadowlog.String("run.status", status),
		shadowlog.Int("run.steps", steps),
		shadowlog.Int("tokens.input", usage.InputTokens),
		shadowlog.Int("tokens.output", usage.OutputTokens),
		shadowlog.Float64("duration_ms", durationMs),
	)
	inst.Logger.Emit(ctx, rec)
}
