package observer

import (
	"context"
	"errors"
	"time"

	"github.com/nevindra/lumen"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Runner is anything that answers a question in one run, such as
// *lumen.ReActAgent.
type Runner interface {
	Run(ctx context.Context, input string) (lumen.RunResult, error)
}

// ObservedAgent wraps a Runner to emit OTEL lifecycle spans, metrics, and logs.
// The wrapper creates a parent span for each Run call that contains all inner
// operations (LLM calls, tool executions) as child spans via context propagation.
type ObservedAgent struct {
	inner Runner
	inst  *Instruments
}

// WrapAgent returns an instrumented Runner that emits lifecycle telemetry.
func WrapAgent(inner Runner, inst *Instruments) *ObservedAgent {
	return &ObservedAgent{inner: inner, inst: inst}
}

// Run wraps the inner Run, emitting an agent.run span that serves as the
// parent for all inner operations.
func (o *ObservedAgent) Run(ctx context.Context, input string) (lumen.RunResult, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "agent.run")
	defer span.End()
	start := time.Now()

	span.AddEvent("agent.started")

	result, err := o.inner.Run(ctx, input)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	failure := ""

	var runErr *lumen.RunError
	if errors.As(err, &runErr) {
		failure = string(runErr.Kind)
	}
	switch {
	case failure == string(lumen.FailureTimeout):
		status = "timeout"
		span.AddEvent("agent.timeout")
		span.SetStatus(codes.Error, "timeout")
	case err != nil:
		status = "error"
		span.AddEvent("agent.failed", trace.WithAttributes(
			attribute.String("error", err.Error()),
		))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		span.AddEvent("agent.completed")
	}

	span.SetAttributes(
		AttrAgentStatus.String(status),
		AttrAgentIterations.Int(result.Iterations),
		AttrAgentFailure.String(failure),
		AttrTokensInput.Int(result.Usage.InputTokens),
		AttrTokensOutput.Int(result.Usage.OutputTokens),
	)

	// Metrics
	o.inst.AgentExecutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		AttrAgentFailure.String(failure),
	))
	o.inst.AgentDuration.Record(ctx, durationMs)
	o.inst.AgentIterations.Record(ctx, int64(result.Iterations))

	// Structured log
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("agent run completed"))
	rec.AddAttributes(
		otellog.String("agent.status", status),
		otellog.String("agent.failure", failure),
		otellog.Int("agent.iterations", result.Iterations),
		otellog.Int("tokens.input", result.Usage.InputTokens),
		otellog.Int("tokens.output", result.Usage.OutputTokens),
		otellog.Float64("duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return result, err
}

// compile-time checks
var (
	_ Runner = (*ObservedAgent)(nil)
	_ Runner = (*lumen.ReActAgent)(nil)
)
