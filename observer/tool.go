package observer

import (
	"context"
	"strings"
	"time"

	"github.com/nevindra/lumen"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedTool wraps a lumen.Tool with OTEL instrumentation.
type ObservedTool struct {
	inner lumen.Tool
	inst  *Instruments
}

// WrapTool returns an instrumented tool.
func WrapTool(inner lumen.Tool, inst *Instruments) *ObservedTool {
	return &ObservedTool{inner: inner, inst: inst}
}

func (o *ObservedTool) Name() string        { return o.inner.Name() }
func (o *ObservedTool) Description() string { return o.inner.Description() }

func (o *ObservedTool) Execute(ctx context.Context, input string) (string, error) {
	name := o.inner.Name()
	ctx, span := o.inst.Tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		AttrToolName.String(name),
		AttrToolInputLength.Int(len(input)),
	))
	defer span.End()
	start := time.Now()

	result, err := o.inner.Execute(ctx, input)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if strings.HasPrefix(result, "error:") {
		status = "tool_error"
	}
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		AttrToolStatus.String(status),
		AttrToolResultLength.Int(len(result)),
	)

	o.inst.ToolExecutions.Add(ctx, 1, metric.WithAttributes(
		AttrToolName.String(name),
		attribute.String("status", status),
	))
	o.inst.ToolDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrToolName.String(name),
	))

	// Structured log
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("tool executed"))
	rec.AddAttributes(
		otellog.String("tool.name", name),
		otellog.String("tool.status", status),
		otellog.Int("tool.result_length", len(result)),
		otellog.Float64("tool.duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return result, err
}

// WrapRegistry returns a new registry holding an instrumented copy of every
// tool in r, in the same order.
func WrapRegistry(r *lumen.ToolRegistry, inst *Instruments, opts ...lumen.RegistryOption) (*lumen.ToolRegistry, error) {
	out := lumen.NewToolRegistry(opts...)
	for _, t := range r.Tools() {
		if err := out.Register(WrapTool(t, inst)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

var _ lumen.Tool = (*ObservedTool)(nil)
