package evaluator

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
	"github.com/GoSim-25-26J-441/tune-core/pkg/params"
)

const tracerName = "github.com/GoSim-25-26J-441/tune-core/internal/evaluator"

// Traced records one span per evaluation
type Traced struct {
	next   Evaluator
	tracer trace.Tracer
}

// NewTraced wraps next. A nil provider uses the global one.
func NewTraced(next Evaluator, tp trace.TracerProvider) *Traced {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Traced{next: next, tracer: tp.Tracer(tracerName)}
}

func (t *Traced) Evaluate(ctx context.Context, cfg params.Configuration) (models.Estimate, error) {
	ctx, span := t.tracer.Start(ctx, "tune.evaluate",
		trace.WithAttributes(attribute.String("tune.configuration", cfg.Key())))
	defer span.End()

	est, err := t.next.Evaluate(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return est, err
	}
	span.SetAttributes(
		attribute.Float64("tune.mean", est.Mean),
		attribute.Float64("tune.std_err", est.StdErr),
	)
	return est, nil
}
