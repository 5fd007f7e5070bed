// Package telemetry installs the OpenTelemetry tracer provider behind the
// evaluator spans.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/GoSim-25-26J-441/tune-core/pkg/logger"
)

// Exporter kinds accepted by NewExporter
const (
	ExporterNone   = ""
	ExporterStdout = "stdout"
	ExporterLog    = "log"
)

// NewExporter builds the span exporter named by kind. Stdout spans are
// written to w as JSON; log spans go through the default logger. An empty
// kind returns a nil exporter.
func NewExporter(kind string, w io.Writer) (sdktrace.SpanExporter, error) {
	switch kind {
	case ExporterNone:
		return nil, nil
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exp, nil
	case ExporterLog:
		return &LogExporter{Logger: logger.Default}, nil
	default:
		return nil, fmt.Errorf("unknown trace exporter %q (use %s or %s)", kind, ExporterStdout, ExporterLog)
	}
}

// Setup installs a global tracer provider batching spans into exp and
// returns its shutdown func, which flushes pending spans. A nil exp leaves
// the global provider alone and returns a no-op shutdown.
func Setup(serviceName string, exp sdktrace.SpanExporter) func(context.Context) error {
	if exp == nil {
		return func(context.Context) error { return nil }
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// LogExporter writes one log line per finished span
type LogExporter struct {
	Logger *slog.Logger
}

func (e *LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	l := e.Logger
	if l == nil {
		l = logger.Default
	}
	for _, s := range spans {
		args := []any{
			"span", s.Name(),
			"trace_id", s.SpanContext().TraceID().String(),
			"span_id", s.SpanContext().SpanID().String(),
			"duration", s.EndTime().Sub(s.StartTime()),
			"status", s.Status().Code.String(),
		}
		for _, kv := range s.Attributes() {
			args = append(args, string(kv.Key), kv.Value.Emit())
		}
		if desc := s.Status().Description; desc != "" {
			args = append(args, "error", desc)
		}
		l.InfoContext(ctx, "span finished", args...)
	}
	return nil
}

func (e *LogExporter) Shutdown(context.Context) error { return nil }
