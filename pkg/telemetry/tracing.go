package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies this module's spans in whatever TracerProvider
// the host process has configured globally via otel.SetTracerProvider.
// No exporter is wired here: this spec has no OTLP-endpoint external
// interface (§6 lists only the persistence DSN, AI key, search
// credentials, and monitoring_url), so by default otel's no-op provider
// is in effect and these spans cost nothing. A deployment that wants
// real traces sets its own global TracerProvider before the worker
// starts; these calls pick it up unmodified.
const tracerName = "github.com/dioceseharvest/pipeline"

// Tracer returns the pipeline's named tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named for a component/operation pair (Fetcher,
// AI gate, coordinator), following spec §5's shared-resource/suspension
// model: every Fetcher call, persistence call, and AI call is a
// suspension point worth tracing.
func StartSpan(ctx context.Context, component, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{attribute.String("component", component)}, attrs...)
	return Tracer().Start(ctx, operation, trace.WithAttributes(all...))
}
