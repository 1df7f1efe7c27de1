package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "push-wallet-network"
)

// GetTracer returns the tracer used by the request layer.
func GetTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartGroupSpan starts the span that covers one failover call across a provider group.
func StartGroupSpan(ctx context.Context, network, operation string, endpoints int) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "rpcpool."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("network.name", network),
			attribute.String("rpc.operation", operation),
			attribute.Int("rpcpool.endpoints", endpoints),
		),
	)
}

// StartConnectionSpan starts a span for a persistent connection lifecycle step (dial, ping).
func StartConnectionSpan(ctx context.Context, step, host string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "wsconn."+step,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("server.address", host)),
	)
}

// AddAttemptEvent adds a failed attempt event to a span.
func AddAttemptEvent(span trace.Span, attempt int, host string, err error) {
	span.AddEvent("attempt.failed",
		trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.String("endpoint.host", host),
			attribute.String("error", err.Error()),
		),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error, class string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("error.class", class))
}
