package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartCallSpan starts a client span for one JSON-RPC attempt.
func StartCallSpan(ctx context.Context, tracer trace.Tracer, method, endpoint string, attempt int) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "jsonrpc "+method,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("rpc.system", "jsonrpc"),
		attribute.String("rpc.method", method),
		attribute.Int("rpcbench.attempt", attempt),
	)
	if endpoint != "" {
		span.SetAttributes(attribute.String("server.address", endpoint))
	}
	return ctx, span
}

// EndSpan finishes a span. An empty kind marks the span successful.
func EndSpan(span trace.Span, kind string, status int, size int) {
	if status > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if size > 0 {
		span.SetAttributes(attribute.Int("rpcbench.response_size", size))
	}
	if kind != "" {
		span.SetAttributes(attribute.String("rpcbench.error_kind", kind))
		span.SetStatus(codes.Error, kind)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
