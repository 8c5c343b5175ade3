package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NewInstrumentedHTTPClient creates an HTTP client whose requests are traced
// and carry the W3C trace context.
func NewInstrumentedHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &http.Client{
		Timeout: timeout,
		Transport: otelhttp.NewTransport(
			http.DefaultTransport,
			otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
		),
	}
}

// ExternalCallAttrs describes a call to a third-party API.
type ExternalCallAttrs struct {
	Provider   string // google, facebook, linkedin, webflow
	Operation  string
	ResourceID string
}

// TraceExternalCall starts a span for a third-party API call.
func TraceExternalCall(ctx context.Context, attrs ExternalCallAttrs) (context.Context, trace.Span) {
	tracer := otel.Tracer("external-api")

	ctx, span := tracer.Start(ctx, fmt.Sprintf("%s.%s", attrs.Provider, attrs.Operation),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("external.provider", attrs.Provider),
			attribute.String("external.operation", attrs.Operation),
		),
	)
	if attrs.ResourceID != "" {
		span.SetAttributes(attribute.String("external.resource_id", attrs.ResourceID))
	}
	return ctx, span
}

// RecordExternalCallError records error details in a span
func RecordExternalCallError(span trace.Span, err error, statusCode int) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
	if statusCode > 0 {
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
		if statusCode >= 500 || statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests {
			span.SetAttributes(attribute.Bool("external.error.retryable", true))
		}
	}
}

// RecordExternalCallSuccess marks a span as successful.
func RecordExternalCallSuccess(span trace.Span, statusCode int) {
	span.SetAttributes(attribute.Int("http.status_code", statusCode))
	span.SetStatus(codes.Ok, "")
}

// TraceOperation wraps a non-HTTP operation (render, publish fan-out) in a span.
func TraceOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("beacon").Start(ctx, name, trace.WithAttributes(attrs...))
}
