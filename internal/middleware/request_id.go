package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace"
)

const (
	headerRequestID     = "X-Request-ID"
	headerCorrelationID = "X-Correlation-ID"
)

// RequestIDMiddleware adds a unique request ID to each request.
// If X-Request-ID header is present, it will be used; otherwise a new UUID is generated
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header(headerRequestID, requestID)
		c.Next()
	}
}

// CorrelationMiddleware propagates X-Correlation-ID, defaulting to the
// request ID. The id is put on the active span and in the context baggage so
// provider calls made for this request carry it.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(headerCorrelationID)
		if correlationID == "" {
			correlationID = c.GetString("request_id")
		}
		if correlationID == "" {
			c.Next()
			return
		}

		c.Set("correlation_id", correlationID)
		c.Header(headerCorrelationID, correlationID)

		ctx := c.Request.Context()
		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.SetAttributes(attribute.String("trace.correlation_id", correlationID))
		}
		if member, err := baggage.NewMember("correlation_id", correlationID); err == nil {
			if bag, err := baggage.FromContext(ctx).SetMember(member); err == nil {
				ctx = baggage.ContextWithBaggage(ctx, bag)
			}
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// CorrelationIDFromContext returns the correlation id carried in ctx baggage.
func CorrelationIDFromContext(c *gin.Context) string {
	return baggage.FromContext(c.Request.Context()).Member("correlation_id").Value()
}
