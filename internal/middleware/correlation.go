package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	correlationHeader  = "X-Correlation-ID"
	correlationLocal   = "correlation_id"
	maxCorrelationSize = 128
)

type correlationIDKey struct{}

// CorrelationID makes sure every request carries an identifier that follows the
// evaluation into logs, reports and spans.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := sanitizeCorrelation(c.Get(correlationHeader))
		if id == "" {
			id = sanitizeCorrelation(c.Get(fiber.HeaderXRequestID))
		}
		if id == "" {
			id = uuid.NewString()
		}

		c.Locals(correlationLocal, id)
		c.Set(correlationHeader, id)

		ctx := ContextWithCorrelation(c.UserContext(), id)
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("correlation_id", id))
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// CorrelationIDFromContext extracts the correlation identifier from ctx, if present.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

// GetCorrelationID returns the correlation identifier bound to the active request.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(correlationLocal).(string); ok {
		return id
	}
	return CorrelationIDFromContext(c.UserContext())
}

// ContextWithCorrelation attaches the correlation identifier to ctx.
func ContextWithCorrelation(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	id = sanitizeCorrelation(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey{}, id)
}

func sanitizeCorrelation(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > maxCorrelationSize {
		id = id[:maxCorrelationSize]
	}
	return id
}
