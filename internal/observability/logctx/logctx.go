package logctx

import (
	"context"

	"github.com/Zhima-Mochi/minishop-billing/internal/observability"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

type loggerKey struct{}

// With stores the provided logger on the context for operation-scoped logging.
func With(ctx context.Context, logger observability.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// From retrieves a logger from the context if present.
func From(ctx context.Context) observability.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(loggerKey{}).(observability.Logger)
	return logger
}

// FromOr returns the context logger when available, otherwise falls back to the supplied logger.
func FromOr(ctx context.Context, fallback observability.Logger) observability.Logger {
	if logger := From(ctx); logger != nil {
		return logger
	}
	return fallback
}

// WithOperation derives a logger for one billing operation and stores it on the context.
// The logger carries a fresh operation_id and, when the context holds a valid span,
// its trace_id/span_id. Extra fields should stay low-cardinality.
func WithOperation(ctx context.Context, base observability.Logger, operation string, fields ...observability.Field) (context.Context, observability.Logger) {
	if base == nil {
		base = observability.NopLogger()
	}
	all := make([]observability.Field, 0, len(fields)+4)
	all = append(all,
		observability.F("operation", operation),
		observability.F("operation_id", uuid.NewString()),
	)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		all = append(all,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	all = append(all, fields...)

	logger := base.With(all...)
	return With(ctx, logger), logger
}
