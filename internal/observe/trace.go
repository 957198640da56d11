package observe

import (
	"context"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/larder"

// CorrelationHeader carries the correlation ID on HTTP requests and
// responses.
const CorrelationHeader = "X-Correlation-ID"

type ctxKey int

const (
	correlationKey ctxKey = iota
	fieldsKey
)

// Tracer returns the larder tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. The correlation ID and fields stored
// in ctx become span attributes, so a trace can be found from a log line
// and back.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	var attrs []attribute.KeyValue
	if id, ok := ctx.Value(correlationKey).(string); ok {
		attrs = append(attrs, attribute.String("larder.correlation_id", id))
	}
	for _, f := range fields(ctx) {
		attrs = append(attrs, attribute.String("larder."+f.Key, f.Value.String()))
	}
	if len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	return Tracer().Start(ctx, name, opts...)
}

// NewCorrelationID returns a fresh random correlation ID.
func NewCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID tags ctx with id. Every voice command gets one at
// dispatch and keeps it through recording, transcription and intent
// application; HTTP requests take theirs from [CorrelationHeader].
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey, id)
}

// CorrelationID returns the ID set by [WithCorrelationID], falling back to
// the trace ID of the active span. Empty when neither exists.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey).(string); ok {
		return id
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// WithFields attaches log attributes (command, intent, item) to ctx. A
// field replaces an earlier one with the same key.
func WithFields(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	merged := slices.Clone(fields(ctx))
	for _, a := range attrs {
		i := slices.IndexFunc(merged, func(f slog.Attr) bool { return f.Key == a.Key })
		if i >= 0 {
			merged[i] = a
		} else {
			merged = append(merged, a)
		}
	}
	return context.WithValue(ctx, fieldsKey, merged)
}

func fields(ctx context.Context) []slog.Attr {
	f, _ := ctx.Value(fieldsKey).([]slog.Attr)
	return f
}

// Logger returns the default logger with correlation_id, trace_id, span_id
// and the fields from ctx. Attributes that are not set are left out.
func Logger(ctx context.Context) *slog.Logger {
	f := fields(ctx)
	args := make([]any, 0, len(f)+3)
	if id := CorrelationID(ctx); id != "" {
		args = append(args, slog.String("correlation_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		args = append(args,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	for _, a := range f {
		args = append(args, a)
	}
	if len(args) == 0 {
		return slog.Default()
	}
	return slog.Default().With(args...)
}
