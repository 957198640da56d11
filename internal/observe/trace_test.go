package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTracer installs an in-memory tracer as the global provider for the
// duration of the test.
func useTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs routes the default logger into a JSON buffer at level.
func captureLogs(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level})))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log %q: %v", buf.String(), err)
	}
	return rec
}

func TestCorrelationID(t *testing.T) {
	useTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}

	ctx, span := StartSpan(context.Background(), "pipeline.process")
	defer span.End()
	traceID := span.SpanContext().TraceID().String()
	if got := CorrelationID(ctx); got != traceID {
		t.Errorf("CorrelationID(span) = %q, want trace ID %q", got, traceID)
	}

	cmd := WithCorrelationID(ctx, "cmd-7")
	if got := CorrelationID(cmd); got != "cmd-7" {
		t.Errorf("CorrelationID = %q, want the explicit ID over the trace ID", got)
	}
	if WithCorrelationID(ctx, "") != ctx {
		t.Error("empty correlation ID should leave ctx unchanged")
	}
}

func TestNewCorrelationID(t *testing.T) {
	a, b := NewCorrelationID(), NewCorrelationID()
	if a == b {
		t.Fatalf("two IDs are equal: %q", a)
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("ID %q is not a UUID: %v", a, err)
	}
}

func TestWithFields_ReplacesByKey(t *testing.T) {
	ctx := WithFields(context.Background(), slog.String("command", "add_item"))
	ctx = WithFields(ctx, slog.String("intent", "add_item"), slog.String("command", "remove_item"))

	got := fields(ctx)
	if len(got) != 2 {
		t.Fatalf("fields = %v, want command and intent", got)
	}
	if got[0].Key != "command" || got[0].Value.String() != "remove_item" {
		t.Errorf("command field = %v, want replaced value", got[0])
	}

	parent := WithFields(context.Background(), slog.String("item", "牛奶"))
	_ = WithFields(parent, slog.String("item", "鸡蛋"))
	if v := fields(parent)[0].Value.String(); v != "牛奶" {
		t.Errorf("parent field mutated to %q", v)
	}
}

func TestLogger_AddsCorrelationAndFields(t *testing.T) {
	useTracer(t)
	buf := captureLogs(t, slog.LevelInfo)

	ctx := WithCorrelationID(context.Background(), "cmd-7")
	ctx = WithFields(ctx, slog.String("command", "add_item"), slog.String("intent", "add_item"))
	ctx, span := StartSpan(ctx, "pipeline.process")
	defer span.End()

	Logger(ctx).Info("pipeline: transcribed recording")

	rec := decodeLine(t, buf)
	want := map[string]string{
		"correlation_id": "cmd-7",
		"trace_id":       span.SpanContext().TraceID().String(),
		"span_id":        span.SpanContext().SpanID().String(),
		"command":        "add_item",
		"intent":         "add_item",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %v, want %q", k, rec[k], v)
		}
	}
}

func TestLogger_BareContext(t *testing.T) {
	captureLogs(t, slog.LevelInfo)
	if Logger(context.Background()) != slog.Default() {
		t.Error("Logger without correlation or fields should be the default logger")
	}
}

func TestStartSpan_CopiesCorrelation(t *testing.T) {
	exp := useTracer(t)

	ctx := WithCorrelationID(context.Background(), "cmd-9")
	ctx = WithFields(ctx, slog.String("command", "clear_inventory"))
	_, span := StartSpan(ctx, "pipeline.dispatch")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	got := map[string]string{}
	for _, a := range spans[0].Attributes {
		got[string(a.Key)] = a.Value.AsString()
	}
	if got["larder.correlation_id"] != "cmd-9" || got["larder.command"] != "clear_inventory" {
		t.Errorf("span attributes = %v", got)
	}
	if spans[0].InstrumentationScope.Name != tracerName {
		t.Errorf("scope = %q, want %q", spans[0].InstrumentationScope.Name, tracerName)
	}
}
