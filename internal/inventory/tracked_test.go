package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/larder/internal/inventory"
	"github.com/MrWong99/larder/internal/observe"
)

type sinkEvent struct {
	Type    string
	Payload map[string]any
}

type fakeSink struct {
	mu     sync.Mutex
	events []sinkEvent
	err    error
}

func (f *fakeSink) Enqueue(_ context.Context, eventType string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, _ := payload.(map[string]any)
	f.events = append(f.events, sinkEvent{Type: eventType, Payload: p})
	return f.err
}

func (f *fakeSink) Events() []sinkEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sinkEvent(nil), f.events...)
}

func newTracked(t *testing.T, sink inventory.EventSink) (*inventory.Tracked, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return inventory.NewTracked(inventory.NewMemoryStore(inventory.WithClock(clock)), sink, m), reader
}

func itemGauge(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "larder.inventory.items" {
				continue
			}
			g, ok := m.Data.(metricdata.Gauge[int64])
			if !ok || len(g.DataPoints) == 0 {
				t.Fatalf("unexpected gauge data %T", m.Data)
			}
			return g.DataPoints[0].Value
		}
	}
	t.Fatal("larder.inventory.items not recorded")
	return 0
}

func TestTracked_PublishesEvents(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	tr, reader := newTracked(t, sink)
	ctx := context.Background()

	it, err := tr.Add(ctx, inventory.Item{Name: "牛奶", Quantity: 2, Location: "冷藏"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := tr.Add(ctx, inventory.Item{Name: "鸡蛋", Quantity: 6}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := itemGauge(t, reader); got != 2 {
		t.Errorf("gauge after adds = %d, want 2", got)
	}
	if _, err := tr.Remove(ctx, "牛奶", 1); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := tr.MarkNotified(ctx, it.ID, 2); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	if _, err := tr.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	events := sink.Events()
	wantTypes := []string{
		inventory.EventAddItem,
		inventory.EventAddItem,
		inventory.EventRemoveItem,
		inventory.EventNotified,
		inventory.EventClear,
	}
	if len(events) != len(wantTypes) {
		t.Fatalf("got %d events, want %d", len(events), len(wantTypes))
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Errorf("event[%d] = %q, want %q", i, events[i].Type, want)
		}
	}

	add := events[0].Payload
	if add["item_id"] != it.ID || add["name"] != "牛奶" || add["quantity"] != 2 || add["location"] != "冷藏" {
		t.Errorf("add payload = %v", add)
	}
	if rm := events[2].Payload; rm["quantity"] != 1 || rm["left"] != 1 {
		t.Errorf("remove payload = %v", rm)
	}
	if n := events[3].Payload; n["item_id"] != it.ID || n["remaining_days"] != 2 {
		t.Errorf("notified payload = %v", n)
	}
	if c := events[4].Payload; c["count"] != 2 {
		t.Errorf("clear payload = %v", c)
	}
	if got := itemGauge(t, reader); got != 0 {
		t.Errorf("gauge after clear = %d, want 0", got)
	}
}

func TestTracked_SinkErrorDoesNotFailMutation(t *testing.T) {
	t.Parallel()

	tr, _ := newTracked(t, &fakeSink{err: errors.New("queue full")})
	if _, err := tr.Add(context.Background(), inventory.Item{Name: "面包"}); err != nil {
		t.Fatalf("Add: %v, want success despite sink error", err)
	}
}

func TestTracked_FailedMutationPublishesNothing(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	tr, _ := newTracked(t, sink)
	if _, err := tr.Remove(context.Background(), "西瓜", 1); !errors.Is(err, inventory.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := tr.Add(context.Background(), inventory.Item{}); err == nil {
		t.Fatal("expected error for unnamed item")
	}
	if n := len(sink.Events()); n != 0 {
		t.Errorf("published %d events for failed mutations", n)
	}
}

func TestTracked_NilSink(t *testing.T) {
	t.Parallel()

	tr, reader := newTracked(t, nil)
	if _, err := tr.Add(context.Background(), inventory.Item{Name: "黄瓜"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := itemGauge(t, reader); got != 1 {
		t.Errorf("gauge = %d, want 1", got)
	}
}
