package inventory

import (
	"context"
	"log/slog"

	"github.com/MrWong99/larder/internal/observe"
)

// Change event types published by Tracked.
const (
	EventAddItem    = "add_item"
	EventRemoveItem = "remove_item"
	EventClear      = "clear"
	EventNotified   = "notified"
)

// EventSink receives inventory change events. The cloud sync queue
// implements it.
type EventSink interface {
	Enqueue(ctx context.Context, eventType string, payload any) error
}

// Tracked decorates a Store: after every successful mutation it publishes a
// change event to the sink and records the item count gauge. Sink failures
// are logged and never fail the mutation.
type Tracked struct {
	Store
	sink    EventSink
	metrics *observe.Metrics
}

var _ Store = (*Tracked)(nil)

// NewTracked wraps s. sink may be nil; metrics defaults to
// observe.DefaultMetrics.
func NewTracked(s Store, sink EventSink, metrics *observe.Metrics) *Tracked {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Tracked{Store: s, sink: sink, metrics: metrics}
}

// Add implements [Store].
func (t *Tracked) Add(ctx context.Context, item Item) (Item, error) {
	it, err := t.Store.Add(ctx, item)
	if err != nil {
		return Item{}, err
	}
	slog.Info("inventory: item added",
		"id", it.ID,
		"name", it.Name,
		"quantity", it.Quantity,
		"unit", it.Unit,
		"location", it.Location,
		"expires_at", it.ExpiresAt.Format("2006-01-02"),
	)
	t.publish(ctx, EventAddItem, map[string]any{
		"item_id":  it.ID,
		"action":   EventAddItem,
		"name":     it.Name,
		"quantity": it.Quantity,
		"location": it.Location,
	})
	return it, nil
}

// Remove implements [Store].
func (t *Tracked) Remove(ctx context.Context, name string, quantity int) (Removal, error) {
	r, err := t.Store.Remove(ctx, name, quantity)
	if err != nil {
		return Removal{}, err
	}
	left := r.Item.Quantity
	if r.Deleted {
		left = 0
	}
	slog.Info("inventory: item removed",
		"id", r.Item.ID,
		"name", r.Item.Name,
		"removed", r.Removed,
		"left", left,
	)
	t.publish(ctx, EventRemoveItem, map[string]any{
		"item_id":  r.Item.ID,
		"action":   EventRemoveItem,
		"name":     r.Item.Name,
		"quantity": r.Removed,
		"left":     left,
	})
	return r, nil
}

// Clear implements [Store].
func (t *Tracked) Clear(ctx context.Context) (int, error) {
	n, err := t.Store.Clear(ctx)
	if err != nil {
		return 0, err
	}
	slog.Info("inventory: cleared", "items", n)
	t.publish(ctx, EventClear, map[string]any{
		"action": EventClear,
		"count":  n,
	})
	return n, nil
}

// MarkNotified implements [Store].
func (t *Tracked) MarkNotified(ctx context.Context, id string, remainingDays int) error {
	if err := t.Store.MarkNotified(ctx, id, remainingDays); err != nil {
		return err
	}
	t.publish(ctx, EventNotified, map[string]any{
		"item_id":        id,
		"action":         EventNotified,
		"remaining_days": remainingDays,
	})
	return nil
}

func (t *Tracked) publish(ctx context.Context, eventType string, payload map[string]any) {
	if t.sink != nil {
		if err := t.sink.Enqueue(ctx, eventType, payload); err != nil {
			slog.Warn("inventory: enqueue sync event", "type", eventType, "err", err)
		}
	}
	t.RecordCount(ctx)
}

// RecordCount publishes the current item count to the inventory gauge.
func (t *Tracked) RecordCount(ctx context.Context) {
	items, err := t.Store.List(ctx)
	if err != nil {
		slog.Debug("inventory: count items", "err", err)
		return
	}
	t.metrics.InventoryItems.Record(ctx, int64(len(items)))
}
