// Package ui pushes pipeline and inventory events to websocket clients.
//
// The [Hub] implements the pipeline hooks, so the display follows the voice
// state machine, and doubles as the inventory refresher for the pipeline and
// the expiry notifier. Publishing never blocks: every client has a bounded
// send queue and events are dropped for clients that fall behind.
package ui

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/larder/internal/inventory"
	"github.com/MrWong99/larder/internal/pipeline"
	"github.com/MrWong99/larder/internal/recipe"
	"github.com/MrWong99/larder/pkg/types"
)

// Event types sent to clients.
const (
	EventWakeEnter  = "wake_enter"
	EventWakeExit   = "wake_exit"
	EventIdle       = "idle"
	EventState      = "state"
	EventInventory  = "inventory"
	EventTranscript = "transcript"
	EventRecipe     = "recipe"
	EventView       = "view"
	EventError      = "error"
)

// Views the display can switch to.
const (
	ViewHome      = "home"
	ViewInventory = "inventory"
)

// Client message types.
const msgStopRecording = "stop_recording"

const (
	defaultQueueSize = 64
	writeTimeout     = 5 * time.Second
)

// Event is one message to a client.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
	TS   int64  `json:"ts"`
}

// ItemView is the display form of an inventory item.
type ItemView struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Category      string `json:"category,omitempty"`
	Quantity      int    `json:"quantity"`
	Unit          string `json:"unit,omitempty"`
	Location      string `json:"location,omitempty"`
	RemainingDays int    `json:"remaining_days"`
	ExpiresAt     string `json:"expires_at"`
}

// Option configures a Hub.
type Option func(*Hub)

// WithInventory sets the store Refresh reads from.
func WithInventory(s inventory.Store) Option {
	return func(h *Hub) { h.store = s }
}

// WithQueueSize sets the per-client send queue length.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithOriginPatterns allows cross-origin websocket clients matching the
// given host patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.originPatterns = patterns }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to connected websocket clients.
type Hub struct {
	store          inventory.Store
	queueSize      int
	originPatterns []string
	now            func() time.Time

	stopper atomic.Pointer[func() error]
	dropped atomic.Int64

	mu      sync.Mutex
	clients map[*client]struct{}
	state   pipeline.State
}

var (
	_ pipeline.Hooks         = (*Hub)(nil)
	_ pipeline.StateObserver = (*Hub)(nil)
	_ pipeline.Refresher     = (*Hub)(nil)
	_ http.Handler           = (*Hub)(nil)
)

// NewHub returns a Hub without clients.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		queueSize: defaultQueueSize,
		now:       time.Now,
		clients:   make(map[*client]struct{}),
		state:     pipeline.StateIdle,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// SetStopper installs the function run when a client asks to stop the
// current recording, usually Pipeline.StopRecording.
func (h *Hub) SetStopper(fn func() error) {
	h.stopper.Store(&fn)
}

// ─── pipeline hooks ──────────────────────────────────────────────────────────

// OnWakeEnter implements [pipeline.Hooks].
func (h *Hub) OnWakeEnter() { h.Broadcast(EventWakeEnter, nil) }

// OnWakeExit implements [pipeline.Hooks].
func (h *Hub) OnWakeExit() { h.Broadcast(EventWakeExit, nil) }

// OnIdleReset implements [pipeline.Hooks].
func (h *Hub) OnIdleReset() { h.Broadcast(EventIdle, nil) }

// OnStateChange implements [pipeline.StateObserver].
func (h *Hub) OnStateChange(from, to pipeline.State) {
	h.mu.Lock()
	h.state = to
	h.mu.Unlock()
	h.Broadcast(EventState, stateData(from, to))
}

func stateData(from, to pipeline.State) map[string]string {
	return map[string]string{"from": from.String(), "to": to.String()}
}

// ─── publishers ──────────────────────────────────────────────────────────────

// PublishTranscript shows what was heard for a recording.
func (h *Hub) PublishTranscript(text string, intent types.Intent) {
	h.Broadcast(EventTranscript, map[string]string{"text": text, "intent": intent.String()})
}

// PublishRecipe shows a recipe suggestion.
func (h *Hub) PublishRecipe(s recipe.Suggestion) {
	h.Broadcast(EventRecipe, s)
}

// Navigate switches the display to the named view ("inventory", "home").
func (h *Hub) Navigate(view string) {
	h.Broadcast(EventView, map[string]string{"view": view})
}

// Refresh publishes the current inventory. It implements
// [pipeline.Refresher].
func (h *Hub) Refresh(ctx context.Context) error {
	items, err := h.snapshot(ctx)
	if err != nil {
		return err
	}
	h.Broadcast(EventInventory, items)
	return nil
}

func (h *Hub) snapshot(ctx context.Context) ([]ItemView, error) {
	if h.store == nil {
		return []ItemView{}, nil
	}
	items, err := h.store.List(ctx)
	if err != nil {
		return nil, err
	}
	now := h.now()
	views := make([]ItemView, len(items))
	for i, it := range items {
		views[i] = ItemView{
			ID:            it.ID,
			Name:          it.Name,
			Category:      it.Category,
			Quantity:      it.Quantity,
			Unit:          it.Unit,
			Location:      it.Location,
			RemainingDays: it.RemainingDays(now),
			ExpiresAt:     it.ExpiresAt.Format(time.DateOnly),
		}
	}
	return views, nil
}

// Broadcast sends an event to every client without blocking.
func (h *Hub) Broadcast(eventType string, data any) {
	msg, err := h.encode(eventType, data)
	if err != nil {
		slog.Error("ui: encode event", "type", eventType, "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.offer(c, msg)
	}
}

func (h *Hub) encode(eventType string, data any) ([]byte, error) {
	return json.Marshal(Event{Type: eventType, Data: data, TS: h.now().Unix()})
}

func (h *Hub) offer(c *client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		if n := h.dropped.Add(1); n == 1 || n%100 == 0 {
			slog.Warn("ui: client too slow, dropping events", "dropped_total", n)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many events were dropped for slow clients.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		_ = c.conn.CloseNow()
	}
	return nil
}

// ─── websocket endpoint ──────────────────────────────────────────────────────

// ServeHTTP upgrades the request to a websocket and serves the client until
// it disconnects. New clients first receive the current state and inventory.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		slog.Warn("ui: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{conn: conn, send: make(chan []byte, h.queueSize)}
	// Registering and reading the state under one lock means every later
	// transition lands in c.send, which is written after the greeting.
	h.mu.Lock()
	h.clients[c] = struct{}{}
	state := h.state
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
	}()
	if err := h.greet(ctx, c, state); err != nil {
		return
	}
	slog.Debug("ui: client connected", "remote", r.RemoteAddr)

	go func() {
		defer cancel()
		h.writeLoop(ctx, c)
	}()
	h.readLoop(ctx, c)
	slog.Debug("ui: client disconnected", "remote", r.RemoteAddr)
}

func (h *Hub) greet(ctx context.Context, c *client, state pipeline.State) error {
	msgs := make([][]byte, 0, 2)
	if msg, err := h.encode(EventState, stateData(state, state)); err == nil {
		msgs = append(msgs, msg)
	}
	items, err := h.snapshot(ctx)
	if err != nil {
		slog.Warn("ui: inventory snapshot", "err", err)
	} else if msg, err := h.encode(EventInventory, items); err == nil {
		msgs = append(msgs, msg)
	}
	for _, msg := range msgs {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := c.conn.Write(wctx, websocket.MessageText, msg)
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *Hub) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

type clientMessage struct {
	Type string `json:"type"`
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		var m clientMessage
		if err := json.Unmarshal(data, &m); err != nil {
			h.reply(c, EventError, map[string]string{"message": "malformed message"})
			continue
		}
		switch m.Type {
		case msgStopRecording:
			if err := h.stop(); err != nil {
				h.reply(c, EventError, map[string]string{"message": err.Error()})
			}
		default:
			h.reply(c, EventError, map[string]string{"message": "unknown message type " + m.Type})
		}
	}
}

func (h *Hub) stop() error {
	fn := h.stopper.Load()
	if fn == nil || *fn == nil {
		return errors.New("ui: recording control unavailable")
	}
	return (*fn)()
}

func (h *Hub) reply(c *client, eventType string, data any) {
	if msg, err := h.encode(eventType, data); err == nil {
		h.offer(c, msg)
	}
}
