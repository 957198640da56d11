package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/larder/internal/observe"
	audiomock "github.com/MrWong99/larder/pkg/audio/mock"
	sttmock "github.com/MrWong99/larder/pkg/provider/stt/mock"
	"github.com/MrWong99/larder/pkg/recognizer"
	recmock "github.com/MrWong99/larder/pkg/recognizer/mock"
	"github.com/MrWong99/larder/pkg/types"
)

// ─── Test doubles ────────────────────────────────────────────────────────────

type hookRecorder struct {
	mu     sync.Mutex
	events []string
	states []State
}

func (h *hookRecorder) add(ev string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *hookRecorder) OnWakeEnter() { h.add("wake_enter") }
func (h *hookRecorder) OnWakeExit()  { h.add("wake_exit") }
func (h *hookRecorder) OnIdleReset() { h.add("idle_reset") }

func (h *hookRecorder) OnStateChange(_, to State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, to)
}

func (h *hookRecorder) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

type applyCall struct {
	text        string
	intent      types.Intent
	correlation string
}

type applierRecorder struct {
	mu     sync.Mutex
	calls  []applyCall
	err    error
	called chan struct{}
}

func newApplier() *applierRecorder {
	return &applierRecorder{called: make(chan struct{}, 16)}
}

func (a *applierRecorder) ApplyIntent(ctx context.Context, text string, intent types.Intent) error {
	a.mu.Lock()
	a.calls = append(a.calls, applyCall{text: text, intent: intent, correlation: observe.CorrelationID(ctx)})
	err := a.err
	a.mu.Unlock()
	a.called <- struct{}{}
	return err
}

func (a *applierRecorder) Calls() []applyCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]applyCall(nil), a.calls...)
}

type refreshCounter struct{ n atomic.Int32 }

func (r *refreshCounter) Refresh(context.Context) error {
	r.n.Add(1)
	return nil
}

type failingAllocator struct{ calls atomic.Int32 }

func (f *failingAllocator) Acquire(int) ([]byte, error) {
	f.calls.Add(1)
	return nil, errors.New("out of memory")
}

func (f *failingAllocator) Release([]byte) {}

// harness bundles a pipeline with its scripted collaborators.
type harness struct {
	p        *Pipeline
	engine   *recmock.Engine
	tr       *sttmock.Transcriber
	applier  *applierRecorder
	hooks    *hookRecorder
	refresh  *refreshCounter
	pool     *BufferPool
	actions  map[Command]*atomic.Int32
	recipeFn ActionFunc
}

// capacityBytes is the recording capacity used by the harness: 100 ms of
// 16 kHz mono PCM.
const capacityBytes = 3200

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		engine:  recmock.New(256),
		tr:      &sttmock.Transcriber{Text: "放入 牛奶 两盒"},
		applier: newApplier(),
		hooks:   &hookRecorder{},
		refresh: &refreshCounter{},
		pool:    NewBufferPool(1),
		actions: map[Command]*atomic.Int32{},
	}
	counter := func(c Command) ActionFunc {
		n := &atomic.Int32{}
		h.actions[c] = n
		return func(context.Context) error {
			n.Add(1)
			return nil
		}
	}
	handlers := Handlers{
		ShowInventory:  counter(CommandShowInventory),
		ClearInventory: counter(CommandClearInventory),
		ReturnHome:     counter(CommandReturnHome),
	}
	recipes := counter(CommandRecommendRecipes)
	handlers.RecommendRecipes = func(ctx context.Context) error {
		if h.recipeFn != nil {
			return h.recipeFn(ctx)
		}
		return recipes(ctx)
	}
	table, err := DefaultDispatchTable(handlers)
	if err != nil {
		t.Fatalf("DefaultDispatchTable: %v", err)
	}

	base := []Option{
		WithHooks(h.hooks),
		WithRefresher(h.refresh),
		WithRecordDuration(100 * time.Millisecond),
		WithAllocator(h.pool),
	}
	h.p, err = New(&audiomock.Source{}, h.engine, h.tr, h.applier, table, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(h.p.tasks.stop)
	return h
}

// step pushes s and runs one detection cycle.
func (h *harness) step(t *testing.T, s recmock.Step) {
	t.Helper()
	h.engine.Push(s)
	if err := h.p.step(context.Background()); err != nil {
		t.Fatalf("step: %v", err)
	}
	h.checkWakeInvariant(t)
}

func (h *harness) checkWakeInvariant(t *testing.T) {
	t.Helper()
	idle := h.p.State() == StateIdle
	if h.engine.WakeEnabled() != idle {
		t.Fatalf("wake enabled = %v in state %s", h.engine.WakeEnabled(), h.p.State())
	}
}

func verified() recmock.Step {
	return recmock.Step{Result: recognizer.DetectionResult{
		WakeState:      recognizer.WakeVerified,
		Audio:          make([]byte, 64),
		TriggerChannel: 1,
	}}
}

func timeout(text string) recmock.Step {
	return recmock.Step{
		Result:  recognizer.DetectionResult{Audio: make([]byte, 64)},
		Command: recognizer.CommandTimeout,
		Results: recognizer.CommandResult{Text: text},
	}
}

// awake drives the harness from IDLE into AWAKE_LISTENING.
func (h *harness) awake(t *testing.T) {
	t.Helper()
	h.step(t, verified())
	if h.p.State() != StateAwake {
		t.Fatalf("state = %s, want awake", h.p.State())
	}
}

// recording drives the harness into RECORDING for the add-item command.
func (h *harness) recording(t *testing.T) {
	t.Helper()
	h.awake(t)
	h.step(t, recmock.Command(int(CommandAddItem), 0.9))
	if h.p.State() != StateRecording {
		t.Fatalf("state = %s, want recording", h.p.State())
	}
}

// fill writes frames of n bytes until the session is handed off and
// returns how many frames it took.
func (h *harness) fill(t *testing.T, n int) int {
	t.Helper()
	frames := 0
	for h.p.State() == StateRecording {
		h.step(t, recmock.Audio(n))
		frames++
		if frames > capacityBytes {
			t.Fatal("recording never handed off")
		}
	}
	return frames
}

// processPending runs the processing stage for the session in the mailbox.
func (h *harness) processPending(t *testing.T) *RecordingSession {
	t.Helper()
	select {
	case s := <-h.p.handoff.ch:
		h.p.process(context.Background(), s)
		return s
	default:
		t.Fatal("no session in the hand-off mailbox")
		return nil
	}
}

// ─── Scenarios ───────────────────────────────────────────────────────────────

func TestScenarioA_WakeThenRecordCommand(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.step(t, verified())

	if h.p.State() != StateAwake {
		t.Fatalf("state = %s, want awake", h.p.State())
	}
	if h.engine.WakeEnabled() {
		t.Fatal("wake detection still enabled after verification")
	}
	if got := h.hooks.Events(); len(got) != 1 || got[0] != "wake_enter" {
		t.Fatalf("hooks = %v, want [wake_enter]", got)
	}
	if h.engine.Snapshot().Match != 1 {
		t.Errorf("matcher runs = %d, want 1 on the verifying frame", h.engine.Snapshot().Match)
	}

	h.step(t, recmock.Command(int(CommandAddItem), 0.93))
	if h.p.State() != StateRecording {
		t.Fatalf("state = %s, want recording", h.p.State())
	}
	if h.p.session == nil || h.p.session.Cap() != capacityBytes {
		t.Fatalf("session = %+v, want capacity %d", h.p.session, capacityBytes)
	}
	if h.p.session.Intent() != types.IntentAddItem {
		t.Errorf("intent = %s, want add_item", h.p.session.Intent())
	}
	if h.pool.InUse() != 1 {
		t.Errorf("buffers in use = %d, want 1", h.pool.InUse())
	}
}

func TestScenarioB_RecordingHandsOffAtCapacity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		chunk      int
		wantFrames int
	}{
		{name: "exact boundary", chunk: 640, wantFrames: 5},
		{name: "mid-chunk", chunk: 1000, wantFrames: 4},
		{name: "single oversized chunk", chunk: 5000, wantFrames: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			h.recording(t)
			matchesBefore := h.engine.Snapshot().Match

			if got := h.fill(t, tt.chunk); got != tt.wantFrames {
				t.Errorf("frames until hand-off = %d, want %d", got, tt.wantFrames)
			}
			if h.p.State() != StateProcessing {
				t.Fatalf("state = %s, want processing", h.p.State())
			}
			if h.engine.Snapshot().Match != matchesBefore {
				t.Error("matcher ran while recording")
			}

			s := h.processPending(t)
			if s.Len() != capacityBytes {
				t.Errorf("recorded %d bytes, want exactly %d", s.Len(), capacityBytes)
			}
			if _, err := s.Write([]byte{1}); !errors.Is(err, ErrSessionSealed) {
				t.Errorf("write after hand-off: err = %v, want ErrSessionSealed", err)
			}
		})
	}
}

func TestScenarioC_ProcessingDrainsUntilDone(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.recording(t)
	h.fill(t, 640)
	before := h.engine.Snapshot()

	noise := []recmock.Step{
		{Result: recognizer.DetectionResult{WakeState: recognizer.WakeDetected}},
		verified(),
		recmock.Command(int(CommandShowInventory), 0.99),
		timeout("ignored"),
		recmock.Audio(640),
	}
	for _, s := range noise {
		h.step(t, s)
		if h.p.State() != StateProcessing {
			t.Fatalf("state = %s during processing, want processing", h.p.State())
		}
	}

	after := h.engine.Snapshot()
	if after.Match != before.Match || after.Reset != before.Reset || after.Enable != before.Enable {
		t.Errorf("engine touched while draining: before %+v after %+v", before, after)
	}
	if h.actions[CommandShowInventory].Load() != 0 {
		t.Error("command dispatched while processing")
	}

	h.processPending(t)
	h.step(t, recmock.Audio(64))
	if h.p.State() != StateIdle {
		t.Fatalf("state = %s after done, want idle", h.p.State())
	}
	if got := h.engine.Snapshot().Enable - before.Enable; got != 1 {
		t.Errorf("EnableWake calls = %d, want exactly 1", got)
	}
	events := h.hooks.Events()
	if events[len(events)-1] != "idle_reset" {
		t.Errorf("last hook = %q, want idle_reset", events[len(events)-1])
	}
}

func TestScenarioD_TimeoutReturnsToIdleWithoutSideEffects(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", "na ge"} {
		h := newHarness(t)
		h.awake(t)
		enables := h.engine.Snapshot().Enable

		h.step(t, timeout(text))

		if h.p.State() != StateIdle {
			t.Fatalf("state = %s, want idle", h.p.State())
		}
		if !h.engine.WakeEnabled() || h.engine.Snapshot().Enable != enables+1 {
			t.Errorf("wake not re-enabled exactly once")
		}
		if got := h.hooks.Events(); got[len(got)-1] != "wake_exit" {
			t.Errorf("hooks = %v, want wake_exit last", got)
		}
		if h.tr.CallCount() != 0 || len(h.applier.Calls()) != 0 || h.refresh.n.Load() != 0 {
			t.Error("collaborators invoked on timeout")
		}
		for c, n := range h.actions {
			if n.Load() != 0 {
				t.Errorf("action %s ran on timeout", c)
			}
		}
	}
}

func TestScenarioE_SecondRecordingRejected(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.recording(t)

	// A second record command heard while recording is never matched.
	h.step(t, recmock.Command(int(CommandRemoveItem), 0.95))
	if h.p.session.Intent() != types.IntentAddItem {
		t.Fatalf("intent = %s, want the first request's add_item", h.p.session.Intent())
	}

	// Requesting directly is rejected without allocating.
	if err := h.p.startRecording(context.Background(), types.IntentRemoveItem); !errors.Is(err, ErrSessionOutstanding) {
		t.Fatalf("err = %v, want ErrSessionOutstanding", err)
	}
	if h.pool.InUse() != 1 {
		t.Errorf("buffers in use = %d, want 1", h.pool.InUse())
	}

	// Still rejected after hand-off until the processing stage is done.
	h.fill(t, 640)
	if err := h.p.startRecording(context.Background(), types.IntentRemoveItem); !errors.Is(err, ErrSessionOutstanding) {
		t.Fatalf("err during processing = %v, want ErrSessionOutstanding", err)
	}
	h.processPending(t)
	if h.pool.InUse() != 0 {
		t.Errorf("buffers in use after processing = %d, want 0", h.pool.InUse())
	}
}

// ─── Commands ────────────────────────────────────────────────────────────────

func TestImmediateCommandsReturnToIdle(t *testing.T) {
	t.Parallel()

	for _, c := range []Command{CommandShowInventory, CommandClearInventory, CommandReturnHome} {
		t.Run(c.String(), func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			h.awake(t)
			h.step(t, recmock.Command(int(c), 0.9))

			if h.actions[c].Load() != 1 {
				t.Errorf("action ran %d times, want 1", h.actions[c].Load())
			}
			if h.p.State() != StateIdle {
				t.Errorf("state = %s, want idle", h.p.State())
			}
			if got := h.hooks.Events(); got[len(got)-1] != "idle_reset" {
				t.Errorf("hooks = %v, want idle_reset last", got)
			}
		})
	}
}

func TestImmediateActionFailureStillIdles(t *testing.T) {
	t.Parallel()

	for name, fn := range map[string]ActionFunc{
		"error": func(context.Context) error { return errors.New("store offline") },
		"panic": func(context.Context) error { panic("boom") },
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			table, err := NewDispatchTable(map[Command]Action{
				CommandGenericTest:      Record(types.IntentGenericTest),
				CommandAddItem:          Record(types.IntentAddItem),
				CommandRemoveItem:       Record(types.IntentRemoveItem),
				CommandShowInventory:    Immediate(fn),
				CommandClearInventory:   Immediate(fn),
				CommandRecommendRecipes: Background(fn),
				CommandReturnHome:       Immediate(fn),
			})
			if err != nil {
				t.Fatalf("NewDispatchTable: %v", err)
			}
			h := newHarness(t)
			h.p.table = table

			h.awake(t)
			h.step(t, recmock.Command(int(CommandClearInventory), 0.9))
			if h.p.State() != StateIdle {
				t.Fatalf("state = %s, want idle", h.p.State())
			}
		})
	}
}

func TestBackgroundRecipesSingleFlight(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	var started atomic.Int32
	release := make(chan struct{})
	cancelled := make(chan struct{})
	h.recipeFn = func(ctx context.Context) error {
		started.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
			close(cancelled)
		}
		return ctx.Err()
	}

	h.awake(t)
	h.step(t, recmock.Command(int(CommandRecommendRecipes), 0.9))
	if h.p.State() != StateIdle {
		t.Fatalf("state = %s, want idle without waiting for the task", h.p.State())
	}

	deadline := time.Now().Add(time.Second)
	for started.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !h.p.tasks.busy() {
		t.Fatal("background task not running")
	}

	h.awake(t)
	h.step(t, recmock.Command(int(CommandRecommendRecipes), 0.9))
	time.Sleep(10 * time.Millisecond)
	if started.Load() != 1 {
		t.Fatalf("recipe task started %d times, want 1", started.Load())
	}

	h.p.tasks.stop()
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("background task not cancelled on stop")
	}
}

func TestDispatchAssignsCorrelationID(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	seen := make(chan string, 2)
	h.recipeFn = func(ctx context.Context) error {
		seen <- observe.CorrelationID(ctx)
		return nil
	}

	var ids []string
	for range 2 {
		h.awake(t)
		h.step(t, recmock.Command(int(CommandRecommendRecipes), 0.9))
		select {
		case id := <-seen:
			ids = append(ids, id)
		case <-time.After(time.Second):
			t.Fatal("recipe task never ran")
		}
		for deadline := time.Now().Add(time.Second); h.p.tasks.busy(); {
			if time.Now().After(deadline) {
				t.Fatal("recipe task still busy")
			}
			time.Sleep(time.Millisecond)
		}
	}
	if ids[0] == "" || ids[0] == ids[1] {
		t.Errorf("correlation IDs = %q, want one fresh ID per command", ids)
	}
}

func TestAllocationFailureStaysAwake(t *testing.T) {
	t.Parallel()

	alloc := &failingAllocator{}
	h := newHarness(t, WithAllocator(alloc))
	h.awake(t)
	resets := h.engine.Snapshot().Reset

	h.step(t, recmock.Command(int(CommandAddItem), 0.9))

	if h.p.State() != StateAwake {
		t.Fatalf("state = %s, want awake after allocation failure", h.p.State())
	}
	if alloc.calls.Load() != 1 {
		t.Errorf("allocations = %d, want 1", alloc.calls.Load())
	}
	if h.engine.Snapshot().Reset != resets {
		t.Error("allocation failure restarted the command window")
	}

	// Listening continues: a timeout still returns to idle.
	h.step(t, timeout(""))
	if h.p.State() != StateIdle {
		t.Fatalf("state = %s, want idle", h.p.State())
	}
}

func TestWakeDetectedPrimesMatcher(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.step(t, recmock.Step{Result: recognizer.DetectionResult{WakeState: recognizer.WakeDetected}})

	if h.p.State() != StateIdle {
		t.Fatalf("state = %s, want idle", h.p.State())
	}
	if c := h.engine.Snapshot(); c.Reset != 1 || c.Match != 0 {
		t.Errorf("counts = %+v, want one matcher reset and no matching", c)
	}
}

func TestUnknownCommandKeepsListening(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.awake(t)
	h.step(t, recmock.Command(42, 0.99))
	if h.p.State() != StateAwake {
		t.Fatalf("state = %s, want awake", h.p.State())
	}
}

func TestFetchErrorIsFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	boom := errors.New("ring buffer broken")
	h.engine.Push(recmock.Step{FetchErr: boom})
	if err := h.p.step(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped fetch error", err)
	}
}

// ─── Processing stage ────────────────────────────────────────────────────────

func TestProcessing_AppliesTranscript(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.recording(t)
	cid := h.p.session.CorrelationID()
	if cid == "" {
		t.Fatal("recording has no correlation ID")
	}
	h.fill(t, 640)
	h.processPending(t)

	calls := h.applier.Calls()
	if len(calls) != 1 || calls[0].text != "放入 牛奶 两盒" || calls[0].intent != types.IntentAddItem {
		t.Fatalf("apply calls = %+v", calls)
	}
	if calls[0].correlation != cid {
		t.Errorf("applier correlation ID = %q, want the dispatching command's %q", calls[0].correlation, cid)
	}
	if len(h.tr.Calls) != 1 || len(h.tr.Calls[0]) != capacityBytes {
		t.Errorf("transcribed %d recordings", len(h.tr.Calls))
	}
	if h.refresh.n.Load() != 1 {
		t.Errorf("refreshes = %d, want 1", h.refresh.n.Load())
	}
	if h.p.handoff.pending() {
		t.Error("processing flag still set")
	}
}

func TestProcessing_CollaboratorFailuresAreIsolated(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		setup     func(h *harness)
		wantApply int
	}{
		{
			name:      "transcription error",
			setup:     func(h *harness) { h.tr.Err = errors.New("asr unavailable") },
			wantApply: 0,
		},
		{
			name:      "transcriber panic",
			setup:     func(h *harness) { h.tr.Panic = "nil model" },
			wantApply: 0,
		},
		{
			name:      "apply error",
			setup:     func(h *harness) { h.applier.err = errors.New("llm down") },
			wantApply: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			tt.setup(h)
			h.recording(t)
			h.fill(t, 640)
			h.processPending(t)

			if got := len(h.applier.Calls()); got != tt.wantApply {
				t.Errorf("apply calls = %d, want %d", got, tt.wantApply)
			}
			if h.p.handoff.pending() {
				t.Fatal("processing flag not cleared")
			}
			if h.pool.InUse() != 0 {
				t.Errorf("buffers in use = %d, want 0", h.pool.InUse())
			}
			h.step(t, recmock.Audio(64))
			if h.p.State() != StateIdle {
				t.Fatalf("state = %s, want idle", h.p.State())
			}
		})
	}
}

func TestIdleResetIsIdenticalAfterTimeoutAndProcessing(t *testing.T) {
	t.Parallel()

	viaTimeout := newHarness(t)
	viaTimeout.awake(t)
	viaTimeout.step(t, timeout(""))

	viaProcessing := newHarness(t)
	viaProcessing.recording(t)
	viaProcessing.fill(t, 640)
	viaProcessing.processPending(t)
	viaProcessing.step(t, recmock.Audio(64))

	for name, h := range map[string]*harness{"timeout": viaTimeout, "processing": viaProcessing} {
		if h.p.State() != StateIdle || !h.engine.WakeEnabled() {
			t.Errorf("%s: state = %s wake = %v", name, h.p.State(), h.engine.WakeEnabled())
		}
		if h.p.session != nil || h.p.handoff.pending() {
			t.Errorf("%s: session or hand-off left behind", name)
		}
		// Run was never called, so every EnableWake observed is a reset.
		if got := h.engine.Snapshot().Enable; got != 1 {
			t.Errorf("%s: EnableWake calls = %d, want 1", name, got)
		}
	}
}

// ─── Early stop ──────────────────────────────────────────────────────────────

func TestStopRecording(t *testing.T) {
	t.Parallel()

	t.Run("disabled by default", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.recording(t)
		if err := h.p.StopRecording(); !errors.Is(err, ErrStopDisabled) {
			t.Fatalf("err = %v, want ErrStopDisabled", err)
		}
	})

	t.Run("not recording", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, WithStop(StopCommit))
		if err := h.p.StopRecording(); !errors.Is(err, ErrNotRecording) {
			t.Fatalf("err = %v, want ErrNotRecording", err)
		}
	})

	t.Run("commit", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, WithStop(StopCommit))
		h.recording(t)
		h.step(t, recmock.Audio(640))
		if err := h.p.StopRecording(); err != nil {
			t.Fatalf("StopRecording: %v", err)
		}
		h.step(t, recmock.Audio(640))
		if h.p.State() != StateProcessing {
			t.Fatalf("state = %s, want processing", h.p.State())
		}
		if s := h.processPending(t); s.Len() != 640 {
			t.Errorf("committed %d bytes, want 640", s.Len())
		}
	})

	t.Run("discard", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, WithStop(StopDiscard))
		h.recording(t)
		h.step(t, recmock.Audio(640))
		if err := h.p.StopRecording(); err != nil {
			t.Fatalf("StopRecording: %v", err)
		}
		h.step(t, recmock.Audio(640))
		if h.p.State() != StateIdle {
			t.Fatalf("state = %s, want idle", h.p.State())
		}
		if h.pool.InUse() != 0 || h.tr.CallCount() != 0 {
			t.Error("discarded recording was kept or transcribed")
		}
	})
}

func TestParseStopAction(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]StopAction{"": StopCommit, "commit": StopCommit, "discard": StopDiscard} {
		got, err := ParseStopAction(in)
		if err != nil || got != want {
			t.Errorf("ParseStopAction(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseStopAction("pad"); err == nil {
		t.Error("expected error for unknown action")
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.engine.Push(verified(), recmock.Command(int(CommandRemoveItem), 0.9))
	for range capacityBytes / 640 {
		h.engine.Push(recmock.Audio(640))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- h.p.Run(ctx) }()

	select {
	case <-h.applier.called:
	case <-time.After(2 * time.Second):
		t.Fatal("recording never applied")
	}
	calls := h.applier.Calls()
	if calls[0].intent != types.IntentRemoveItem {
		t.Errorf("intent = %s, want remove_item", calls[0].intent)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.p.State() != StateIdle && time.Now().Before(deadline) {
		h.engine.Push(recmock.Audio(64))
		time.Sleep(5 * time.Millisecond)
	}
	if h.p.State() != StateIdle {
		t.Fatalf("state = %s, want idle", h.p.State())
	}
	if !h.p.Detecting() {
		t.Error("detection loop not reported as running")
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if err := h.p.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run: err = %v, want ErrAlreadyRunning", err)
	}
}

func TestRun_FetchFailureEndsRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	boom := errors.New("engine crashed")
	h.engine.Push(recmock.Step{FetchErr: boom})

	errc := make(chan error, 1)
	go func() { errc <- h.p.Run(context.Background()) }()

	select {
	case err := <-errc:
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v, want fetch error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return on fetch failure")
	}
}

type zeroSource struct{ audiomock.Source }

func (*zeroSource) Channels() int  { return 0 }
func (*zeroSource) FrameSize() int { return 0 }

func TestRun_RejectsUnsizableFeedBuffer(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.p.source = &zeroSource{}
	if err := h.p.Run(context.Background()); err == nil {
		t.Fatal("expected sizing error")
	}
}

func TestRun_FeedsEngine(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	src := &audiomock.Source{ChannelCount: 2, Frames: [][]int16{make([]int16, 512), make([]int16, 512)}}
	h.p.source = src

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.p.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for h.engine.Snapshot().Feed < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-errc

	if got := h.engine.Snapshot().Feed; got != 2 {
		t.Errorf("Feed calls = %d, want 2", got)
	}
	for _, n := range src.ReadLens {
		if n != 256*2 {
			t.Errorf("read buffer = %d samples, want chunk x channels = 512", n)
		}
	}
}

// ─── Construction ────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	table, _ := DefaultDispatchTable(Handlers{
		ShowInventory:    func(context.Context) error { return nil },
		ClearInventory:   func(context.Context) error { return nil },
		RecommendRecipes: func(context.Context) error { return nil },
		ReturnHome:       func(context.Context) error { return nil },
	})
	src, eng, tr, ap := &audiomock.Source{}, recmock.New(256), &sttmock.Transcriber{}, newApplier()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"nil source", func() error { _, err := New(nil, eng, tr, ap, table); return err }},
		{"nil engine", func() error { _, err := New(src, nil, tr, ap, table); return err }},
		{"nil transcriber", func() error { _, err := New(src, eng, nil, ap, table); return err }},
		{"nil applier", func() error { _, err := New(src, eng, tr, nil, table); return err }},
		{"nil table", func() error { _, err := New(src, eng, tr, ap, nil); return err }},
		{"zero duration", func() error { _, err := New(src, eng, tr, ap, table, WithRecordDuration(0)); return err }},
	}
	for _, tt := range tests {
		if err := tt.fn(); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}

	p, err := New(src, eng, tr, ap, table)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Capacity() != 96000 {
		t.Errorf("default capacity = %d, want 96000", p.Capacity())
	}
}
