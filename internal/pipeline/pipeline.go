// Package pipeline implements the voice command pipeline: a feed loop that
// pumps microphone frames into the recognition engine, a detection loop that
// drives the wake → command → record → process state machine, and a
// processing stage that transcribes finished recordings and applies them.
//
// The three loops run under one errgroup in [Pipeline.Run]. The detection
// loop owns all state; recordings cross to the processing stage through a
// single-slot mailbox guarded by a processing flag, so the real-time audio
// path never waits for transcription.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/larder/internal/observe"
	"github.com/MrWong99/larder/pkg/audio"
	"github.com/MrWong99/larder/pkg/provider/stt"
	"github.com/MrWong99/larder/pkg/recognizer"
	"github.com/MrWong99/larder/pkg/types"
)

var (
	// ErrStopDisabled is returned by StopRecording when early stop is not
	// enabled.
	ErrStopDisabled = errors.New("pipeline: stopping a recording is disabled")

	// ErrNotRecording is returned by StopRecording outside RECORDING.
	ErrNotRecording = errors.New("pipeline: not recording")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("pipeline: already running")
)

// StopAction selects what StopRecording does with the captured audio.
type StopAction int

const (
	// StopCommit hands off whatever was recorded so far.
	StopCommit StopAction = iota

	// StopDiscard drops the recording and returns to idle.
	StopDiscard
)

// ParseStopAction parses "commit" or "discard".
func ParseStopAction(s string) (StopAction, error) {
	switch s {
	case "", "commit":
		return StopCommit, nil
	case "discard":
		return StopDiscard, nil
	default:
		return 0, fmt.Errorf("pipeline: unknown stop action %q", s)
	}
}

const (
	defaultRecordDuration = 3 * time.Second
	defaultProcessTimeout = 30 * time.Second
	defaultActionTimeout  = 5 * time.Second
)

// Option is a functional option for New.
type Option func(*Pipeline)

// WithHooks sets the UI notification hooks. Defaults to [NopHooks].
func WithHooks(h Hooks) Option {
	return func(p *Pipeline) { p.hooks = h }
}

// WithRefresher sets the view refreshed after each processed recording.
func WithRefresher(r Refresher) Option {
	return func(p *Pipeline) { p.refresher = r }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithRecordDuration sets the recording window. The buffer capacity is
// duration × 16 kHz × 2 bytes. Defaults to 3 s.
func WithRecordDuration(d time.Duration) Option {
	return func(p *Pipeline) { p.recordDuration = d }
}

// WithProcessTimeout bounds transcription plus intent application for one
// recording. Defaults to 30 s.
func WithProcessTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.processTimeout = d }
}

// WithActionTimeout bounds immediate actions. Defaults to 5 s.
func WithActionTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.actionTimeout = d }
}

// WithStop enables StopRecording with the given action.
func WithStop(action StopAction) Option {
	return func(p *Pipeline) {
		p.allowStop = true
		p.stopAction = action
	}
}

// WithAllocator replaces the single-region [BufferPool].
func WithAllocator(a Allocator) Option {
	return func(p *Pipeline) { p.alloc = a }
}

// Pipeline wires an audio source and a recognition engine to the command
// vocabulary and the processing collaborators.
type Pipeline struct {
	source      audio.Source
	engine      recognizer.Engine
	transcriber stt.Transcriber
	applier     IntentApplier
	table       *DispatchTable
	hooks       Hooks
	refresher   Refresher
	metrics     *observe.Metrics
	alloc       Allocator

	recordDuration time.Duration
	processTimeout time.Duration
	actionTimeout  time.Duration
	allowStop      bool
	stopAction     StopAction

	state    stateBox
	handoff  *handoff
	tasks    taskRunner
	stopReq  chan struct{}
	started  atomic.Bool
	detect   atomic.Bool
	capacity int

	// Owned by the detection loop.
	session *RecordingSession
}

// New creates a Pipeline. src, engine, tr, applier and table are required.
func New(src audio.Source, engine recognizer.Engine, tr stt.Transcriber, applier IntentApplier, table *DispatchTable, opts ...Option) (*Pipeline, error) {
	switch {
	case src == nil:
		return nil, errors.New("pipeline: audio source must not be nil")
	case engine == nil:
		return nil, errors.New("pipeline: recognition engine must not be nil")
	case tr == nil:
		return nil, errors.New("pipeline: transcriber must not be nil")
	case applier == nil:
		return nil, errors.New("pipeline: intent applier must not be nil")
	case table == nil:
		return nil, errors.New("pipeline: dispatch table must not be nil")
	}

	p := &Pipeline{
		source:         src,
		engine:         engine,
		transcriber:    tr,
		applier:        applier,
		table:          table,
		hooks:          NopHooks{},
		recordDuration: defaultRecordDuration,
		processTimeout: defaultProcessTimeout,
		actionTimeout:  defaultActionTimeout,
		handoff:        newHandoff(),
		stopReq:        make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if p.alloc == nil {
		p.alloc = NewBufferPool(1)
	}

	p.capacity = int(p.recordDuration.Milliseconds()) * types.SpeechFormat.BytesPerSecond() / 1000
	if p.capacity <= 0 {
		return nil, fmt.Errorf("pipeline: recording duration %s yields no capacity", p.recordDuration)
	}
	return p, nil
}

// State returns the current state. Safe for concurrent use.
func (p *Pipeline) State() State { return p.state.load() }

// Capacity returns the recording buffer size in bytes.
func (p *Pipeline) Capacity() int { return p.capacity }

// Detecting reports whether the detection loop is running.
func (p *Pipeline) Detecting() bool { return p.detect.Load() }

// StopRecording asks the detection loop to end the current recording early.
// It returns immediately; the stop takes effect on the next frame.
func (p *Pipeline) StopRecording() error {
	if !p.allowStop {
		return ErrStopDisabled
	}
	if p.State() != StateRecording {
		return ErrNotRecording
	}
	select {
	case p.stopReq <- struct{}{}:
	default:
	}
	return nil
}

// Run starts the feed loop, detection loop and processing stage and blocks
// until ctx is cancelled or one of them fails. A fetch failure is returned
// as the error; the caller decides whether to restart.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	chunk := p.engine.FeedChunkSize()
	if chunk <= 0 {
		chunk = p.source.FrameSize()
	}
	channels := p.source.Channels()
	if chunk <= 0 || channels <= 0 {
		return fmt.Errorf("pipeline: cannot size feed buffer from chunk %d x %d channels", chunk, channels)
	}
	if err := p.engine.EnableWake(); err != nil {
		return fmt.Errorf("pipeline: enable wake detection: %w", err)
	}
	p.state.store(StateIdle)

	slog.Info("pipeline: listening for wake phrase",
		"chunk", chunk,
		"channels", channels,
		"record_bytes", p.capacity,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.feedLoop(gctx, make([]int16, chunk*channels)) })
	g.Go(func() error { return p.detectLoop(gctx) })
	g.Go(func() error { return p.processLoop(gctx) })

	err := g.Wait()
	p.tasks.stop()
	return err
}

// ─── Feed loop ───────────────────────────────────────────────────────────────

func (p *Pipeline) feedLoop(ctx context.Context, buf []int16) error {
	for {
		if err := p.source.Read(ctx, buf); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("pipeline: read audio: %w", err)
		}
		if err := p.engine.Feed(buf); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("pipeline: feed engine: %w", err)
		}
	}
}

// ─── Detection loop ──────────────────────────────────────────────────────────

func (p *Pipeline) detectLoop(ctx context.Context) error {
	p.detect.Store(true)
	defer p.detect.Store(false)
	defer p.abandonSession()

	for {
		if err := p.step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// step runs one detection cycle: fetch, then act according to the state.
func (p *Pipeline) step(ctx context.Context) error {
	res, err := p.engine.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: fetch: %w", err)
	}

	switch p.State() {
	case StateRecording:
		p.record(ctx, res.Audio)
		return nil
	case StateProcessing:
		if !p.handoff.pending() {
			p.resetToIdle(ctx, p.hooks.OnIdleReset)
		}
		return nil
	}

	if p.State() == StateIdle {
		switch res.WakeState {
		case recognizer.WakeDetected:
			if err := p.engine.ResetMatcher(); err != nil {
				slog.Warn("pipeline: reset command matcher", "err", err)
			}
		case recognizer.WakeVerified:
			if err := p.engine.DisableWake(); err != nil {
				slog.Warn("pipeline: disable wake detection", "err", err)
			}
			slog.Info("pipeline: wake phrase verified", "channel", res.TriggerChannel)
			p.transition(ctx, StateAwake)
			p.hooks.OnWakeEnter()
		}
	}

	if p.State() == StateAwake {
		p.listen(ctx, res.Audio)
	}
	return nil
}

// listen runs the command matcher over one frame.
func (p *Pipeline) listen(ctx context.Context, frame []byte) {
	st, err := p.engine.MatchCommand(ctx, frame)
	if err != nil {
		slog.Warn("pipeline: command matcher failed", "err", err)
		return
	}
	switch st {
	case recognizer.CommandDetected:
		res := p.engine.Results()
		top, ok := res.Top()
		if !ok {
			return
		}
		slog.Info("pipeline: command detected",
			"command_id", top.CommandID,
			"phrase_id", top.PhraseID,
			"confidence", top.Confidence,
			"text", res.Text,
		)
		p.dispatch(ctx, Command(top.CommandID))
	case recognizer.CommandTimeout:
		if text := p.engine.Results().Text; text != "" {
			slog.Info("pipeline: command window timed out, discarding", "text", text)
		} else {
			slog.Info("pipeline: command window timed out")
		}
		p.resetToIdle(ctx, p.hooks.OnWakeExit)
	}
}

// dispatch applies the action bound to cmd.
func (p *Pipeline) dispatch(ctx context.Context, cmd Command) {
	act, ok := p.table.Lookup(cmd)
	if !ok {
		slog.Warn("pipeline: ignoring unknown command", "command", int(cmd))
		return
	}
	p.metrics.RecordCommand(ctx, cmd.String())
	ctx = observe.WithCorrelationID(ctx, observe.NewCorrelationID())
	ctx = observe.WithFields(ctx, slog.String("command", cmd.String()))

	switch act.Kind {
	case ActionRecord:
		if err := p.startRecording(ctx, act.Intent); err != nil {
			// The command window keeps running, so a later timeout still
			// returns to idle.
			observe.Logger(ctx).Warn("pipeline: cannot start recording", "intent", act.Intent.String(), "err", err)
		}
	case ActionImmediate:
		p.runImmediate(ctx, cmd, act.Run)
		p.resetToIdle(ctx, p.hooks.OnIdleReset)
	case ActionBackground:
		p.tasks.start(ctx, cmd.String(), act.Run)
		p.resetToIdle(ctx, p.hooks.OnIdleReset)
	}
}

func (p *Pipeline) runImmediate(ctx context.Context, cmd Command, fn ActionFunc) {
	actx, cancel := context.WithTimeout(ctx, p.actionTimeout)
	defer cancel()
	defer func() {
		if v := recover(); v != nil {
			observe.Logger(ctx).Error("pipeline: action panicked", "panic", v)
		}
	}()
	if err := fn(actx); err != nil {
		observe.Logger(ctx).Warn("pipeline: action failed", "err", err)
	}
}

// startRecording allocates a session for intent and enters RECORDING. It
// fails with ErrSessionOutstanding while a session exists or is being
// processed, and with ErrBufferUnavailable when allocation fails; in both
// cases the state is unchanged.
func (p *Pipeline) startRecording(ctx context.Context, intent types.Intent) error {
	if p.session != nil || p.handoff.pending() {
		p.metrics.RecordRecordingRejected(ctx, "outstanding")
		return ErrSessionOutstanding
	}
	buf, err := p.alloc.Acquire(p.capacity)
	if err != nil {
		p.metrics.RecordRecordingRejected(ctx, "buffer")
		if !errors.Is(err, ErrBufferUnavailable) {
			err = fmt.Errorf("%w: %w", ErrBufferUnavailable, err)
		}
		return err
	}
	p.session = newRecordingSession(buf, intent, observe.CorrelationID(ctx))
	select {
	case <-p.stopReq:
	default:
	}
	p.metrics.RecordRecording(ctx, intent.String())
	observe.Logger(ctx).Info("pipeline: recording started", "intent", intent.String(), "bytes", p.capacity)
	p.transition(ctx, StateRecording)
	return nil
}

// record appends one frame to the session and hands it off when full or
// when an early stop was requested.
func (p *Pipeline) record(ctx context.Context, frame []byte) {
	select {
	case <-p.stopReq:
		if p.stopAction == StopDiscard {
			slog.Info("pipeline: recording discarded", "bytes", p.session.Len())
			p.alloc.Release(p.session.buf)
			p.session = nil
			p.resetToIdle(ctx, p.hooks.OnIdleReset)
			return
		}
		slog.Info("pipeline: recording stopped early", "bytes", p.session.Len())
		p.handOff(ctx)
		return
	default:
	}

	if _, err := p.session.Write(frame); err != nil {
		slog.Error("pipeline: write recording", "err", err)
		return
	}
	if p.session.Full() {
		p.handOff(ctx)
	}
}

func (p *Pipeline) handOff(ctx context.Context) {
	s := p.session
	if err := p.handoff.offer(s); err != nil {
		// The outstanding check in startRecording makes this unreachable;
		// keep recording state consistent anyway.
		slog.Error("pipeline: hand-off rejected", "err", err)
		p.alloc.Release(s.buf)
		p.session = nil
		p.resetToIdle(ctx, p.hooks.OnIdleReset)
		return
	}
	p.session = nil
	slog.Info("pipeline: recording handed off",
		"correlation_id", s.CorrelationID(),
		"intent", s.Intent().String(),
		"bytes", s.Len(),
	)
	p.transition(ctx, StateProcessing)
}

// abandonSession releases a recording that never reached hand-off.
func (p *Pipeline) abandonSession() {
	if p.session != nil {
		p.alloc.Release(p.session.buf)
		p.session = nil
	}
}

// resetToIdle re-enables wake detection and enters IDLE. Every path back to
// idle goes through here so the wake detector is re-enabled exactly once.
func (p *Pipeline) resetToIdle(ctx context.Context, hook func()) {
	if err := p.engine.EnableWake(); err != nil {
		slog.Error("pipeline: enable wake detection", "err", err)
	}
	p.transition(ctx, StateIdle)
	hook()
}

func (p *Pipeline) transition(ctx context.Context, to State) {
	from := p.state.store(to)
	if from == to {
		return
	}
	slog.Debug("pipeline: state transition", "from", from.String(), "to", to.String())
	p.metrics.RecordTransition(ctx, from.String(), to.String())
	if o, ok := p.hooks.(StateObserver); ok {
		o.OnStateChange(from, to)
	}
}

// ─── Processing stage ────────────────────────────────────────────────────────

func (p *Pipeline) processLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			// Release a session that was handed off but never picked up.
			select {
			case s := <-p.handoff.ch:
				p.alloc.Release(s.buf)
				p.handoff.done()
			default:
			}
			return nil
		case s := <-p.handoff.ch:
			p.process(ctx, s)
		}
	}
}

// process transcribes s and applies it. Collaborator errors and panics are
// logged and counted; the buffer is always released and the processing flag
// always cleared.
func (p *Pipeline) process(ctx context.Context, s *RecordingSession) {
	start := time.Now()
	defer func() {
		p.alloc.Release(s.buf)
		p.handoff.done()
		p.metrics.ProcessingDuration.Record(ctx, time.Since(start).Seconds())
	}()
	defer func() {
		if v := recover(); v != nil {
			slog.Error("pipeline: processing panicked", "intent", s.Intent().String(), "panic", v)
			p.metrics.RecordCollaboratorError(ctx, "panic")
		}
	}()

	pctx, cancel := context.WithTimeout(ctx, p.processTimeout)
	defer cancel()
	pctx = observe.WithCorrelationID(pctx, s.CorrelationID())
	pctx = observe.WithFields(pctx, slog.String("intent", s.Intent().String()))
	pctx, span := observe.StartSpan(pctx, "pipeline.process")
	defer span.End()
	log := observe.Logger(pctx)

	t0 := time.Now()
	text, err := p.transcriber.Transcribe(pctx, s.Bytes())
	p.metrics.STTDuration.Record(pctx, time.Since(t0).Seconds())
	if err != nil {
		log.Error("pipeline: transcription failed", "err", err)
		p.metrics.RecordCollaboratorError(pctx, "transcribe")
		return
	}
	log.Info("pipeline: transcribed recording", "text", text, "bytes", s.Len())

	if err := p.applier.ApplyIntent(pctx, text, s.Intent()); err != nil {
		log.Error("pipeline: apply intent failed", "err", err)
		p.metrics.RecordCollaboratorError(pctx, "apply")
	}
	if p.refresher != nil {
		if err := p.refresher.Refresh(pctx); err != nil {
			log.Warn("pipeline: refresh view failed", "err", err)
			p.metrics.RecordCollaboratorError(pctx, "refresh")
		}
	}
}
