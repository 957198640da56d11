// Package spotter is a pure-Go [recognizer.Engine] built on a batch
// [stt.Transcriber].
//
// Captured frames are reduced to their first channel and queued in a bounded
// ring. Each Fetch pops one frame. An energy gate groups frames into
// utterances; finished utterances are transcribed and scored against the
// wake phrase (while wake detection is on) or the command vocabulary (inside
// MatchCommand) with Jaro-Winkler similarity.
//
// Usage:
//
//	e, err := spotter.New(transcriber,
//	    spotter.WithWakePhrases("ni hao xiao zhi", "你好小智"),
//	    spotter.WithCommands(spotter.Phrase{CommandID: 2, Text: "fang ru"}),
//	)
package spotter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/larder/pkg/audio"
	"github.com/MrWong99/larder/pkg/provider/stt"
	"github.com/MrWong99/larder/pkg/recognizer"
)

// Phrase is one spoken variant of a command.
type Phrase struct {
	CommandID int
	Text      string
}

const (
	defaultSampleRate       = 16000
	defaultChunkSize        = 512
	defaultQueueFrames      = 64
	defaultRMSThreshold     = 0.02
	defaultSilence          = 500 * time.Millisecond
	defaultMaxUtterance     = 4 * time.Second
	defaultCommandTimeout   = 6 * time.Second
	defaultWakeThreshold    = 0.85
	defaultCommandThreshold = 0.80
	defaultTranscribeWait   = 10 * time.Second
)

type config struct {
	sampleRate       int
	channels         int
	chunkSize        int
	queueFrames      int
	rmsThreshold     float64
	silence          time.Duration
	maxUtterance     time.Duration
	commandTimeout   time.Duration
	wakeThreshold    float64
	commandThreshold float64
	transcribeWait   time.Duration
	wakePhrases      []string
	commands         []Phrase
}

// Option is a functional option for New.
type Option func(*config)

// WithFormat sets the capture sample rate and interleaved channel count.
// Defaults to 16000 Hz mono.
func WithFormat(sampleRate, channels int) Option {
	return func(c *config) {
		c.sampleRate = sampleRate
		c.channels = channels
	}
}

// WithChunkSize sets the number of samples per channel Feed expects.
func WithChunkSize(n int) Option {
	return func(c *config) { c.chunkSize = n }
}

// WithQueueFrames bounds the feed queue. When full, the oldest frame is
// dropped.
func WithQueueFrames(n int) Option {
	return func(c *config) { c.queueFrames = n }
}

// WithEnergyGate sets the RMS level (0..1) that counts as speech and the
// trailing silence that ends an utterance.
func WithEnergyGate(rms float64, silence time.Duration) Option {
	return func(c *config) {
		c.rmsThreshold = rms
		c.silence = silence
	}
}

// WithMaxUtterance caps the audio kept for a single utterance.
func WithMaxUtterance(d time.Duration) Option {
	return func(c *config) { c.maxUtterance = d }
}

// WithCommandTimeout sets the command listening window, measured in audio
// time consumed by MatchCommand. Defaults to 6 s.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *config) { c.commandTimeout = d }
}

// WithThresholds sets the minimum similarity for wake and command matches.
func WithThresholds(wake, command float64) Option {
	return func(c *config) {
		c.wakeThreshold = wake
		c.commandThreshold = command
	}
}

// WithTranscribeTimeout bounds every transcription call.
func WithTranscribeTimeout(d time.Duration) Option {
	return func(c *config) { c.transcribeWait = d }
}

// WithWakePhrases sets the accepted wake phrase variants.
func WithWakePhrases(phrases ...string) Option {
	return func(c *config) { c.wakePhrases = phrases }
}

// WithCommands sets the command vocabulary. A PhraseID reported in results
// is the index of the matching entry.
func WithCommands(phrases ...Phrase) Option {
	return func(c *config) { c.commands = phrases }
}

// Engine implements [recognizer.Engine].
type Engine struct {
	cfg config
	tr  stt.Transcriber

	// Feed side.
	mu      sync.Mutex
	queue   [][]int16
	ready   chan struct{}
	closed  bool
	dropped atomic.Int64

	// Fetch side; only touched by the goroutine calling Fetch.
	wakeOn       bool
	wakePending  bool
	wakeSeg      *segmenter
	cmdSeg       *segmenter
	cmdElapsed   int
	timeoutAfter int
	partial      string
	results      recognizer.CommandResult
	frameBytes   []byte
}

var _ recognizer.Engine = (*Engine)(nil)

// New creates an Engine that transcribes utterances with tr.
func New(tr stt.Transcriber, opts ...Option) (*Engine, error) {
	if tr == nil {
		return nil, errors.New("spotter: transcriber must not be nil")
	}
	cfg := config{
		sampleRate:       defaultSampleRate,
		channels:         1,
		chunkSize:        defaultChunkSize,
		queueFrames:      defaultQueueFrames,
		rmsThreshold:     defaultRMSThreshold,
		silence:          defaultSilence,
		maxUtterance:     defaultMaxUtterance,
		commandTimeout:   defaultCommandTimeout,
		wakeThreshold:    defaultWakeThreshold,
		commandThreshold: defaultCommandThreshold,
		transcribeWait:   defaultTranscribeWait,
	}
	for _, o := range opts {
		o(&cfg)
	}
	switch {
	case cfg.sampleRate <= 0 || cfg.channels <= 0:
		return nil, fmt.Errorf("spotter: invalid format %d Hz x %d", cfg.sampleRate, cfg.channels)
	case cfg.chunkSize <= 0:
		return nil, fmt.Errorf("spotter: chunk size must be positive, got %d", cfg.chunkSize)
	case cfg.queueFrames <= 0:
		return nil, fmt.Errorf("spotter: queue must hold at least one frame, got %d", cfg.queueFrames)
	case len(cfg.wakePhrases) == 0:
		return nil, errors.New("spotter: at least one wake phrase is required")
	case len(cfg.commands) == 0:
		return nil, errors.New("spotter: at least one command phrase is required")
	}

	// Frames are resampled to 16 kHz before segmentation.
	perMs := defaultSampleRate / 1000
	silence := int(cfg.silence.Milliseconds()) * perMs
	maxUtt := int(cfg.maxUtterance.Milliseconds()) * perMs
	if maxUtt < cfg.chunkSize {
		maxUtt = cfg.chunkSize
	}

	return &Engine{
		cfg:          cfg,
		tr:           tr,
		queue:        make([][]int16, 0, cfg.queueFrames),
		ready:        make(chan struct{}, 1),
		wakeOn:       true,
		wakeSeg:      newSegmenter(cfg.rmsThreshold, silence, maxUtt),
		cmdSeg:       newSegmenter(cfg.rmsThreshold, silence, maxUtt),
		timeoutAfter: int(cfg.commandTimeout.Milliseconds()) * perMs,
	}, nil
}

// FeedChunkSize implements [recognizer.Engine].
func (e *Engine) FeedChunkSize() int { return e.cfg.chunkSize }

// Dropped returns how many frames were discarded because the queue was full.
func (e *Engine) Dropped() int64 { return e.dropped.Load() }

// Feed implements [recognizer.Engine]. It copies channel 0 of samples into
// the queue and never waits for Fetch.
func (e *Engine) Feed(samples []int16) error {
	frame := audio.ExtractChannel(samples, e.cfg.channels, 0)
	if e.cfg.sampleRate != defaultSampleRate {
		frame = audio.ResampleMono16(frame, e.cfg.sampleRate, defaultSampleRate)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return recognizer.ErrClosed
	}
	if len(e.queue) == e.cfg.queueFrames {
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.dropped.Add(1)
	}
	e.queue = append(e.queue, frame)
	e.mu.Unlock()

	select {
	case e.ready <- struct{}{}:
	default:
	}
	return nil
}

// Fetch implements [recognizer.Engine].
func (e *Engine) Fetch(ctx context.Context) (recognizer.DetectionResult, error) {
	frame, err := e.next(ctx)
	if err != nil {
		return recognizer.DetectionResult{}, err
	}

	e.frameBytes = append(e.frameBytes[:0], audio.SamplesToBytes(frame)...)
	res := recognizer.DetectionResult{Audio: e.frameBytes}

	if !e.wakeOn {
		return res, nil
	}
	if e.wakePending {
		e.wakePending = false
		res.WakeState = recognizer.WakeVerified
		return res, nil
	}
	utt, ok := e.wakeSeg.push(frame)
	if !ok {
		return res, nil
	}
	text, err := e.transcribe(ctx, utt)
	if err != nil {
		slog.Warn("spotter: wake transcription failed", "err", err)
		return res, nil
	}
	best := 0.0
	for _, p := range e.cfg.wakePhrases {
		best = max(best, score(text, p))
	}
	if best >= e.cfg.wakeThreshold {
		slog.Debug("spotter: wake phrase heard", "text", text, "score", best)
		e.wakePending = true
		res.WakeState = recognizer.WakeDetected
	}
	return res, nil
}

// next pops the oldest queued frame, waiting until one arrives.
func (e *Engine) next(ctx context.Context) ([]int16, error) {
	for {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return nil, recognizer.ErrClosed
		}
		if len(e.queue) > 0 {
			frame := e.queue[0]
			e.queue[0] = nil
			e.queue = e.queue[1:]
			e.mu.Unlock()
			return frame, nil
		}
		e.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-e.ready:
		}
	}
}

// EnableWake implements [recognizer.Engine].
func (e *Engine) EnableWake() error {
	e.wakeOn = true
	e.wakePending = false
	e.wakeSeg.reset()
	return nil
}

// DisableWake implements [recognizer.Engine].
func (e *Engine) DisableWake() error {
	e.wakeOn = false
	e.wakePending = false
	e.wakeSeg.reset()
	return nil
}

// MatchCommand implements [recognizer.Engine].
func (e *Engine) MatchCommand(ctx context.Context, pcm []byte) (recognizer.CommandState, error) {
	frame := audio.BytesToSamples(pcm)
	e.cmdElapsed += len(frame)

	if utt, ok := e.cmdSeg.push(frame); ok {
		text, err := e.transcribe(ctx, utt)
		if err != nil {
			return recognizer.CommandDetecting, fmt.Errorf("spotter: transcribe command: %w", err)
		}
		if cands := e.rank(text); len(cands) > 0 {
			e.results = recognizer.CommandResult{Candidates: cands, Text: text}
			return recognizer.CommandDetected, nil
		}
		if text != "" {
			e.partial = text
		}
	}

	if e.cmdElapsed >= e.timeoutAfter {
		e.results = recognizer.CommandResult{Text: e.partial}
		return recognizer.CommandTimeout, nil
	}
	return recognizer.CommandDetecting, nil
}

// rank scores text against every command phrase and returns the matches at
// or above threshold, best first, one per command.
func (e *Engine) rank(text string) []recognizer.Candidate {
	best := map[int]recognizer.Candidate{}
	for i, p := range e.cfg.commands {
		s := score(text, p.Text)
		if s < e.cfg.commandThreshold {
			continue
		}
		if cur, ok := best[p.CommandID]; !ok || s > cur.Confidence {
			best[p.CommandID] = recognizer.Candidate{CommandID: p.CommandID, PhraseID: i, Confidence: s}
		}
	}
	out := make([]recognizer.Candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b recognizer.Candidate) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		default:
			return a.CommandID - b.CommandID
		}
	})
	return out
}

// Results implements [recognizer.Engine].
func (e *Engine) Results() recognizer.CommandResult { return e.results }

// ResetMatcher implements [recognizer.Engine].
func (e *Engine) ResetMatcher() error {
	e.cmdSeg.reset()
	e.cmdElapsed = 0
	e.partial = ""
	e.results = recognizer.CommandResult{}
	return nil
}

// Close stops the engine. Pending and future Feed/Fetch calls return
// recognizer.ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.queue = nil
	e.mu.Unlock()
	select {
	case e.ready <- struct{}{}:
	default:
	}
	return nil
}

func (e *Engine) transcribe(ctx context.Context, utt []int16) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.transcribeWait)
	defer cancel()
	return e.tr.Transcribe(ctx, audio.SamplesToBytes(utt))
}
