// Package mock provides a scripted [recognizer.Engine] for tests.
//
// Tests push Steps; every Fetch pops one. MatchCommand answers with the
// command state scripted on the most recently fetched step, and Results
// returns that step's result. When the script is empty Fetch blocks until a
// step is pushed or ctx is cancelled.
//
// Example:
//
//	e := mock.New(256)
//	e.Push(mock.Step{Result: recognizer.DetectionResult{WakeState: recognizer.WakeVerified}})
//	e.Push(mock.Command(2, 0.9))
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/larder/pkg/recognizer"
)

// Step scripts one Fetch and the matcher's answer for that frame.
type Step struct {
	// Result is returned by Fetch.
	Result recognizer.DetectionResult

	// FetchErr, if non-nil, is returned by Fetch instead of Result.
	FetchErr error

	// Command is returned by MatchCommand for this frame.
	Command recognizer.CommandState

	// Results is returned by Results after this frame.
	Results recognizer.CommandResult
}

// Command returns a step whose frame yields a detected command.
func Command(id int, confidence float64) Step {
	return Step{
		Result:  recognizer.DetectionResult{Audio: make([]byte, 64)},
		Command: recognizer.CommandDetected,
		Results: recognizer.CommandResult{
			Candidates: []recognizer.Candidate{{CommandID: id, Confidence: confidence}},
		},
	}
}

// Audio returns a step carrying a frame of n bytes with no wake or command.
func Audio(n int) Step {
	return Step{Result: recognizer.DetectionResult{Audio: make([]byte, n)}}
}

// Engine is a scripted [recognizer.Engine]. Safe for concurrent use.
type Engine struct {
	mu      sync.Mutex
	chunk   int
	steps   chan Step
	current Step
	wake    bool

	// FeedErr is returned by Feed.
	FeedErr error

	// EnableErr is returned by EnableWake.
	EnableErr error

	// MatchErr is returned by MatchCommand.
	MatchErr error

	// FeedCalls counts Feed invocations; FedSamples sums their lengths.
	FeedCalls  int
	FedSamples int

	// FetchCalls counts successful Fetch invocations.
	FetchCalls int

	// EnableCalls and DisableCalls count wake toggles.
	EnableCalls  int
	DisableCalls int

	// MatchCalls counts MatchCommand invocations.
	MatchCalls int

	// ResetCalls counts ResetMatcher invocations.
	ResetCalls int
}

var _ recognizer.Engine = (*Engine)(nil)

// New returns an engine with wake detection enabled and room for 1024
// scripted steps.
func New(chunkSize int) *Engine {
	return &Engine{chunk: chunkSize, steps: make(chan Step, 1024), wake: true}
}

// Push appends steps to the script.
func (e *Engine) Push(steps ...Step) {
	for _, s := range steps {
		e.steps <- s
	}
}

// Pending returns the number of scripted steps not yet fetched.
func (e *Engine) Pending() int {
	return len(e.steps)
}

// WakeEnabled reports whether wake detection is currently on.
func (e *Engine) WakeEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wake
}

// Snapshot returns a copy of the call counters.
func (e *Engine) Snapshot() Counts {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Counts{
		Feed:    e.FeedCalls,
		Fetch:   e.FetchCalls,
		Enable:  e.EnableCalls,
		Disable: e.DisableCalls,
		Match:   e.MatchCalls,
		Reset:   e.ResetCalls,
	}
}

// Counts is a point-in-time copy of the engine's call counters.
type Counts struct {
	Feed, Fetch, Enable, Disable, Match, Reset int
}

// FeedChunkSize implements [recognizer.Engine].
func (e *Engine) FeedChunkSize() int { return e.chunk }

// Feed implements [recognizer.Engine].
func (e *Engine) Feed(samples []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.FeedCalls++
	e.FedSamples += len(samples)
	return e.FeedErr
}

// Fetch implements [recognizer.Engine].
func (e *Engine) Fetch(ctx context.Context) (recognizer.DetectionResult, error) {
	select {
	case <-ctx.Done():
		return recognizer.DetectionResult{}, ctx.Err()
	case s := <-e.steps:
		if s.FetchErr != nil {
			return recognizer.DetectionResult{}, s.FetchErr
		}
		e.mu.Lock()
		e.FetchCalls++
		e.current = s
		e.mu.Unlock()
		return s.Result, nil
	}
}

// EnableWake implements [recognizer.Engine].
func (e *Engine) EnableWake() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.EnableCalls++
	if e.EnableErr != nil {
		return e.EnableErr
	}
	e.wake = true
	return nil
}

// DisableWake implements [recognizer.Engine].
func (e *Engine) DisableWake() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.DisableCalls++
	e.wake = false
	return nil
}

// MatchCommand implements [recognizer.Engine].
func (e *Engine) MatchCommand(_ context.Context, _ []byte) (recognizer.CommandState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.MatchCalls++
	if e.MatchErr != nil {
		return recognizer.CommandDetecting, e.MatchErr
	}
	return e.current.Command, nil
}

// Results implements [recognizer.Engine].
func (e *Engine) Results() recognizer.CommandResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Results
}

// ResetMatcher implements [recognizer.Engine].
func (e *Engine) ResetMatcher() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ResetCalls++
	return nil
}
