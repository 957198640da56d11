// Package recognizer defines the contract between the voice pipeline and a
// wake-word / command recognition engine.
//
// An Engine is fed raw capture frames by one goroutine and polled for
// results by another. Internally it owns a bounded queue between the two, a
// wake-word detector that can be switched on and off, and a command matcher
// with its own listening window. The pipeline only sequences calls; it never
// looks inside.
package recognizer

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned by Feed and Fetch once the engine has been closed.
var ErrClosed = errors.New("recognizer: engine closed")

// WakeState reports the wake-word detector's verdict for one fetched frame.
type WakeState int

const (
	// WakeNone means no wake phrase was heard in this frame.
	WakeNone WakeState = iota

	// WakeDetected means a wake phrase candidate was heard but not yet
	// confirmed. The pipeline primes the command matcher.
	WakeDetected

	// WakeVerified means the wake phrase was confirmed on TriggerChannel.
	WakeVerified
)

// String returns a short name for logs.
func (w WakeState) String() string {
	switch w {
	case WakeNone:
		return "none"
	case WakeDetected:
		return "detected"
	case WakeVerified:
		return "verified"
	default:
		return fmt.Sprintf("wake(%d)", int(w))
	}
}

// DetectionResult is produced by every Fetch.
type DetectionResult struct {
	// WakeState is the detector's verdict for this frame.
	WakeState WakeState

	// Audio is the processed mono frame as little-endian int16 PCM. It is
	// owned by the engine and only valid until the next Fetch; callers that
	// need the bytes later must copy them.
	Audio []byte

	// TriggerChannel is the input channel that carried the wake phrase.
	// Only meaningful when WakeState is WakeVerified.
	TriggerChannel int
}

// CommandState is the command matcher's status after consuming a frame.
type CommandState int

const (
	// CommandDetecting means the matcher needs more audio.
	CommandDetecting CommandState = iota

	// CommandDetected means a command was recognised; see Engine.Results.
	CommandDetected

	// CommandTimeout means the listening window elapsed without a command.
	CommandTimeout
)

// String returns a short name for logs.
func (c CommandState) String() string {
	switch c {
	case CommandDetecting:
		return "detecting"
	case CommandDetected:
		return "detected"
	case CommandTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// Candidate is one ranked hypothesis of the command matcher.
type Candidate struct {
	// CommandID identifies the command. IDs are assigned by the vocabulary.
	CommandID int

	// PhraseID identifies which phrase variant of the command matched.
	PhraseID int

	// Confidence is in [0, 1].
	Confidence float64
}

// CommandResult holds the matcher's output after CommandDetected or
// CommandTimeout.
type CommandResult struct {
	// Candidates are ranked by Confidence, highest first.
	Candidates []Candidate

	// Text is what the matcher heard. On timeout this is the partial text
	// that failed to match and must be discarded.
	Text string
}

// Top returns the highest-ranked candidate.
func (r CommandResult) Top() (Candidate, bool) {
	if len(r.Candidates) == 0 {
		return Candidate{}, false
	}
	return r.Candidates[0], true
}

// Engine is a stateful wake-word and command recognition engine.
//
// Feed and Fetch are called from different goroutines and must be safe to
// run concurrently with each other. All other methods are only called from
// the goroutine that calls Fetch.
type Engine interface {
	// FeedChunkSize returns the number of samples per channel Feed expects.
	FeedChunkSize() int

	// Feed queues one chunk of interleaved capture samples. It must not
	// block on recognition work.
	Feed(samples []int16) error

	// Fetch blocks until the next processed frame is available.
	Fetch(ctx context.Context) (DetectionResult, error)

	// EnableWake turns the wake-word detector on.
	EnableWake() error

	// DisableWake turns the wake-word detector off.
	DisableWake() error

	// MatchCommand runs the command matcher over one processed frame.
	// Cancelling ctx aborts any recognition work the frame triggers.
	MatchCommand(ctx context.Context, audio []byte) (CommandState, error)

	// Results returns the matcher output for the last detected or timed-out
	// command window.
	Results() CommandResult

	// ResetMatcher clears the matcher and restarts its listening window.
	ResetMatcher() error
}
