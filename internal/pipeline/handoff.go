package pipeline

import (
	"errors"
	"sync/atomic"
)

// ErrHandoffPending is returned when a recording is offered while the
// previous one has not been processed yet.
var ErrHandoffPending = errors.New("pipeline: hand-off pending")

// handoff is a single-slot mailbox from the detection loop to the processing
// stage. busy is set by offer and cleared by the processing stage when it is
// done; while it is set no new session can be offered.
type handoff struct {
	ch   chan *RecordingSession
	busy atomic.Bool
}

func newHandoff() *handoff {
	return &handoff{ch: make(chan *RecordingSession, 1)}
}

// offer seals s and places it in the mailbox.
func (h *handoff) offer(s *RecordingSession) error {
	if !h.busy.CompareAndSwap(false, true) {
		return ErrHandoffPending
	}
	s.seal()
	select {
	case h.ch <- s:
		return nil
	default:
		h.busy.Store(false)
		return ErrHandoffPending
	}
}

// done clears the processing flag.
func (h *handoff) done() { h.busy.Store(false) }

// pending reports whether a session is queued or being processed.
func (h *handoff) pending() bool { return h.busy.Load() }
