package pipeline

import (
	"fmt"
	"sync/atomic"
)

// State is the pipeline's position in the wake → command → record → process
// cycle. It is mutated only by the detection loop and published atomically
// for observers.
type State int32

const (
	// StateIdle waits for the wake phrase. Wake detection is enabled.
	StateIdle State = iota

	// StateAwake listens for a command. Wake detection is disabled.
	StateAwake

	// StateRecording captures audio into the recording buffer.
	StateRecording

	// StateProcessing waits for the processing stage to finish with the
	// handed-off recording. Recognition output is drained without matching.
	StateProcessing
)

// String returns a short name for logs and metrics.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwake:
		return "awake"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// stateBox publishes the current state to concurrent readers.
type stateBox struct {
	v atomic.Int32
}

func (b *stateBox) load() State { return State(b.v.Load()) }

func (b *stateBox) store(s State) State { return State(b.v.Swap(int32(s))) }
