// Package types defines the small set of values shared across larder packages.
//
// Domain packages own their own types. Only data that crosses the pipeline,
// the intent applier and the UI lives here, to keep the import graph acyclic.
package types

import "fmt"

// Intent is the purpose of a voice recording. It is fixed when the recording
// command is matched and travels with the captured audio to the processing
// stage.
type Intent int

const (
	// IntentGenericTest records an utterance only to exercise transcription.
	IntentGenericTest Intent = iota + 1

	// IntentAddItem records a description of items being put away.
	IntentAddItem

	// IntentRemoveItem records a description of items being taken out.
	IntentRemoveItem
)

// String returns the wire name of the intent.
func (i Intent) String() string {
	switch i {
	case IntentGenericTest:
		return "generic_test"
	case IntentAddItem:
		return "add_item"
	case IntentRemoveItem:
		return "remove_item"
	default:
		return fmt.Sprintf("intent(%d)", int(i))
	}
}

// IsValid reports whether i is a known intent.
func (i Intent) IsValid() bool {
	return i >= IntentGenericTest && i <= IntentRemoveItem
}

// PCMFormat describes raw little-endian signed 16-bit PCM.
type PCMFormat struct {
	// SampleRate in Hz. The recognizer and all transcription backends expect 16000.
	SampleRate int

	// Channels is the number of interleaved channels.
	Channels int
}

// BytesPerSecond returns the byte rate of the format.
func (f PCMFormat) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// SpeechFormat is the mono 16 kHz format used for recording and transcription.
var SpeechFormat = PCMFormat{SampleRate: 16000, Channels: 1}
