package spotter

import "github.com/MrWong99/larder/pkg/audio"

// segmenter groups mono frames into utterances with an energy gate. A frame
// whose RMS is at or above threshold counts as speech; an utterance ends
// after silenceSamples of trailing silence or when it reaches maxSamples.
// Leading silence is never buffered.
type segmenter struct {
	threshold      float64
	silenceSamples int
	maxSamples     int

	buf       []int16
	hadSpeech bool
	silence   int
}

func newSegmenter(threshold float64, silenceSamples, maxSamples int) *segmenter {
	return &segmenter{
		threshold:      threshold,
		silenceSamples: silenceSamples,
		maxSamples:     maxSamples,
		buf:            make([]int16, 0, maxSamples),
	}
}

// push adds one frame and returns a completed utterance, if any. The returned
// slice is a copy owned by the caller.
func (s *segmenter) push(frame []int16) ([]int16, bool) {
	if audio.RMS(frame) < s.threshold {
		if !s.hadSpeech {
			return nil, false
		}
		s.silence += len(frame)
		s.append(frame)
		if s.silence >= s.silenceSamples || len(s.buf) >= s.maxSamples {
			return s.flush()
		}
		return nil, false
	}

	s.hadSpeech = true
	s.silence = 0
	s.append(frame)
	if len(s.buf) >= s.maxSamples {
		return s.flush()
	}
	return nil, false
}

// append copies as much of frame as the bound allows.
func (s *segmenter) append(frame []int16) {
	room := s.maxSamples - len(s.buf)
	if room <= 0 {
		return
	}
	if len(frame) > room {
		frame = frame[:room]
	}
	s.buf = append(s.buf, frame...)
}

func (s *segmenter) flush() ([]int16, bool) {
	utt := append([]int16(nil), s.buf...)
	s.reset()
	return utt, len(utt) > 0
}

func (s *segmenter) reset() {
	s.buf = s.buf[:0]
	s.hadSpeech = false
	s.silence = 0
}
