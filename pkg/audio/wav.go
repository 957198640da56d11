package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

// wavFormatPCM is the WAVE format tag for integer PCM.
const wavFormatPCM = 1

// EncodeWAV wraps 16-bit PCM in a RIFF/WAVE container. The encoder needs a
// seekable writer to patch chunk sizes, so the file is assembled in memory.
func EncodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("audio: encode wav: invalid format %d Hz / %d ch", sampleRate, channels)
	}

	f, err := afero.NewMemMapFs().Create("speech.wav")
	if err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	defer f.Close()

	samples := BytesToSamples(pcm)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, channels, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("audio: encode wav: write: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: encode wav: close: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("audio: encode wav: rewind: %w", err)
	}
	out, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("audio: encode wav: read back: %w", err)
	}
	return out, nil
}

// ── WAV replay source ─────────────────────────────────────────────────────────

// WAVSource replays a 16-bit WAV file as a capture device. It is used for
// demos and for reproducing field recordings. Read paces nothing; it returns
// as fast as the decoder can deliver. Once the file is exhausted Read returns
// io.EOF, or loops back to the start when Loop is set.
type WAVSource struct {
	mu        sync.Mutex
	r         io.ReadSeeker
	dec       *wav.Decoder
	channels  int
	rate      int
	frameSize int
	loop      bool
	closed    bool
	scratch   *goaudio.IntBuffer
}

var _ Source = (*WAVSource)(nil)

// WAVOption configures a [WAVSource].
type WAVOption func(*WAVSource)

// WithLoop makes the source restart from the beginning at end of file.
func WithLoop(loop bool) WAVOption {
	return func(s *WAVSource) { s.loop = loop }
}

// WithWAVFrameSize overrides the reported frame size (samples per channel).
func WithWAVFrameSize(n int) WAVOption {
	return func(s *WAVSource) {
		if n > 0 {
			s.frameSize = n
		}
	}
}

// NewWAVSource validates r as a 16-bit PCM WAV file.
func NewWAVSource(r io.ReadSeeker, opts ...WAVOption) (*WAVSource, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("audio: wav source: not a valid wav file")
	}
	dec.ReadInfo()
	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("audio: wav source: unsupported bit depth %d", dec.BitDepth)
	}

	s := &WAVSource{
		r:         r,
		dec:       dec,
		channels:  int(dec.NumChans),
		rate:      int(dec.SampleRate),
		frameSize: 512,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Channels implements [Source].
func (s *WAVSource) Channels() int { return s.channels }

// FrameSize implements [Source].
func (s *WAVSource) FrameSize() int { return s.frameSize }

// SampleRate implements [Source].
func (s *WAVSource) SampleRate() int { return s.rate }

// Read implements [Source]. A short final chunk is zero padded.
func (s *WAVSource) Read(ctx context.Context, buf []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.scratch == nil || len(s.scratch.Data) != len(buf) {
		s.scratch = &goaudio.IntBuffer{Data: make([]int, len(buf))}
	}

	filled := 0
	for filled < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.dec.PCMBuffer(s.scratch)
		if err != nil {
			return fmt.Errorf("audio: wav source: %w", err)
		}
		if n == 0 {
			if !s.loop {
				if filled == 0 {
					return io.EOF
				}
				clear(buf[filled:])
				return nil
			}
			if err := s.rewind(); err != nil {
				return err
			}
			continue
		}
		// PCMBuffer always reads len(scratch.Data) samples, so at most one
		// call is needed unless the file ends mid-buffer.
		n = min(n, len(buf)-filled)
		for i := range n {
			buf[filled+i] = int16(s.scratch.Data[i])
		}
		filled += n
		if filled < len(buf) {
			s.scratch.Data = s.scratch.Data[:len(buf)-filled]
		}
	}
	s.scratch.Data = s.scratch.Data[:cap(s.scratch.Data)]
	return nil
}

func (s *WAVSource) rewind() error {
	if _, err := s.r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("audio: wav source: rewind: %w", err)
	}
	s.dec = wav.NewDecoder(s.r)
	if !s.dec.IsValidFile() {
		return errors.New("audio: wav source: rewind: file no longer valid")
	}
	s.dec.ReadInfo()
	return nil
}

// Close implements [Source]. If the underlying reader is an io.Closer it is
// closed too.
func (s *WAVSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
