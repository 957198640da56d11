// Package portaudio adapts PortAudio blocking streams to the [audio.Source]
// and [audio.Sink] interfaces.
//
// Both types call portaudio.Initialize on construction and
// portaudio.Terminate on Close; PortAudio reference-counts these calls so a
// capture device and a player can coexist.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/larder/pkg/audio"
)

// ─── Capture ──────────────────────────────────────────────────────────────────

// Capture reads interleaved 16-bit samples from the default input device.
type Capture struct {
	mu        sync.Mutex
	stream    *pa.Stream
	period    []int16
	pending   []int16
	channels  int
	frameSize int
	rate      int
	closed    bool
}

var _ audio.Source = (*Capture)(nil)

// OpenCapture opens and starts the default input device. frameSize is the
// PortAudio buffer period in samples per channel.
func OpenCapture(sampleRate, channels, frameSize int) (*Capture, error) {
	if sampleRate <= 0 || channels <= 0 || frameSize <= 0 {
		return nil, fmt.Errorf("portaudio: invalid capture format rate=%d channels=%d frame=%d", sampleRate, channels, frameSize)
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}

	c := &Capture{
		period:    make([]int16, frameSize*channels),
		channels:  channels,
		frameSize: frameSize,
		rate:      sampleRate,
	}
	stream, err := pa.OpenDefaultStream(channels, 0, float64(sampleRate), frameSize, c.period)
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: start input stream: %w", err)
	}
	c.stream = stream
	return c, nil
}

// Channels implements [audio.Source].
func (c *Capture) Channels() int { return c.channels }

// FrameSize implements [audio.Source].
func (c *Capture) FrameSize() int { return c.frameSize }

// SampleRate implements [audio.Source].
func (c *Capture) SampleRate() int { return c.rate }

// Read implements [audio.Source]. Input overflows are reported as
// [audio.ErrTransient] so a [audio.RetrySource] can absorb them.
func (c *Capture) Read(ctx context.Context, buf []int16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	filled := copy(buf, c.pending)
	c.pending = c.pending[filled:]
	for filled < len(buf) {
		if c.closed {
			return audio.ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.stream.Read(); err != nil {
			if errors.Is(err, pa.InputOverflowed) {
				return fmt.Errorf("portaudio: %w: %w", audio.ErrTransient, err)
			}
			return fmt.Errorf("portaudio: read: %w", err)
		}
		n := copy(buf[filled:], c.period)
		filled += n
		if n < len(c.period) {
			c.pending = append(c.pending[:0], c.period[n:]...)
		}
	}
	return nil
}

// Close stops the stream and releases PortAudio.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	err := errors.Join(c.stream.Stop(), c.stream.Close())
	return errors.Join(err, pa.Terminate())
}

// ─── Player ───────────────────────────────────────────────────────────────────

// Player writes mono 16-bit PCM to the default output device.
type Player struct {
	mu     sync.Mutex
	stream *pa.Stream
	period []int16
	rate   int
	closed bool
}

var _ audio.Sink = (*Player)(nil)

// OpenPlayer opens and starts the default output device in mono.
func OpenPlayer(sampleRate, frameSize int) (*Player, error) {
	if sampleRate <= 0 || frameSize <= 0 {
		return nil, fmt.Errorf("portaudio: invalid playback format rate=%d frame=%d", sampleRate, frameSize)
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}

	p := &Player{period: make([]int16, frameSize), rate: sampleRate}
	stream, err := pa.OpenDefaultStream(0, 1, float64(sampleRate), frameSize, p.period)
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: start output stream: %w", err)
	}
	p.stream = stream
	return p, nil
}

// SampleRate implements [audio.Sink].
func (p *Player) SampleRate() int { return p.rate }

// Play implements [audio.Sink]. The final period is padded with silence.
func (p *Player) Play(ctx context.Context, pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	samples := audio.BytesToSamples(pcm)
	for len(samples) > 0 {
		if p.closed {
			return audio.ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(p.period, samples)
		clear(p.period[n:])
		samples = samples[n:]
		if err := p.stream.Write(); err != nil && !errors.Is(err, pa.OutputUnderflowed) {
			return fmt.Errorf("portaudio: write: %w", err)
		}
	}
	return nil
}

// Close stops the stream and releases PortAudio.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	err := errors.Join(p.stream.Stop(), p.stream.Close())
	return errors.Join(err, pa.Terminate())
}
