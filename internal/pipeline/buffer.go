package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/larder/pkg/types"
)

var (
	// ErrSessionOutstanding is returned when a recording is requested while
	// another session is still recording or being processed.
	ErrSessionOutstanding = errors.New("pipeline: recording session outstanding")

	// ErrBufferUnavailable is returned when no recording buffer can be
	// allocated. The pipeline stays awake and keeps listening.
	ErrBufferUnavailable = errors.New("pipeline: recording buffer unavailable")

	// ErrSessionSealed is returned by writes to a session after hand-off.
	ErrSessionSealed = errors.New("pipeline: recording session sealed")
)

// Allocator hands out fixed-size recording buffers.
type Allocator interface {
	// Acquire returns a buffer of exactly size bytes or ErrBufferUnavailable.
	Acquire(size int) ([]byte, error)

	// Release returns a buffer obtained from Acquire.
	Release(buf []byte)
}

// BufferPool is a bounded [Allocator] with a fixed number of regions. Regions
// are allocated on first use and reused afterwards.
type BufferPool struct {
	mu      sync.Mutex
	free    [][]byte
	inUse   int
	regions int
}

var _ Allocator = (*BufferPool)(nil)

// NewBufferPool creates a pool with room for regions buffers.
func NewBufferPool(regions int) *BufferPool {
	return &BufferPool{regions: regions}
}

// Acquire implements [Allocator].
func (p *BufferPool) Acquire(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: invalid size %d", ErrBufferUnavailable, size)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inUse >= p.regions {
		return nil, ErrBufferUnavailable
	}
	p.inUse++
	for i, b := range p.free {
		if cap(b) >= size {
			p.free = append(p.free[:i], p.free[i+1:]...)
			return b[:size], nil
		}
	}
	return make([]byte, size), nil
}

// Release implements [Allocator].
func (p *BufferPool) Release(buf []byte) {
	if buf == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inUse == 0 {
		return
	}
	p.inUse--
	clear(buf[:cap(buf)])
	p.free = append(p.free, buf[:0])
}

// InUse returns the number of buffers currently acquired.
func (p *BufferPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// RecordingSession is one bounded capture. It is written only by the
// detection loop and, once sealed by hand-off, read only by the processing
// stage.
type RecordingSession struct {
	buf     []byte
	offset  int
	intent  types.Intent
	sealed  bool
	started time.Time
	cid     string
}

func newRecordingSession(buf []byte, intent types.Intent, correlationID string) *RecordingSession {
	return &RecordingSession{buf: buf, intent: intent, started: time.Now(), cid: correlationID}
}

// CorrelationID identifies the voice command that started the recording.
func (s *RecordingSession) CorrelationID() string { return s.cid }

// Write copies as much of p as fits into the remaining capacity and never
// pads. It returns the number of bytes committed.
func (s *RecordingSession) Write(p []byte) (int, error) {
	if s.sealed {
		return 0, ErrSessionSealed
	}
	n := copy(s.buf[s.offset:], p)
	s.offset += n
	return n, nil
}

// Full reports whether the capture reached capacity.
func (s *RecordingSession) Full() bool { return s.offset >= len(s.buf) }

// Len returns the number of bytes recorded.
func (s *RecordingSession) Len() int { return s.offset }

// Cap returns the session's capacity in bytes.
func (s *RecordingSession) Cap() int { return len(s.buf) }

// Intent returns the purpose of the recording.
func (s *RecordingSession) Intent() types.Intent { return s.intent }

// Bytes returns the recorded audio.
func (s *RecordingSession) Bytes() []byte { return s.buf[:s.offset] }

// Sealed reports whether the session was handed off.
func (s *RecordingSession) Sealed() bool { return s.sealed }

func (s *RecordingSession) seal() { s.sealed = true }
