// Package playback serializes announcements onto one audio output.
//
// A [Queue] sits between the speakers (expiry reminders, recipe read-outs)
// and the device. Clips play one at a time, highest priority first, with a
// short silence between them. A clip with higher priority than the one
// playing cuts it off. [Queue.Interrupt] silences everything, which the app
// uses when the wake phrase is heard so the assistant stops talking over its
// user.
package playback

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/larder/pkg/audio"
)

const (
	// DefaultGap is the silence between consecutive clips.
	DefaultGap = 300 * time.Millisecond

	// DefaultChunk is how much audio is handed to the sink per write. It
	// bounds how late an interrupt takes effect.
	DefaultChunk = 100 * time.Millisecond

	// PriorityNormal is used by Play.
	PriorityNormal = 0
)

var (
	// ErrInterrupted is returned for a clip that was cut off or dropped from
	// the queue by Interrupt or by a higher-priority clip.
	ErrInterrupted = errors.New("playback: interrupted")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("playback: queue closed")
)

var _ audio.Sink = (*Queue)(nil)

type clip struct {
	pcm  []byte
	done chan error
}

// Option configures a Queue.
type Option func(*Queue)

// WithGap sets the silence between clips. Zero plays them back to back.
func WithGap(d time.Duration) Option {
	return func(q *Queue) { q.gap = max(d, 0) }
}

// WithChunk sets the write granularity.
func WithChunk(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.chunk = d
		}
	}
}

// Queue plays PCM clips on a sink one at a time. It implements [audio.Sink]
// so it can stand in for the device. Safe for concurrent use.
type Queue struct {
	sink  audio.Sink
	chunk time.Duration

	mu         sync.Mutex
	queue      clipHeap
	seq        uint64
	gap        time.Duration
	playing    *clip
	playingPri int
	cancel     context.CancelFunc
	closed     bool

	notify chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

// New starts a queue in front of sink. Call Close to stop it; Close does not
// close sink.
func New(sink audio.Sink, opts ...Option) *Queue {
	q := &Queue{
		sink:   sink,
		chunk:  DefaultChunk,
		gap:    DefaultGap,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	heap.Init(&q.queue)
	q.wg.Go(q.dispatch)
	return q
}

// SampleRate implements [audio.Sink].
func (q *Queue) SampleRate() int { return q.sink.SampleRate() }

// Play implements [audio.Sink]: it queues pcm at [PriorityNormal] and waits
// until it has been played.
func (q *Queue) Play(ctx context.Context, pcm []byte) error {
	return q.PlayPriority(ctx, pcm, PriorityNormal)
}

// PlayPriority queues pcm and blocks until it has been played, dropped or
// ctx is done. If priority is higher than the clip playing, that clip is cut
// off. A cancelled ctx withdraws the clip.
func (q *Queue) PlayPriority(ctx context.Context, pcm []byte, priority int) error {
	if len(pcm) == 0 {
		return nil
	}
	c := &clip{pcm: pcm, done: make(chan error, 1)}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.seq++
	heap.Push(&q.queue, entry{clip: c, priority: priority, seq: q.seq})
	if q.playing != nil && priority > q.playingPri {
		q.stopLocked()
	}
	q.mu.Unlock()
	q.wake()

	select {
	case err := <-c.done:
		return err
	case <-ctx.Done():
		q.withdraw(c)
		return ctx.Err()
	}
}

// Interrupt cuts off the clip playing and drops everything queued.
func (q *Queue) Interrupt() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopLocked()
	q.dropLocked(ErrInterrupted)
}

// Busy reports whether a clip is playing or queued.
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing != nil || q.queue.Len() > 0
}

// SetGap changes the silence between clips from the next clip on.
func (q *Queue) SetGap(d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.gap = max(d, 0)
}

// Close stops playback and fails every pending clip with ErrClosed.
// Idempotent.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.stopLocked()
	q.dropLocked(ErrClosed)
	q.mu.Unlock()

	close(q.done)
	q.wg.Wait()
	return nil
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// stopLocked cancels the clip playing. The dispatcher reports
// ErrInterrupted to its caller.
func (q *Queue) stopLocked() {
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
}

func (q *Queue) dropLocked(err error) {
	for q.queue.Len() > 0 {
		e := heap.Pop(&q.queue).(entry)
		e.clip.done <- err
	}
}

// withdraw removes c if it is still queued, or stops it if it is playing.
func (q *Queue) withdraw(c *clip) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.playing == c {
		q.stopLocked()
		return
	}
	for i, e := range q.queue {
		if e.clip == c {
			heap.Remove(&q.queue, i)
			return
		}
	}
}

func (q *Queue) dispatch() {
	gapTimer := time.NewTimer(0)
	if !gapTimer.Stop() {
		<-gapTimer.C
	}
	defer gapTimer.Stop()

	var played bool
	for {
		select {
		case <-q.done:
			return
		case <-q.notify:
		}

		for {
			c, ctx, gap, ok := q.dequeue()
			if !ok {
				break
			}
			if played && gap > 0 {
				gapTimer.Reset(gap)
				select {
				case <-ctx.Done():
					if !gapTimer.Stop() {
						<-gapTimer.C
					}
				case <-gapTimer.C:
				}
			}
			err := q.play(ctx, c)
			played = true

			q.mu.Lock()
			if q.playing == c {
				q.playing = nil
				if q.cancel != nil {
					q.cancel()
					q.cancel = nil
				}
			}
			q.mu.Unlock()
			c.done <- err
		}
	}
}

// dequeue pops the next clip and marks it as playing.
func (q *Queue) dequeue() (*clip, context.Context, time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.queue.Len() == 0 {
		return nil, nil, 0, false
	}
	e := heap.Pop(&q.queue).(entry)
	ctx, cancel := context.WithCancel(context.Background())
	q.playing = e.clip
	q.playingPri = e.priority
	q.cancel = cancel
	return e.clip, ctx, q.gap, true
}

// play writes c to the sink chunk by chunk until it ends or ctx is
// cancelled.
func (q *Queue) play(ctx context.Context, c *clip) error {
	// Mono 16-bit: two bytes per sample.
	step := max(int(q.chunk.Seconds()*float64(q.sink.SampleRate()))*2, 2)
	for off := 0; off < len(c.pcm); off += step {
		if ctx.Err() != nil {
			return ErrInterrupted
		}
		end := min(off+step, len(c.pcm))
		if err := q.sink.Play(ctx, c.pcm[off:end]); err != nil {
			if ctx.Err() != nil {
				return ErrInterrupted
			}
			return err
		}
	}
	return nil
}
