package engine

import (
	"sync"
	"sync/atomic"

	"github.com/voxpipe/voxpipe/pkg/audio"
)

// FrameQueue is a bounded FIFO of audio frames with drop-newest overflow
// semantics. Offering a frame to a full queue discards the offered frame and
// leaves the queued frames untouched, so a stalled consumer never blocks a
// producer and the queue holds the oldest pending audio.
//
// All methods are safe for concurrent use.
type FrameQueue struct {
	mu       sync.Mutex
	frames   []audio.Frame
	capacity int
	dropped  atomic.Int64

	// wake receives a signal whenever a frame is enqueued, letting a
	// consumer sleep on an empty queue instead of polling. The channel is
	// buffered so producers never block on it.
	wake chan struct{}
}

// NewFrameQueue returns an empty queue that holds at most capacity frames.
func NewFrameQueue(capacity int) *FrameQueue {
	return &FrameQueue{
		frames:   make([]audio.Frame, 0, capacity),
		capacity: capacity,
		wake:     make(chan struct{}, 1),
	}
}

// Offer appends f to the queue. It returns false if the queue was full and
// the frame was dropped.
func (q *FrameQueue) Offer(f audio.Frame) bool {
	q.mu.Lock()
	if len(q.frames) >= q.capacity {
		q.mu.Unlock()
		q.dropped.Add(1)
		return false
	}
	q.frames = append(q.frames, f)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Take removes and returns the oldest queued frame. It returns false
// immediately if the queue is empty.
func (q *FrameQueue) Take() (audio.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		return audio.Frame{}, false
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	if len(q.frames) == 0 {
		// Reset the backing array so the slice does not pin old frames.
		q.frames = make([]audio.Frame, 0, q.capacity)
	}
	return f, true
}

// Len reports the number of frames currently queued.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Clear discards all queued frames and returns how many were removed.
func (q *FrameQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.frames)
	q.frames = make([]audio.Frame, 0, q.capacity)
	return n
}

// Dropped returns the total number of frames discarded by Offer since the
// queue was created.
func (q *FrameQueue) Dropped() int64 {
	return q.dropped.Load()
}

// Wake returns a channel that receives a signal after each successful Offer.
// The signal is coalesced; a consumer must drain the queue after waking.
func (q *FrameQueue) Wake() <-chan struct{} {
	return q.wake
}
