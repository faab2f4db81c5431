package transport

import "sync"

// frameQueue is a thread-safe unbounded FIFO of encoded envelopes.
//
// The sender never blocks; the receiver waits on a size-1 signal channel so
// it can also select on context cancellation.
type frameQueue struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	signal chan struct{}
}

func newFrameQueue() *frameQueue {
	return &frameQueue{
		frames: make([][]byte, 0, 32),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends a frame. Returns false if the queue is closed.
func (q *frameQueue) Enqueue(f []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.frames = append(q.frames, f)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front frame without blocking. The closed result is only
// meaningful when ok is false: it reports that nothing more will arrive.
func (q *frameQueue) TryDequeue() (f []byte, ok, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) == 0 {
		return nil, false, q.closed
	}
	f = q.frames[0]
	q.frames[0] = nil
	if len(q.frames) == 1 {
		q.frames = q.frames[:0]
	} else {
		q.frames = q.frames[1:]
	}
	return f, true, false
}

// Wait returns a channel that signals when frames may be available.
func (q *frameQueue) Wait() <-chan struct{} {
	return q.signal
}

func (q *frameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Close stops further enqueues. Frames already queued can still be drained.
func (q *frameQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
