package engine

import (
	"slices"
	"time"

	"github.com/roach88/switchboard/internal/envelope"
)

// pending is one message waiting in the retry queue.
type pending struct {
	env envelope.Envelope

	// inflight is set while an attempt awaits a correlation lookup. A
	// message never has two attempts in flight.
	inflight bool
	removed  bool
}

// retryQueue holds messages that resolved to nobody.
//
// One timer serves the whole queue. It is armed lazily when the first
// message arrives and left idle once the queue drains. The timer callback
// only enqueues EventRetryTick; all other access happens on the Run loop.
type retryQueue struct {
	items    []*pending
	interval time.Duration
	timer    *time.Timer
	fire     func()
}

func newRetryQueue(interval time.Duration, fire func()) *retryQueue {
	return &retryQueue{interval: interval, fire: fire}
}

// add queues env. Its Attempts must already count the failed attempt.
func (q *retryQueue) add(env envelope.Envelope) *pending {
	p := &pending{env: env}
	q.items = append(q.items, p)
	q.arm()
	return p
}

func (q *retryQueue) remove(p *pending) {
	if p.removed {
		return
	}
	p.removed = true
	q.items = slices.DeleteFunc(q.items, func(x *pending) bool { return x == p })
}

// due returns the queued messages with no attempt in flight, in queue order.
func (q *retryQueue) due() []*pending {
	out := make([]*pending, 0, len(q.items))
	for _, p := range q.items {
		if !p.inflight {
			out = append(out, p)
		}
	}
	return out
}

// fired must be called when a tick is handled, before due. The timer is
// spent at that point.
func (q *retryQueue) fired() {
	q.timer = nil
}

// arm starts the timer if the queue is non-empty and no tick is pending.
func (q *retryQueue) arm() {
	if q.timer != nil || len(q.items) == 0 {
		return
	}
	q.timer = time.AfterFunc(q.interval, q.fire)
}

func (q *retryQueue) idle() bool {
	return q.timer == nil
}

func (q *retryQueue) len() int {
	return len(q.items)
}

// stop drops every queued message and disarms the timer.
func (q *retryQueue) stop() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	for _, p := range q.items {
		p.removed = true
	}
	q.items = nil
}
