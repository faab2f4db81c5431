package testutil

import (
	"sync"
	"time"

	"github.com/roach88/switchboard/internal/envelope"
)

// Recorder is an inbox that remembers every message it receives.
//
// Set Err or Panic before hooking it up to make it fail on every call.
//
// Thread-safety: all methods are safe for concurrent use.
type Recorder struct {
	Err   error
	Panic any

	mu   sync.Mutex
	msgs []envelope.Message
	hook func(envelope.Message)
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// OnMessage records msg, then fails if configured to.
func (r *Recorder) OnMessage(msg envelope.Message) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	hook := r.hook
	r.mu.Unlock()

	if hook != nil {
		hook(msg)
	}
	if r.Panic != nil {
		panic(r.Panic)
	}
	return r.Err
}

// OnReceive installs a callback run after each recorded message.
func (r *Recorder) OnReceive(fn func(envelope.Message)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = fn
}

// Messages returns a copy of everything received so far.
func (r *Recorder) Messages() []envelope.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]envelope.Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// Kinds returns the type of each received message, in order.
func (r *Recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Kind
	}
	return out
}

// Len returns the number of messages received.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

// WaitFor polls until n messages have arrived or timeout elapses, and
// reports whether they did.
func (r *Recorder) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if r.Len() >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
