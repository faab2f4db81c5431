// Package transport implements the asynchronous channel between the host
// dispatcher and the routing engine.
//
// Every envelope is JSON-encoded on Send and decoded on Recv, so the two
// sides never share memory: a receiver can mutate what it got without the
// sender observing it. Each direction is an unbounded FIFO.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/roach88/switchboard/internal/envelope"
)

// ErrClosed is returned by Send after either endpoint has been closed.
var ErrClosed = errors.New("transport: closed")

// DecodeError reports a frame that could not be decoded. The frame has been
// consumed; the receiver may keep reading.
type DecodeError struct {
	Frame []byte
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("transport: decode frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Endpoint is one side of a Pipe.
type Endpoint struct {
	in   *frameQueue
	out  *frameQueue
	once *sync.Once
}

// Pipe returns two connected endpoints. Envelopes sent on one are received
// on the other in send order.
func Pipe() (*Endpoint, *Endpoint) {
	ab, ba := newFrameQueue(), newFrameQueue()
	once := &sync.Once{}
	return &Endpoint{in: ba, out: ab, once: once}, &Endpoint{in: ab, out: ba, once: once}
}

// Send encodes env and queues it for the peer. It never blocks.
func (e *Endpoint) Send(env envelope.Envelope) error {
	b, err := envelope.Encode(env)
	if err != nil {
		return fmt.Errorf("transport: encode: %w", err)
	}
	return e.SendRaw(b)
}

// SendRaw queues an already-encoded frame.
func (e *Endpoint) SendRaw(frame []byte) error {
	if !e.out.Enqueue(frame) {
		return ErrClosed
	}
	return nil
}

// Recv blocks until an envelope arrives, the pipe is closed and drained
// (io.EOF), or ctx is done. A frame that fails to decode yields a
// *DecodeError.
func (e *Endpoint) Recv(ctx context.Context) (envelope.Envelope, error) {
	for {
		frame, ok, closed := e.in.TryDequeue()
		if ok {
			env, err := envelope.Decode(frame)
			if err != nil {
				return envelope.Envelope{}, &DecodeError{Frame: frame, Err: err}
			}
			return env, nil
		}
		if closed {
			return envelope.Envelope{}, io.EOF
		}

		select {
		case <-ctx.Done():
			return envelope.Envelope{}, ctx.Err()
		case <-e.in.Wait():
		}
	}
}

// Pending returns the number of frames waiting to be received on this end.
func (e *Endpoint) Pending() int {
	return e.in.Len()
}

// Close shuts both directions. Frames already queued are still delivered;
// afterwards Recv returns io.EOF on both ends.
func (e *Endpoint) Close() error {
	e.once.Do(func() {
		e.in.Close()
		e.out.Close()
	})
	return nil
}
