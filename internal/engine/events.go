package engine

import (
	"github.com/roach88/switchboard/internal/envelope"
	"github.com/roach88/switchboard/internal/store"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventInbound carries an envelope received from the host.
	EventInbound EventType = iota + 1
	// EventMalformed reports a frame the transport could not decode.
	EventMalformed
	// EventTransportClosed reports that the host side went away.
	EventTransportClosed
	// EventStoreOpened reports the store worker finished opening a store.
	EventStoreOpened
	// EventReplyResolved resumes a reply resolution after a correlation
	// lookup.
	EventReplyResolved
	// EventRetryTick re-attempts the retry queue.
	EventRetryTick
	// EventCompactionDue asks the host for a compaction.
	EventCompactionDue
	// EventPingDue sends a liveness ping to the host.
	EventPingDue
)

func (t EventType) String() string {
	switch t {
	case EventInbound:
		return "inbound"
	case EventMalformed:
		return "malformed"
	case EventTransportClosed:
		return "transport-closed"
	case EventStoreOpened:
		return "store-opened"
	case EventReplyResolved:
		return "reply-resolved"
	case EventRetryTick:
		return "retry-tick"
	case EventCompactionDue:
		return "compaction-due"
	case EventPingDue:
		return "ping-due"
	default:
		return "unknown"
	}
}

// Event is one unit of work for the Run loop.
type Event struct {
	Type     EventType
	Envelope envelope.Envelope
	Err      error

	// EventStoreOpened
	Fallback bool

	// EventReplyResolved
	Reply   store.ReplyRecord
	Found   bool
	Pending *pending
}
