package dispatch

import "github.com/roach88/switchboard/internal/envelope"

// Inbox receives messages delivered to the name it was hooked up under.
//
// OnMessage runs on the dispatcher's receive goroutine. Returning an error
// or panicking evicts the inbox: it is disconnected and never called again.
// The message is a private copy. Closing the bus from OnMessage does not
// wait for the dispatcher to exit, since the dispatcher is the caller.
type Inbox interface {
	OnMessage(msg envelope.Message) error
}

// InboxFunc adapts a plain function to Inbox.
type InboxFunc func(msg envelope.Message) error

func (f InboxFunc) OnMessage(msg envelope.Message) error {
	return f(msg)
}

// slot is one entry of the host inbox list. Its index is the slot number the
// engine routes to.
type slot struct {
	uid          string
	name         string
	inbox        Inbox
	disconnected bool
}
