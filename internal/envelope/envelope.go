package envelope

import "math"

// Reserved recipients for control traffic.
const (
	// EngineRecipient addresses control envelopes to the routing engine.
	EngineRecipient = "engine"
	// HostRecipient addresses control envelopes to the host dispatcher.
	HostRecipient = "host"
)

// Unlimited is the MaxAttempts value for a message that is retried until a
// recipient appears.
const Unlimited = math.MaxInt

// Envelope is the serialized message unit crossing the transport.
type Envelope struct {
	Recipient string `json:"recipient,omitempty"`
	ReplyID   string `json:"replyId,omitempty"`
	ReplyAll  bool   `json:"replyAll,omitempty"`
	SenderID  string `json:"senderId,omitempty"`

	// MessageID is empty for fire-and-forget control messages.
	MessageID   string `json:"messageId,omitempty"`
	MaxAttempts int    `json:"maxAttempts"`
	Attempts    int    `json:"attempts,omitempty"`

	// Slots and Epoch are only set on deliveries posted by the engine.
	Slots []int  `json:"slots,omitempty"`
	Epoch uint64 `json:"epoch,omitempty"`

	Data Payload `json:"-"`
}

// Control builds a fire-and-forget control envelope for the given reserved
// recipient.
func Control(recipient string, p Payload) Envelope {
	return Envelope{
		Recipient:   recipient,
		MaxAttempts: 1,
		Data:        p,
	}
}

// IsControl reports whether the envelope is addressed to a reserved recipient.
func (e Envelope) IsControl() bool {
	return IsReserved(e.Recipient)
}

// IsDelivery reports whether the envelope is a resolved delivery posted by
// the engine.
func (e Envelope) IsDelivery() bool {
	return e.Recipient == "" && e.ReplyID == "" && len(e.Slots) > 0
}

// Message returns the application payload, if the envelope carries one.
func (e Envelope) Message() (Message, bool) {
	switch m := e.Data.(type) {
	case Message:
		return m, true
	case *Message:
		if m == nil {
			return Message{}, false
		}
		return *m, true
	default:
		return Message{}, false
	}
}

// CoerceMaxAttempts normalizes a retry budget. Anything below 1 becomes 1.
func CoerceMaxAttempts(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
