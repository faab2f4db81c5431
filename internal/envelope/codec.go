package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingType is returned when a data object has no "type" discriminator.
var ErrMissingType = errors.New("envelope: data has no type")

const (
	keyType    = "type"
	keyReplyID = "replyId"
)

type wireEnvelope struct {
	Recipient   string          `json:"recipient,omitempty"`
	ReplyID     string          `json:"replyId,omitempty"`
	ReplyAll    bool            `json:"replyAll,omitempty"`
	SenderID    string          `json:"senderId,omitempty"`
	MessageID   string          `json:"messageId,omitempty"`
	MaxAttempts int             `json:"maxAttempts"`
	Attempts    int             `json:"attempts,omitempty"`
	Slots       []int           `json:"slots,omitempty"`
	Epoch       uint64          `json:"epoch,omitempty"`
	Data        json.RawMessage `json:"data"`
}

// MarshalJSON encodes the envelope with a flattened "data" object.
func (e Envelope) MarshalJSON() ([]byte, error) {
	data, err := MarshalPayload(e.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEnvelope{
		Recipient:   e.Recipient,
		ReplyID:     e.ReplyID,
		ReplyAll:    e.ReplyAll,
		SenderID:    e.SenderID,
		MessageID:   e.MessageID,
		MaxAttempts: e.MaxAttempts,
		Attempts:    e.Attempts,
		Slots:       e.Slots,
		Epoch:       e.Epoch,
		Data:        data,
	})
}

// UnmarshalJSON decodes an envelope, choosing the payload variant from the
// recipient.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*e = Envelope{
		Recipient:   w.Recipient,
		ReplyID:     w.ReplyID,
		ReplyAll:    w.ReplyAll,
		SenderID:    w.SenderID,
		MessageID:   w.MessageID,
		MaxAttempts: w.MaxAttempts,
		Attempts:    w.Attempts,
		Slots:       w.Slots,
		Epoch:       w.Epoch,
	}
	if len(w.Data) == 0 || string(w.Data) == "null" {
		return nil
	}
	var (
		p   Payload
		err error
	)
	if IsReserved(w.Recipient) {
		p, err = UnmarshalControl(w.Data)
	} else {
		p, err = UnmarshalMessage(w.Data)
	}
	if err != nil {
		return fmt.Errorf("decode data for %q: %w", w.Recipient, err)
	}
	e.Data = p
	return nil
}

// MarshalPayload encodes a payload as a JSON object carrying a "type" key.
// A nil payload encodes as null.
func MarshalPayload(p Payload) (json.RawMessage, error) {
	switch v := p.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case Message:
		return marshalMessage(v)
	case *Message:
		return marshalMessage(*v)
	case Unknown:
		return json.Marshal(map[string]string{keyType: v.Name})
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", p.Type(), err)
	}
	obj := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("marshal %s: %w", p.Type(), err)
	}
	typ, _ := json.Marshal(p.Type())
	obj[keyType] = typ
	return json.Marshal(obj)
}

func marshalMessage(m Message) (json.RawMessage, error) {
	obj := make(map[string]any, len(m.Fields)+2)
	for k, v := range m.Fields {
		obj[k] = v
	}
	obj[keyType] = m.Kind
	if m.ReplyID != "" {
		obj[keyReplyID] = m.ReplyID
	} else {
		delete(obj, keyReplyID)
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("marshal message %q: %w", m.Kind, err)
	}
	return b, nil
}

// UnmarshalMessage decodes an application payload. Every key other than
// "type" and "replyId" lands in Fields.
func UnmarshalMessage(b []byte) (Message, error) {
	var obj map[string]any
	if err := json.Unmarshal(b, &obj); err != nil {
		return Message{}, err
	}
	kind, ok := obj[keyType].(string)
	if !ok || kind == "" {
		return Message{}, ErrMissingType
	}
	m := Message{Kind: kind}
	if id, ok := obj[keyReplyID].(string); ok {
		m.ReplyID = id
	}
	delete(obj, keyType)
	delete(obj, keyReplyID)
	if len(obj) > 0 {
		m.Fields = obj
	}
	return m, nil
}

// UnmarshalControl decodes a control payload. Unrecognized types decode to
// Unknown rather than failing.
func UnmarshalControl(b []byte) (Payload, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, err
	}
	if head.Type == "" {
		return nil, ErrMissingType
	}

	var p Payload
	switch head.Type {
	case TypeHookup:
		var v Hookup
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		p = v
	case TypeDisconnect:
		var v Disconnect
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		p = v
	case TypeUpdateAddresses:
		var v UpdateAddresses
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		p = v
	case TypeInit:
		var v Init
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		p = v
	case TypeUnload:
		p = Unload{}
	case TypeWorkerReady:
		p = WorkerReady{}
	case TypeCompactionComplete:
		p = CompactionComplete{}
	case TypeRequestCompaction:
		p = RequestCompaction{}
	case TypePing:
		p = Ping{}
	default:
		p = Unknown{Name: head.Type}
	}
	return p, nil
}

// Encode serializes an envelope for the transport.
func Encode(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a transport frame into an envelope.
func Decode(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}
