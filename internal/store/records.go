package store

import "encoding/json"

// HistoryRecord is one resolution attempt.
type HistoryRecord struct {
	ID         int64
	Seq        int64
	MessageUID string
	Recipient  string
	SenderID   string
	Data       json.RawMessage
	Attempt    int
}

// ReplyRecord correlates a minted reply id with the message that produced it.
type ReplyRecord struct {
	ReplyID   string
	Recipient string
	SenderID  string
}
