package store

import (
	"context"
	"fmt"
)

// AppendHistory inserts one attempt row. Data must be valid JSON; an empty
// payload is stored as null.
func (s *Store) AppendHistory(ctx context.Context, rec HistoryRecord) error {
	db, err := s.conn()
	if err != nil {
		return fmt.Errorf("write history: %w", err)
	}

	data := string(rec.Data)
	if data == "" {
		data = "null"
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO history
		(seq, message_uid, recipient, sender_id, data, attempt)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		rec.Seq,
		rec.MessageUID,
		rec.Recipient,
		rec.SenderID,
		data,
		rec.Attempt,
	)
	if err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// AppendReply inserts a correlation record. Reply ids are unique; writing the
// same id twice keeps the first record.
func (s *Store) AppendReply(ctx context.Context, rec ReplyRecord) error {
	db, err := s.conn()
	if err != nil {
		return fmt.Errorf("write reply: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO reply (reply_id, recipient, sender_id)
		VALUES (?, ?, ?)
		ON CONFLICT(reply_id) DO NOTHING
	`, rec.ReplyID, rec.Recipient, rec.SenderID)
	if err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}
