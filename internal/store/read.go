package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// LookupReply returns the correlation record for replyID.
func (s *Store) LookupReply(ctx context.Context, replyID string) (ReplyRecord, bool, error) {
	db, err := s.conn()
	if err != nil {
		return ReplyRecord{}, false, fmt.Errorf("read reply: %w", err)
	}

	var rec ReplyRecord
	err = db.QueryRowContext(ctx, `
		SELECT reply_id, recipient, sender_id
		FROM reply
		WHERE reply_id = ?
	`, replyID).Scan(&rec.ReplyID, &rec.Recipient, &rec.SenderID)
	if errors.Is(err, sql.ErrNoRows) {
		return ReplyRecord{}, false, nil
	}
	if err != nil {
		return ReplyRecord{}, false, fmt.Errorf("read reply: %w", err)
	}
	return rec, true, nil
}

// HistoryFor returns every attempt recorded for a message, ordered by seq.
// Returns an empty slice (not nil) if there are none.
func (s *Store) HistoryFor(ctx context.Context, messageUID string) ([]HistoryRecord, error) {
	db, err := s.conn()
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, seq, message_uid, recipient, sender_id, data, attempt
		FROM history
		WHERE message_uid = ?
		ORDER BY seq ASC, id ASC
	`, messageUID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	records := []HistoryRecord{}
	for rows.Next() {
		var (
			rec  HistoryRecord
			data string
		)
		if err := rows.Scan(&rec.ID, &rec.Seq, &rec.MessageUID, &rec.Recipient, &rec.SenderID, &data, &rec.Attempt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.Data = []byte(data)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return records, nil
}
