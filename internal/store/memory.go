package store

import (
	"context"
	"sync"
)

// MemoryStore is the in-memory fallback LogStore. Reply records are kept in
// insertion order; history is not retained.
type MemoryStore struct {
	mu        sync.Mutex
	replies   []ReplyRecord
	destroyed bool
}

var _ LogStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty fallback store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// AppendHistory discards the record.
func (m *MemoryStore) AppendHistory(context.Context, HistoryRecord) error {
	return nil
}

func (m *MemoryStore) AppendReply(_ context.Context, rec ReplyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return ErrDestroyed
	}
	for _, r := range m.replies {
		if r.ReplyID == rec.ReplyID {
			return nil
		}
	}
	m.replies = append(m.replies, rec)
	return nil
}

func (m *MemoryStore) LookupReply(_ context.Context, replyID string) (ReplyRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return ReplyRecord{}, false, ErrDestroyed
	}
	for _, r := range m.replies {
		if r.ReplyID == replyID {
			return r, true, nil
		}
	}
	return ReplyRecord{}, false, nil
}

// HistoryFor always returns an empty slice.
func (m *MemoryStore) HistoryFor(context.Context, string) ([]HistoryRecord, error) {
	return []HistoryRecord{}, nil
}

// Destroy drops every reply record.
func (m *MemoryStore) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.replies = nil
	m.destroyed = true
	return nil
}
