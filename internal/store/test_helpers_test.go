package store

import (
	"path/filepath"
	"testing"
)

// createTestStore opens a fresh database under t.TempDir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func historyRecord(uid string, seq int64, attempt int) HistoryRecord {
	return HistoryRecord{
		Seq:        seq,
		MessageUID: uid,
		Recipient:  "chat",
		SenderID:   "ua",
		Data:       []byte(`{"type":"greeting"}`),
		Attempt:    attempt,
	}
}
