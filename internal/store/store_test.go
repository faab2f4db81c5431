package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		s.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_FailsOnMissingDirectory(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "nested", "test.db"))
	assert.Error(t, err)
}

func TestOpenSession_UniquePathAndDestroy(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	s, err := OpenSession(dir, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, SessionPath(dir, "sess-1"), s.Path())

	other, err := OpenSession(dir, "sess-2")
	require.NoError(t, err)
	defer other.Destroy()
	assert.NotEqual(t, s.Path(), other.Path())

	require.NoError(t, s.AppendHistory(context.Background(), historyRecord("m-1", 1, 0)))
	require.NoError(t, s.Destroy())

	_, err = os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(s.Path() + "-wal")
	assert.True(t, os.IsNotExist(err))

	err = s.AppendReply(context.Background(), ReplyRecord{ReplyID: "r"})
	assert.ErrorIs(t, err, ErrDestroyed)
}

func TestOpenSession_EmptyID(t *testing.T) {
	_, err := OpenSession(t.TempDir(), "")
	assert.Error(t, err)
}

func TestHistory_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendHistory(ctx, historyRecord("m-1", 3, 2)))
	require.NoError(t, s.AppendHistory(ctx, historyRecord("m-1", 1, 0)))
	require.NoError(t, s.AppendHistory(ctx, historyRecord("m-2", 2, 0)))
	require.NoError(t, s.AppendHistory(ctx, historyRecord("m-1", 2, 1)))

	got, err := s.HistoryFor(ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, rec := range got {
		assert.Equal(t, int64(i+1), rec.Seq)
		assert.Equal(t, i, rec.Attempt)
		assert.JSONEq(t, `{"type":"greeting"}`, string(rec.Data))
	}
}

func TestHistory_EmptyResultIsNotNil(t *testing.T) {
	s := createTestStore(t)

	got, err := s.HistoryFor(context.Background(), "nothing")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestHistory_NilDataStoredAsNull(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendHistory(ctx, HistoryRecord{Seq: 1, MessageUID: "m"}))
	got, err := s.HistoryFor(ctx, "m")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "null", string(got[0].Data))
}

func TestReply_LookupAndUniqueness(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendReply(ctx, ReplyRecord{ReplyID: "r-1", Recipient: "b", SenderID: "ua"}))
	require.NoError(t, s.AppendReply(ctx, ReplyRecord{ReplyID: "r-1", Recipient: "other", SenderID: "ux"}))

	rec, found, err := s.LookupReply(ctx, "r-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ReplyRecord{ReplyID: "r-1", Recipient: "b", SenderID: "ua"}, rec)

	_, found, err = s.LookupReply(ctx, "r-404")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.AppendHistory(ctx, historyRecord("m-1", 1, 0)))
	hist, err := m.HistoryFor(ctx, "m-1")
	require.NoError(t, err)
	assert.Empty(t, hist, "fallback store drops history")

	require.NoError(t, m.AppendReply(ctx, ReplyRecord{ReplyID: "r-1", Recipient: "b", SenderID: "ua"}))
	require.NoError(t, m.AppendReply(ctx, ReplyRecord{ReplyID: "r-1", Recipient: "x"}))
	rec, found, err := m.LookupReply(ctx, "r-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "b", rec.Recipient)

	require.NoError(t, m.Destroy())
	_, _, err = m.LookupReply(ctx, "r-1")
	assert.ErrorIs(t, err, ErrDestroyed)
}
