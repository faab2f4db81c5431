package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/switchboard/internal/envelope"
	"github.com/roach88/switchboard/internal/telemetry"
	"github.com/roach88/switchboard/internal/testutil"
)

func TestDispatcher_QueuesUntilReady(t *testing.T) {
	th := startHost(t, WithProbe(StaticProbe{MemoryClass: 2, SlowPlatform: true}))
	rec := testutil.NewRecorder()

	uid := th.d.Hookup("inbox", rec)
	id := th.d.Message(Outgoing{Recipient: "inbox", Data: msg("hello")})
	require.NotEmpty(t, id)

	th.expectQuiet()
	assert.Equal(t, 2, th.d.Stats().Queued)

	th.control(envelope.WorkerReady{})

	hookup := th.expectControl(envelope.TypeHookup)
	assert.Equal(t, envelope.Hookup{Name: "inbox", Slot: 0, UID: uid}, hookup.Data)

	sent := th.recv()
	assert.Equal(t, "inbox", sent.Recipient)
	assert.Equal(t, id, sent.MessageID)
	assert.Equal(t, 1, sent.MaxAttempts, "non-positive budgets coerce to one")

	probe := th.expectControl(envelope.TypeInit)
	assert.Equal(t, envelope.Init{MemoryClass: 2, SlowPlatform: true}, probe.Data)

	stats := th.d.Stats()
	assert.True(t, stats.Ready)
	assert.Zero(t, stats.Queued)
	assert.Equal(t, 2, testutil.Counter(th.sink, telemetry.MetricHostQueuedCount))
}

func TestDispatcher_DuplicateReadyIgnored(t *testing.T) {
	th := startHost(t)
	th.ready()

	th.control(envelope.WorkerReady{})
	th.expectQuiet()
}

func TestDispatcher_SendsDirectlyAfterReady(t *testing.T) {
	th := startHost(t)
	th.ready()

	id := th.d.Message(Outgoing{Recipient: "Inbox", Data: msg("hello"), SenderID: "s-1", MaxAttempts: 3})
	env := th.recv()
	assert.Equal(t, id, env.MessageID)
	assert.Equal(t, "Inbox", env.Recipient)
	assert.Equal(t, "s-1", env.SenderID)
	assert.Equal(t, 3, env.MaxAttempts)
	assert.Zero(t, th.d.Stats().Queued)
}

func TestDispatcher_HookupAssignsSequentialSlots(t *testing.T) {
	th := startHost(t)
	th.ready()

	for i, name := range []string{"a", "b", "c"} {
		uid := th.d.Hookup(name, testutil.NewRecorder())
		env := th.expectControl(envelope.TypeHookup)
		assert.Equal(t, envelope.Hookup{Name: name, Slot: i, UID: uid}, env.Data)
	}
	assert.Equal(t, 3, th.d.Stats().Slots)
}

func TestDispatcher_FanOutCopiesPerInbox(t *testing.T) {
	th := startHost(t)
	th.ready()

	a := testutil.NewRecorder()
	a.OnReceive(func(m envelope.Message) { m.Fields["n"] = "mutated" })
	b := testutil.NewRecorder()
	th.d.Hookup("x", a)
	th.d.Hookup("x", b)
	th.expectControl(envelope.TypeHookup)
	th.expectControl(envelope.TypeHookup)

	th.deliver(0, "ping", 0, 1)

	require.True(t, b.WaitFor(1, recvTimeout))
	require.Equal(t, 1, a.Len())
	assert.Equal(t, "x", b.Messages()[0].Fields["n"])
	assert.Equal(t, 2, testutil.Counter(th.sink, telemetry.MetricHostInvokedCount))
}

func TestDispatcher_EvictsFailingInbox(t *testing.T) {
	tests := []struct {
		name string
		rec  *testutil.Recorder
	}{
		{name: "error", rec: &testutil.Recorder{Err: errors.New("boom")}},
		{name: "panic", rec: &testutil.Recorder{Panic: "kaboom"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := startHost(t)
			th.ready()

			uid := th.d.Hookup("bad", tt.rec)
			good := testutil.NewRecorder()
			th.d.Hookup("good", good)
			th.expectControl(envelope.TypeHookup)
			th.expectControl(envelope.TypeHookup)

			th.deliver(0, "first", 0)
			disc := th.expectControl(envelope.TypeDisconnect)
			assert.Equal(t, envelope.Disconnect{Slot: 0, UID: uid}, disc.Data)

			th.deliver(0, "second", 0, 1)
			require.True(t, good.WaitFor(1, recvTimeout))
			assert.Equal(t, 1, tt.rec.Len(), "evicted inbox is never called again")

			stats := th.d.Stats()
			assert.Equal(t, 2, stats.Slots)
			assert.Equal(t, 1, stats.Live)
			assert.Equal(t, 1, testutil.Counter(th.sink, telemetry.MetricHostEvictedCount))
		})
	}
}

func TestDispatcher_Disconnect(t *testing.T) {
	th := startHost(t)
	th.ready()

	rec := testutil.NewRecorder()
	uid := th.d.Hookup("x", rec)
	th.expectControl(envelope.TypeHookup)

	th.d.Disconnect(uid)
	disc := th.expectControl(envelope.TypeDisconnect)
	assert.Equal(t, envelope.Disconnect{Slot: 0, UID: uid}, disc.Data)

	th.d.Disconnect(uid)
	th.d.Disconnect("nope")
	th.expectQuiet()

	th.deliver(0, "late", 0)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, rec.Len())
}

func TestDispatcher_Compaction(t *testing.T) {
	th := startHost(t)
	th.ready()

	a, b, c := testutil.NewRecorder(), testutil.NewRecorder(), testutil.NewRecorder()
	th.d.Hookup("a", a)
	uidB := th.d.Hookup("b", b)
	th.d.Hookup("c", c)
	for range 3 {
		th.expectControl(envelope.TypeHookup)
	}
	th.d.Disconnect(uidB)
	th.expectControl(envelope.TypeDisconnect)

	require.True(t, th.d.Compact())
	env := th.expectControl(envelope.TypeUpdateAddresses)
	assert.Equal(t, envelope.UpdateAddresses{Addresses: []envelope.AddressUpdate{
		{Old: 0, New: 0},
		{Old: 2, New: 1},
	}}, env.Data)

	stats := th.d.Stats()
	assert.True(t, stats.Compacting)
	assert.Equal(t, uint64(1), stats.Epoch)
	assert.Equal(t, 2, stats.Slots)
	assert.False(t, th.d.Compact(), "one compaction at a time")

	// Sends during the window wait for the acknowledgement.
	id := th.d.Message(Outgoing{Recipient: "a", Data: msg("held")})
	th.expectQuiet()
	assert.Equal(t, 1, th.d.Stats().Queued)

	// Resolved before the engine applied the remap: old numbering.
	th.deliver(0, "old", 2)
	require.True(t, c.WaitFor(1, recvTimeout))

	// Resolved after: new numbering.
	th.deliver(1, "new", 1)
	require.True(t, c.WaitFor(2, recvTimeout))
	assert.Equal(t, []string{"old", "new"}, c.Kinds())
	assert.Zero(t, a.Len())

	th.control(envelope.CompactionComplete{})
	flushed := th.recv()
	assert.Equal(t, id, flushed.MessageID)

	stats = th.d.Stats()
	assert.False(t, stats.Compacting)
	assert.Zero(t, stats.Queued)
	assert.Equal(t, 1, testutil.Counter(th.sink, telemetry.MetricHostCompactionCount))
}

func TestDispatcher_CompactBeforeReadySkipped(t *testing.T) {
	th := startHost(t)
	assert.False(t, th.d.Compact())
	assert.Equal(t, uint64(0), th.d.Stats().Epoch)
}

func TestDispatcher_RequestCompaction(t *testing.T) {
	th := startHost(t)
	th.ready()

	th.control(envelope.RequestCompaction{})
	env := th.expectControl(envelope.TypeUpdateAddresses)
	assert.Empty(t, env.Data.(envelope.UpdateAddresses).Addresses)

	th.control(envelope.Ping{})
	th.expectQuiet()
}

func TestDispatcher_StaleEpochDropped(t *testing.T) {
	th := startHost(t)
	th.ready()

	rec := testutil.NewRecorder()
	th.d.Hookup("x", rec)
	th.expectControl(envelope.TypeHookup)

	th.deliver(7, "stale", 0)
	th.waitCounter(telemetry.MetricHostStaleCount, 1)
	assert.Zero(t, rec.Len())
}

func TestDispatcher_RefusedSends(t *testing.T) {
	th := startHost(t)
	th.ready()

	assert.Empty(t, th.d.Message(Outgoing{Recipient: "engine", Data: msg("x")}))
	assert.Empty(t, th.d.Message(Outgoing{Recipient: " HOST ", Data: msg("x")}))
	assert.Empty(t, th.d.Message(Outgoing{Recipient: "inbox"}), "missing type")
	assert.Empty(t, th.d.Reply(Outgoing{Data: msg("x")}), "missing reply id")
	assert.Empty(t, th.d.ReplyAll(Outgoing{Data: msg("x")}), "missing reply id")
	th.expectQuiet()
}

func TestDispatcher_Replies(t *testing.T) {
	th := startHost(t)
	th.ready()

	th.d.Reply(Outgoing{ReplyID: "r-1", Data: msg("answer")})
	env := th.recv()
	assert.Equal(t, "r-1", env.ReplyID)
	assert.False(t, env.ReplyAll)
	assert.Empty(t, env.Recipient)

	th.d.ReplyAll(Outgoing{ReplyID: "r-1", Data: msg("answer"), MaxAttempts: envelope.Unlimited})
	env = th.recv()
	assert.True(t, env.ReplyAll)
	assert.Equal(t, envelope.Unlimited, env.MaxAttempts)
}

func TestDispatcher_UnloadBypassesQueue(t *testing.T) {
	th := startHost(t)
	th.d.Hookup("x", testutil.NewRecorder())

	th.d.Unload()
	th.expectControl(envelope.TypeUnload)
	assert.Equal(t, 1, th.d.Stats().Queued)
}

func TestDispatcher_RunReturnsOnClose(t *testing.T) {
	th := startHost(t)
	require.NoError(t, th.engine.Close())

	select {
	case err := <-th.done:
		assert.NoError(t, err)
		th.done <- err
	case <-time.After(recvTimeout):
		t.Fatal("Run did not return")
	}
}

func TestDispatcher_SkipsUndecodableFrames(t *testing.T) {
	th := startHost(t)
	require.NoError(t, th.engine.SendRaw([]byte("{not json")))
	th.ready()
}
