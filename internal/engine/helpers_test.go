package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/stretchr/testify/require"

	"github.com/roach88/switchboard/internal/envelope"
	"github.com/roach88/switchboard/internal/testutil"
	"github.com/roach88/switchboard/internal/transport"
)

const recvTimeout = 2 * time.Second

// testEngine runs an Engine against a pipe; the test plays the host.
type testEngine struct {
	t    *testing.T
	eng  *Engine
	host *transport.Endpoint
	sink *metrics.InmemSink
	dir  string

	done     chan error
	stopOnce sync.Once
	runErr   error
}

// quietSettings never fires timers on its own; tests inject ticks.
func quietSettings(t *testing.T) Settings {
	return Settings{
		RetryInterval:       time.Hour,
		StoreDir:            t.TempDir(),
		LowMemoryClass:      4,
		LowMemoryCompaction: time.Hour,
		Compaction:          time.Hour,
		Ping:                time.Hour,
	}
}

func startEngine(t *testing.T, settings Settings) *testEngine {
	t.Helper()

	engEnd, hostEnd := transport.Pipe()
	sink := testutil.NewSink()
	eng := New(engEnd, settings,
		WithMetricSink(sink),
		WithIDGenerator(envelope.NewSequenceGenerator("id")),
	)

	te := &testEngine{
		t:    t,
		eng:  eng,
		host: hostEnd,
		sink: sink,
		dir:  settings.StoreDir,
		done: make(chan error, 1),
	}
	go func() { te.done <- eng.Run(context.Background()) }()

	t.Cleanup(func() {
		_ = te.host.Send(envelope.Control(envelope.EngineRecipient, envelope.Unload{}))
		te.wait()
	})

	te.expectControl(envelope.WorkerReady{})
	return te
}

// wait blocks until Run returns and reports its error.
func (te *testEngine) wait() error {
	te.stopOnce.Do(func() {
		select {
		case te.runErr = <-te.done:
		case <-time.After(recvTimeout):
			te.t.Error("engine did not stop")
		}
	})
	return te.runErr
}

func (te *testEngine) control(p envelope.Payload) {
	te.t.Helper()
	require.NoError(te.t, te.host.Send(envelope.Control(envelope.EngineRecipient, p)))
}

func (te *testEngine) hookup(name, uid string, slot int) {
	te.t.Helper()
	te.control(envelope.Hookup{Name: name, UID: uid, Slot: slot})
}

func (te *testEngine) send(env envelope.Envelope) {
	te.t.Helper()
	require.NoError(te.t, te.host.Send(env))
}

// inject bypasses the transport; events injected from the test goroutine
// are processed in injection order.
func (te *testEngine) inject(ev Event) {
	te.t.Helper()
	require.True(te.t, te.eng.Enqueue(ev))
}

func (te *testEngine) injectControl(p envelope.Payload) {
	te.inject(Event{Type: EventInbound, Envelope: envelope.Control(envelope.EngineRecipient, p)})
}

func (te *testEngine) tick() {
	te.inject(Event{Type: EventRetryTick})
}

func (te *testEngine) recv() envelope.Envelope {
	te.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), recvTimeout)
	defer cancel()
	env, err := te.host.Recv(ctx)
	require.NoError(te.t, err)
	return env
}

func (te *testEngine) expectControl(want envelope.Payload) {
	te.t.Helper()
	env := te.recv()
	require.Equal(te.t, envelope.HostRecipient, env.Recipient)
	require.Equal(te.t, want, env.Data)
}

func (te *testEngine) expectDelivery() (envelope.Envelope, envelope.Message) {
	te.t.Helper()
	env := te.recv()
	require.True(te.t, env.IsDelivery(), "expected delivery, got %+v", env)
	msg, ok := env.Message()
	require.True(te.t, ok)
	return env, msg
}

func (te *testEngine) expectQuiet(d time.Duration) {
	te.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	env, err := te.host.Recv(ctx)
	require.ErrorIs(te.t, err, context.DeadlineExceeded, "unexpected envelope %+v", env)
}

func (te *testEngine) counter(key []string) int {
	return testutil.Counter(te.sink, key)
}

func (te *testEngine) waitCounter(key []string, want int) {
	te.t.Helper()
	require.Eventually(te.t, func() bool {
		return te.counter(key) == want
	}, recvTimeout, time.Millisecond, "%s never reached %d (now %d)", strings.Join(key, "."), want, te.counter(key))
}

func message(recipient, kind, messageID string, maxAttempts int) envelope.Envelope {
	return envelope.Envelope{
		Recipient:   recipient,
		MessageID:   messageID,
		MaxAttempts: maxAttempts,
		Data:        envelope.Message{Kind: kind},
	}
}
