package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/stretchr/testify/require"

	"github.com/roach88/switchboard/internal/envelope"
	"github.com/roach88/switchboard/internal/testutil"
	"github.com/roach88/switchboard/internal/transport"
)

const recvTimeout = 2 * time.Second

// testHost runs a Dispatcher against a pipe; the test plays the engine.
type testHost struct {
	t      *testing.T
	d      *Dispatcher
	engine *transport.Endpoint
	sink   *metrics.InmemSink
	done   chan error
}

func startHost(t *testing.T, opts ...Option) *testHost {
	t.Helper()

	hostEnd, engEnd := transport.Pipe()
	sink := testutil.NewSink()
	opts = append([]Option{
		WithMetricSink(sink),
		WithIDGenerator(envelope.NewSequenceGenerator("id")),
	}, opts...)

	th := &testHost{
		t:      t,
		d:      New(hostEnd, opts...),
		engine: engEnd,
		sink:   sink,
		done:   make(chan error, 1),
	}
	go func() { th.done <- th.d.Run(context.Background()) }()

	t.Cleanup(func() {
		_ = hostEnd.Close()
		select {
		case <-th.done:
		case <-time.After(recvTimeout):
			t.Error("dispatcher did not stop")
		}
	})
	return th
}

// ready delivers the readiness signal and consumes the probe that follows.
func (th *testHost) ready() {
	th.t.Helper()
	th.control(envelope.WorkerReady{})
	select {
	case <-th.d.Ready():
	case <-time.After(recvTimeout):
		th.t.Fatal("dispatcher never became ready")
	}
	th.expectControl(envelope.TypeInit)
}

func (th *testHost) control(p envelope.Payload) {
	th.t.Helper()
	require.NoError(th.t, th.engine.Send(envelope.Control(envelope.HostRecipient, p)))
}

func (th *testHost) deliver(epoch uint64, kind string, slots ...int) {
	th.t.Helper()
	require.NoError(th.t, th.engine.Send(envelope.Envelope{
		MessageID:   "m-" + kind,
		MaxAttempts: 1,
		Slots:       slots,
		Epoch:       epoch,
		Data:        envelope.Message{Kind: kind, Fields: map[string]any{"n": "x"}},
	}))
}

func (th *testHost) recv() envelope.Envelope {
	th.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), recvTimeout)
	defer cancel()
	env, err := th.engine.Recv(ctx)
	require.NoError(th.t, err)
	return env
}

// expectControl receives the next envelope and checks it is a control of
// the given type addressed to the engine.
func (th *testHost) expectControl(typ string) envelope.Envelope {
	th.t.Helper()
	env := th.recv()
	require.Equal(th.t, envelope.EngineRecipient, env.Recipient)
	require.NotNil(th.t, env.Data)
	require.Equal(th.t, typ, env.Data.Type())
	return env
}

func (th *testHost) expectQuiet() {
	th.t.Helper()
	time.Sleep(20 * time.Millisecond)
	require.Zero(th.t, th.engine.Pending(), "unexpected envelope for engine")
}

func (th *testHost) waitCounter(key []string, want int) {
	th.t.Helper()
	require.Eventually(th.t, func() bool {
		return testutil.Counter(th.sink, key) >= want
	}, recvTimeout, time.Millisecond)
}

func msg(kind string) envelope.Message {
	return envelope.Message{Kind: kind}
}
