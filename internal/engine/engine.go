package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/hashicorp/go-metrics"

	"github.com/roach88/switchboard/internal/envelope"
	"github.com/roach88/switchboard/internal/registry"
	"github.com/roach88/switchboard/internal/store"
	"github.com/roach88/switchboard/internal/telemetry"
	"github.com/roach88/switchboard/internal/transport"
)

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("engine: already running")

// Conn is the engine's end of the transport.
type Conn interface {
	Send(env envelope.Envelope) error
	Recv(ctx context.Context) (envelope.Envelope, error)
}

// Engine is the single-writer routing engine.
//
// Thread-safety model:
//   - Enqueue, History: safe from any goroutine
//   - Run: must be called from exactly one goroutine
type Engine struct {
	conn      Conn
	settings  Settings
	logger    *slog.Logger
	sink      metrics.MetricSink
	ids       envelope.IDGenerator
	sessionID string

	clock    *Clock
	queue    *fifo[Event]
	worker   *storeWorker
	running  atomic.Bool
	registry *registry.Registry
	retry    *retryQueue
	sched    *schedule

	stopping bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = telemetry.LoggerOrDiscard(logger)
	}
}

// WithMetricSink sets where counters and gauges go.
func WithMetricSink(sink metrics.MetricSink) Option {
	return func(e *Engine) {
		e.sink = telemetry.SinkOrBlackhole(sink)
	}
}

// WithIDGenerator sets the generator for reply ids and the session id.
func WithIDGenerator(ids envelope.IDGenerator) Option {
	return func(e *Engine) {
		if ids != nil {
			e.ids = ids
		}
	}
}

// New creates an engine reading from conn. Nothing runs until Run.
func New(conn Conn, settings Settings, opts ...Option) *Engine {
	e := &Engine{
		conn:     conn,
		settings: settings.withDefaults(),
		logger:   telemetry.DiscardLogger(),
		sink:     &metrics.BlackholeSink{},
		ids:      envelope.UUIDv7Generator{},
		clock:    NewClock(),
		queue:    newFIFO[Event](),
		registry: registry.New(),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.logger = e.logger.With(slog.String("component", "engine"))
	e.sessionID = e.ids.Generate()
	e.worker = newStoreWorker(e.logger, e.sink)
	e.retry = newRetryQueue(e.settings.RetryInterval, func() {
		e.queue.Enqueue(Event{Type: EventRetryTick})
	})

	return e
}

// SessionID identifies this engine's log store.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// Enqueue submits an event for processing by the Run loop.
// Returns false if the engine has stopped.
func (e *Engine) Enqueue(ev Event) bool {
	return e.queue.Enqueue(ev)
}

// History returns the attempt rows recorded for messageUID. Rows written
// before the call are included. The in-memory fallback keeps no history.
func (e *Engine) History(ctx context.Context, messageUID string) ([]store.HistoryRecord, error) {
	result := make(chan []store.HistoryRecord, 1)
	if !e.worker.submit(historyQueryJob(messageUID, result)) {
		return nil, errors.New("engine: store worker stopped")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case recs, ok := <-result:
		if !ok {
			return nil, errors.New("engine: history unavailable")
		}
		return recs, nil
	}
}

// Run starts the event loop and blocks until the host sends Unload, the
// transport closes, or ctx is cancelled. The log store is
// destroyed on every exit path.
//
// ERROR HANDLING: a failing event is logged with its envelope context and
// the loop continues.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	e.logger.Info("engine starting", telemetry.LabelSession.L(e.sessionID))

	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()

	go e.worker.run(context.WithoutCancel(ctx))
	defer e.shutdown()

	e.worker.submit(openJob(e.settings, e.sessionID, func(fallback bool) {
		e.queue.Enqueue(Event{Type: EventStoreOpened, Fallback: fallback})
	}))

	go e.read(readCtx)

	for {
		if e.stopping {
			e.logger.Info("engine stopping: unloaded")
			return nil
		}

		event, ok := e.queue.TryDequeue()
		if ok {
			if err := e.processEvent(event); err != nil {
				e.logEventError(event, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			return ctx.Err()

		case <-e.queue.Wait():
			if e.queue.Drained() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

func (e *Engine) shutdown() {
	e.sched.stop()
	e.sched = nil
	e.retry.stop()
	e.sink.SetGauge(telemetry.MetricEngineRetryQueueSize, 0)

	e.worker.submit(destroyJob())
	e.worker.close()
	e.queue.Close()
}

// read pumps envelopes from the transport into the event queue.
func (e *Engine) read(ctx context.Context) {
	for {
		env, err := e.conn.Recv(ctx)
		if err != nil {
			var de *transport.DecodeError
			if errors.As(err, &de) {
				e.queue.Enqueue(Event{Type: EventMalformed, Err: err})
				continue
			}
			if ctx.Err() == nil {
				e.queue.Enqueue(Event{Type: EventTransportClosed, Err: err})
			}
			return
		}
		if !e.queue.Enqueue(Event{Type: EventInbound, Envelope: env}) {
			return
		}
	}
}

// processEvent routes an event to its handler.
// Called only from the Run goroutine.
func (e *Engine) processEvent(event Event) error {
	switch event.Type {
	case EventInbound:
		return e.handleInbound(event.Envelope)

	case EventMalformed:
		return NewMalformedError("", "", event.Err)

	case EventTransportClosed:
		e.logger.Info("transport closed", telemetry.LabelError.L(event.Err))
		e.stopping = true
		return nil

	case EventStoreOpened:
		e.logger.Debug("engine ready", slog.Bool("fallback", event.Fallback))
		return e.send(envelope.Control(envelope.HostRecipient, envelope.WorkerReady{}))

	case EventReplyResolved:
		e.resumeReply(event)
		return nil

	case EventRetryTick:
		e.retryTick()
		return nil

	case EventCompactionDue:
		return e.send(envelope.Control(envelope.HostRecipient, envelope.RequestCompaction{}))

	case EventPingDue:
		return e.send(envelope.Control(envelope.HostRecipient, envelope.Ping{}))

	default:
		return fmt.Errorf("unknown event type: %d", event.Type)
	}
}

func (e *Engine) handleInbound(env envelope.Envelope) error {
	if env.IsControl() {
		return e.handleControl(env)
	}

	if _, ok := env.Message(); !ok {
		return NewMalformedError(env.Recipient, env.MessageID, errors.New("application envelope without message payload"))
	}

	env.MaxAttempts = envelope.CoerceMaxAttempts(env.MaxAttempts)
	env.Attempts = 0
	e.resolve(env, nil)
	return nil
}

func (e *Engine) handleControl(env envelope.Envelope) error {
	typ := ""
	if env.Data != nil {
		typ = env.Data.Type()
	}
	if envelope.Normalize(env.Recipient) != envelope.EngineRecipient {
		return NewUnknownControlError(env.Recipient, typ)
	}

	switch p := env.Data.(type) {
	case envelope.Hookup:
		rec := e.registry.Register(p.Name, p.UID, p.Slot)
		e.logger.Debug("inbox registered",
			telemetry.LabelRecipient.L(rec.Name),
			telemetry.LabelSlot.L(rec.Slot),
			telemetry.LabelUID.L(rec.UID),
		)

	case envelope.Disconnect:
		rec, ok := e.registry.At(p.Slot)
		if !ok || (p.UID != "" && rec.UID != p.UID) {
			e.logger.Debug("disconnect for unknown slot ignored",
				telemetry.LabelSlot.L(p.Slot),
				telemetry.LabelUID.L(p.UID),
			)
			return nil
		}
		e.registry.Unregister(p.Slot)
		e.logger.Debug("inbox unregistered",
			telemetry.LabelSlot.L(p.Slot),
			telemetry.LabelUID.L(rec.UID),
		)

	case envelope.UpdateAddresses:
		moved, dropped := e.registry.Remap(p.Addresses)
		e.logger.Debug("addresses remapped",
			telemetry.LabelEpoch.L(e.registry.Epoch()),
			slog.Int("moved", moved),
			slog.Int("dropped", dropped),
		)
		return e.send(envelope.Control(envelope.HostRecipient, envelope.CompactionComplete{}))

	case envelope.Init:
		e.sched.stop()
		compaction, ping := planSchedule(e.settings, p)
		e.sched = startSchedule(compaction, ping, func(t EventType) {
			e.queue.Enqueue(Event{Type: t})
		})
		e.logger.Debug("background schedule started",
			slog.Int("memory_class", p.MemoryClass),
			slog.Bool("slow_platform", p.SlowPlatform),
			telemetry.LabelInterval.L(compaction),
		)

	case envelope.Unload:
		e.stopping = true

	default:
		return NewUnknownControlError(env.Recipient, typ)
	}

	return nil
}

func (e *Engine) send(env envelope.Envelope) error {
	if err := e.conn.Send(env); err != nil {
		return fmt.Errorf("send %s: %w", env.Data.Type(), err)
	}
	return nil
}

func (e *Engine) logEventError(event Event, err error) {
	env := event.Envelope
	attrs := []any{
		telemetry.LabelError.L(err),
		slog.String("event", event.Type.String()),
	}
	if env.Recipient != "" {
		attrs = append(attrs, telemetry.LabelRecipient.L(env.Recipient))
	}
	if env.MessageID != "" {
		attrs = append(attrs, telemetry.LabelMessageID.L(env.MessageID))
	}
	if env.ReplyID != "" {
		attrs = append(attrs, telemetry.LabelReplyID.L(env.ReplyID))
	}

	var re *RoutingError
	if errors.As(err, &re) {
		e.sink.IncrCounter(telemetry.MetricEngineRejectedCount, 1)
		attrs = append(attrs, telemetry.LabelCode.L(string(re.Code)))
		e.logger.Warn("envelope ignored", attrs...)
		return
	}
	e.logger.Error("event processing failed", attrs...)
}
