package switchboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/switchboard/internal/config"
	"github.com/roach88/switchboard/internal/dispatch"
	"github.com/roach88/switchboard/internal/engine"
	"github.com/roach88/switchboard/internal/envelope"
	"github.com/roach88/switchboard/internal/store"
	"github.com/roach88/switchboard/internal/telemetry"
	"github.com/roach88/switchboard/internal/transport"
)

type (
	// Inbox receives messages for the name it is hooked up under.
	Inbox = dispatch.Inbox
	// InboxFunc adapts a function to Inbox.
	InboxFunc = dispatch.InboxFunc
	// Outgoing describes an application send.
	Outgoing = dispatch.Outgoing
	// Stats is a snapshot of the host dispatcher.
	Stats = dispatch.Stats
	// Probe reports host capabilities to the engine.
	Probe = dispatch.Probe
	// StaticProbe reports fixed capabilities.
	StaticProbe = dispatch.StaticProbe
	// Message is an application payload.
	Message = envelope.Message
	// IDGenerator mints identifiers.
	IDGenerator = envelope.IDGenerator
	// HistoryRecord is one logged resolution attempt.
	HistoryRecord = store.HistoryRecord
)

// Unlimited retries a message until a recipient registers.
const Unlimited = envelope.Unlimited

// ErrClosed is returned by Open when the engine stops before it is ready.
var ErrClosed = errors.New("switchboard: closed")

// Bus is a running message bus. Every method is safe for concurrent use.
type Bus struct {
	host   *dispatch.Dispatcher
	engine *engine.Engine
	conn   *transport.Endpoint
	logger *slog.Logger
	cancel context.CancelFunc

	engineDone chan error
	hostDone   chan error

	closeOnce sync.Once
	closeErr  error
}

// Open starts a bus and waits until the engine is ready. ctx bounds startup
// only; the bus runs until Close.
func Open(ctx context.Context, opts ...Option) (*Bus, error) {
	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.cfg == nil {
		o.cfg = config.Default()
	}
	if errs := o.cfg.Validate(); len(errs) > 0 {
		return nil, config.ValidationErrors(errs)
	}

	logger := telemetry.LoggerOrDiscard(o.logger)
	sink := telemetry.SinkOrBlackhole(o.sink)
	ids := o.ids
	if ids == nil {
		ids = envelope.UUIDv7Generator{}
	}
	probe := o.probe
	if probe == nil {
		probe = dispatch.StaticProbe{
			MemoryClass:  o.cfg.Probe.MemoryClass,
			SlowPlatform: o.cfg.Probe.SlowPlatform,
		}
	}

	settings := engine.SettingsFromConfig(o.cfg)
	if o.storeDir != "" {
		settings.StoreDir = o.storeDir
	}
	if o.memory {
		settings.MemoryOnly = true
	}

	engEnd, hostEnd := transport.Pipe()
	b := &Bus{
		engine: engine.New(engEnd, settings,
			engine.WithLogger(logger),
			engine.WithMetricSink(sink),
			engine.WithIDGenerator(ids),
		),
		host: dispatch.New(hostEnd,
			dispatch.WithLogger(logger),
			dispatch.WithMetricSink(sink),
			dispatch.WithIDGenerator(ids),
			dispatch.WithProbe(probe),
		),
		conn:       hostEnd,
		logger:     logger,
		engineDone: make(chan error, 1),
		hostDone:   make(chan error, 1),
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	go func() { b.engineDone <- b.engine.Run(runCtx) }()
	go func() { b.hostDone <- b.host.Run(runCtx) }()

	select {
	case <-b.host.Ready():
		logger.Debug("bus open", telemetry.LabelSession.L(b.engine.SessionID()))
		return b, nil
	case err := <-b.engineDone:
		b.engineDone <- err
		_ = b.Close()
		if err == nil {
			err = ErrClosed
		}
		return nil, fmt.Errorf("switchboard: engine stopped during startup: %w", err)
	case <-ctx.Done():
		_ = b.Close()
		return nil, ctx.Err()
	}
}

// SessionID identifies the engine's log store.
func (b *Bus) SessionID() string {
	return b.engine.SessionID()
}

// Hookup registers inbox under name and returns its uid.
func (b *Bus) Hookup(name string, inbox Inbox) string {
	return b.host.Hookup(name, inbox)
}

// Disconnect retires the inbox with the given uid.
func (b *Bus) Disconnect(uid string) {
	b.host.Disconnect(uid)
}

// Message sends o.Data to every inbox registered under o.Recipient and
// returns its message id, or "" if the send was refused.
func (b *Bus) Message(o Outgoing) string {
	return b.host.Message(o)
}

// Reply sends o.Data to the sender of the message that carried o.ReplyID.
func (b *Bus) Reply(o Outgoing) string {
	return b.host.Reply(o)
}

// ReplyAll is Reply plus every inbox still registered under the original
// recipient name.
func (b *Bus) ReplyAll(o Outgoing) string {
	return b.host.ReplyAll(o)
}

// Compact drops disconnected inboxes and renumbers the rest. It reports
// whether a compaction was started.
func (b *Bus) Compact() bool {
	return b.host.Compact()
}

// Stats returns a snapshot of the host side.
func (b *Bus) Stats() Stats {
	return b.host.Stats()
}

// History returns every logged resolution attempt of one message. It is
// empty when the bus runs on the in-memory store.
func (b *Bus) History(ctx context.Context, messageID string) ([]HistoryRecord, error) {
	return b.engine.History(ctx, messageID)
}

// Close unloads the engine, which discards the session log, and waits for
// both halves to stop. Calling Close more than once returns the first
// result. Called from an inbox callback, Close returns once the engine has
// stopped; the dispatcher exits after the callback returns.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		b.host.Unload()

		engineErr := <-b.engineDone
		_ = b.conn.Close()
		var hostErr error
		if !b.host.Delivering() {
			hostErr = <-b.hostDone
		}
		b.cancel()

		b.closeErr = errors.Join(engineErr, hostErr)
		b.logger.Debug("bus closed", telemetry.LabelSession.L(b.engine.SessionID()))
	})
	return b.closeErr
}
