// Package dispatch implements the host side of the bus: it owns the inbox
// callbacks, buffers sends until the engine is ready, fans deliveries out to
// inboxes and runs the compaction round trip.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-metrics"

	"github.com/roach88/switchboard/internal/envelope"
	"github.com/roach88/switchboard/internal/telemetry"
	"github.com/roach88/switchboard/internal/transport"
)

// Conn is the dispatcher's end of the transport.
type Conn interface {
	Send(env envelope.Envelope) error
	Recv(ctx context.Context) (envelope.Envelope, error)
}

// Outgoing is an application send. Recipient is used by Message, ReplyID by
// Reply and ReplyAll.
type Outgoing struct {
	Recipient   string
	ReplyID     string
	Data        envelope.Message
	SenderID    string
	MaxAttempts int
}

// Stats is a point-in-time view of dispatcher state.
type Stats struct {
	Ready      bool
	Compacting bool
	Queued     int
	Slots      int
	Live       int
	Epoch      uint64
}

// Dispatcher is the host dispatcher. All methods are safe for concurrent use;
// inbox callbacks run on the goroutine calling Run, outside any lock.
type Dispatcher struct {
	conn   Conn
	logger *slog.Logger
	sink   metrics.MetricSink
	ids    envelope.IDGenerator
	probe  Probe

	mu             sync.Mutex
	inboxes        []*slot
	outbox         []envelope.Envelope
	ready          bool
	allowMessaging bool
	compacting     bool
	epoch          uint64
	// pendingRemap translates slots of deliveries resolved before the
	// engine applied the current compaction.
	pendingRemap map[int]int

	readyCh chan struct{}
	// delivering is set while inbox callbacks run.
	delivering atomic.Bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = telemetry.LoggerOrDiscard(logger)
	}
}

func WithMetricSink(sink metrics.MetricSink) Option {
	return func(d *Dispatcher) {
		d.sink = telemetry.SinkOrBlackhole(sink)
	}
}

// WithIDGenerator sets the generator for inbox uids and message ids.
func WithIDGenerator(ids envelope.IDGenerator) Option {
	return func(d *Dispatcher) {
		if ids != nil {
			d.ids = ids
		}
	}
}

// WithProbe sets the capability probe sent after readiness.
func WithProbe(p Probe) Option {
	return func(d *Dispatcher) {
		if p != nil {
			d.probe = p
		}
	}
}

// New creates a dispatcher sending on conn. Call Run to start receiving.
func New(conn Conn, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		conn:           conn,
		logger:         telemetry.DiscardLogger(),
		sink:           &metrics.BlackholeSink{},
		ids:            envelope.UUIDv7Generator{},
		probe:          StaticProbe{MemoryClass: 8},
		allowMessaging: true,
		readyCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(slog.String("component", "dispatch"))
	return d
}

// Ready is closed once the engine's readiness signal has been handled.
func (d *Dispatcher) Ready() <-chan struct{} {
	return d.readyCh
}

// Stats returns a snapshot of the dispatcher state.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	live := 0
	for _, s := range d.inboxes {
		if !s.disconnected {
			live++
		}
	}
	return Stats{
		Ready:      d.ready,
		Compacting: d.compacting,
		Queued:     len(d.outbox),
		Slots:      len(d.inboxes),
		Live:       live,
		Epoch:      d.epoch,
	}
}

// Hookup registers inbox under name and returns its uid. The inbox takes the
// next slot; the engine learns about it asynchronously.
func (d *Dispatcher) Hookup(name string, inbox Inbox) string {
	uid := d.ids.Generate()

	d.mu.Lock()
	defer d.mu.Unlock()

	idx := len(d.inboxes)
	d.inboxes = append(d.inboxes, &slot{uid: uid, name: name, inbox: inbox})
	d.sendLocked(envelope.Control(envelope.EngineRecipient, envelope.Hookup{
		Name: name,
		Slot: idx,
		UID:  uid,
	}))

	d.logger.Debug("inbox hooked up",
		telemetry.LabelRecipient.L(name),
		telemetry.LabelSlot.L(idx),
		telemetry.LabelUID.L(uid),
	)
	return uid
}

// Disconnect retires the inbox with the given uid. Its slot stays in place
// with a no-op callback until the next compaction. Unknown uids are ignored.
func (d *Dispatcher) Disconnect(uid string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if idx := d.findLocked(uid); idx >= 0 {
		d.disconnectLocked(idx)
	}
}

// Message sends o.Data to every inbox registered under o.Recipient and
// returns the message id. Sends to reserved names are refused and return "".
func (d *Dispatcher) Message(o Outgoing) string {
	if envelope.IsReserved(o.Recipient) {
		d.logger.Warn("refusing application message to reserved recipient",
			telemetry.LabelRecipient.L(o.Recipient),
		)
		return ""
	}
	return d.submit(envelope.Envelope{Recipient: o.Recipient}, o)
}

// Reply sends o.Data back to the sender of the message that carried
// o.ReplyID.
func (d *Dispatcher) Reply(o Outgoing) string {
	return d.reply(o, false)
}

// ReplyAll is Reply plus every inbox still registered under the original
// recipient name.
func (d *Dispatcher) ReplyAll(o Outgoing) string {
	return d.reply(o, true)
}

func (d *Dispatcher) reply(o Outgoing, all bool) string {
	if o.ReplyID == "" {
		d.logger.Warn("reply without reply id dropped", telemetry.LabelType.L(o.Data.Kind))
		return ""
	}
	return d.submit(envelope.Envelope{ReplyID: o.ReplyID, ReplyAll: all}, o)
}

func (d *Dispatcher) submit(env envelope.Envelope, o Outgoing) string {
	if o.Data.Kind == "" {
		d.logger.Warn("message without type dropped", telemetry.LabelRecipient.L(o.Recipient))
		return ""
	}

	env.SenderID = o.SenderID
	env.MessageID = d.ids.Generate()
	env.MaxAttempts = envelope.CoerceMaxAttempts(o.MaxAttempts)
	env.Data = o.Data.Clone()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.sendLocked(env)
	return env.MessageID
}

// Compact drops disconnected slots from the inbox list and sends the
// resulting slot mapping to the engine. Sends queue until the engine
// acknowledges. It reports whether a compaction was started; it is skipped
// before readiness or while one is already running.
func (d *Dispatcher) Compact() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.ready || d.compacting {
		return false
	}

	kept := make([]*slot, 0, len(d.inboxes))
	updates := make([]envelope.AddressUpdate, 0, len(d.inboxes))
	remap := make(map[int]int, len(d.inboxes))
	for old, s := range d.inboxes {
		if s.disconnected {
			continue
		}
		updates = append(updates, envelope.AddressUpdate{Old: old, New: len(kept)})
		remap[old] = len(kept)
		kept = append(kept, s)
	}
	removed := len(d.inboxes) - len(kept)

	d.inboxes = kept
	d.compacting = true
	d.allowMessaging = false
	d.pendingRemap = remap
	d.epoch++

	d.sink.IncrCounter(telemetry.MetricHostCompactionCount, 1)
	d.logger.Debug("compaction started",
		telemetry.LabelEpoch.L(d.epoch),
		telemetry.LabelCount.L(removed),
	)

	d.sendDirectLocked(envelope.Control(envelope.EngineRecipient, envelope.UpdateAddresses{Addresses: updates}))
	return true
}

// Unload tells the engine to discard its store and stop. It bypasses the
// outbound queue.
func (d *Dispatcher) Unload() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sendDirectLocked(envelope.Control(envelope.EngineRecipient, envelope.Unload{}))
}

// Run receives from the engine until the transport closes (returns nil) or
// ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		env, err := d.conn.Recv(ctx)
		if err != nil {
			var de *transport.DecodeError
			if errors.As(err, &de) {
				d.logger.Warn("undecodable envelope from engine", telemetry.LabelError.L(err))
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		d.handle(env)
	}
}

func (d *Dispatcher) handle(env envelope.Envelope) {
	switch {
	case env.IsControl():
		d.handleControl(env)
	case env.IsDelivery():
		d.fanOut(env)
	default:
		d.logger.Warn("unexpected envelope from engine",
			telemetry.LabelRecipient.L(env.Recipient),
			telemetry.LabelMessageID.L(env.MessageID),
		)
	}
}

func (d *Dispatcher) handleControl(env envelope.Envelope) {
	if envelope.Normalize(env.Recipient) != envelope.HostRecipient {
		d.logger.Warn("control envelope for another recipient ignored", telemetry.LabelRecipient.L(env.Recipient))
		return
	}

	switch env.Data.(type) {
	case envelope.WorkerReady:
		d.handleReady()
	case envelope.CompactionComplete:
		d.handleCompactionComplete()
	case envelope.RequestCompaction:
		if !d.Compact() {
			d.logger.Debug("compaction request skipped")
		}
	case envelope.Ping:
		d.logger.Debug("ping")
	default:
		typ := ""
		if env.Data != nil {
			typ = env.Data.Type()
		}
		d.logger.Warn("unknown control type ignored", telemetry.LabelType.L(typ))
	}
}

// handleReady flushes the outbound queue exactly once and sends the
// capability probe.
func (d *Dispatcher) handleReady() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ready {
		d.logger.Debug("duplicate readiness signal ignored")
		return
	}
	d.ready = true

	flushed := d.flushLocked()
	d.sendDirectLocked(envelope.Control(envelope.EngineRecipient, d.probe.Probe()))
	close(d.readyCh)

	d.logger.Debug("engine ready", telemetry.LabelCount.L(flushed))
}

func (d *Dispatcher) handleCompactionComplete() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.compacting {
		d.logger.Debug("unexpected compaction acknowledgement ignored")
		return
	}
	d.compacting = false
	d.pendingRemap = nil

	flushed := d.flushLocked()
	d.logger.Debug("compaction complete",
		telemetry.LabelEpoch.L(d.epoch),
		telemetry.LabelCount.L(flushed),
	)
}

// target is one resolved inbox for a delivery.
type target struct {
	slot  int
	uid   string
	inbox Inbox
}

func (d *Dispatcher) fanOut(env envelope.Envelope) {
	msg, _ := env.Message()
	targets := d.targets(env)

	d.delivering.Store(true)
	defer d.delivering.Store(false)
	for _, tg := range targets {
		d.sink.IncrCounter(telemetry.MetricHostInvokedCount, 1)
		if err := invoke(tg.inbox, msg.Clone()); err != nil {
			d.evict(tg.uid, err)
		}
	}
}

// targets maps a delivery's slots to live inboxes, translating slots
// resolved against the previous epoch while a compaction is in flight.
func (d *Dispatcher) targets(env envelope.Envelope) []target {
	d.mu.Lock()
	defer d.mu.Unlock()

	slots := env.Slots
	if env.Epoch != d.epoch {
		if d.pendingRemap == nil || env.Epoch+1 != d.epoch {
			d.sink.IncrCounter(telemetry.MetricHostStaleCount, 1)
			d.logger.Warn("delivery for unknown epoch dropped",
				telemetry.LabelEpoch.L(env.Epoch),
				telemetry.LabelMessageID.L(env.MessageID),
			)
			return nil
		}
		translated := make([]int, 0, len(slots))
		for _, s := range slots {
			if n, ok := d.pendingRemap[s]; ok {
				translated = append(translated, n)
			}
		}
		slots = translated
	}

	out := make([]target, 0, len(slots))
	for _, s := range slots {
		if s < 0 || s >= len(d.inboxes) {
			continue
		}
		entry := d.inboxes[s]
		if entry.disconnected || entry.inbox == nil {
			continue
		}
		out = append(out, target{slot: s, uid: entry.uid, inbox: entry.inbox})
	}
	return out
}

// Delivering reports whether an inbox callback is running.
func (d *Dispatcher) Delivering() bool {
	return d.delivering.Load()
}

// invoke calls the inbox, turning a panic into an error.
func invoke(inbox Inbox, msg envelope.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("inbox panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return inbox.OnMessage(msg)
}

func (d *Dispatcher) evict(uid string, cause error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.findLocked(uid)
	if idx < 0 {
		return
	}
	d.sink.IncrCounter(telemetry.MetricHostEvictedCount, 1)
	d.logger.Warn("inbox failed, evicting",
		telemetry.LabelUID.L(uid),
		telemetry.LabelSlot.L(idx),
		telemetry.LabelError.L(cause),
	)
	d.disconnectLocked(idx)
}

func (d *Dispatcher) findLocked(uid string) int {
	for i, s := range d.inboxes {
		if s.uid == uid && !s.disconnected {
			return i
		}
	}
	return -1
}

func (d *Dispatcher) disconnectLocked(idx int) {
	s := d.inboxes[idx]
	s.disconnected = true
	s.inbox = nil
	d.sendLocked(envelope.Control(envelope.EngineRecipient, envelope.Disconnect{Slot: idx, UID: s.uid}))
}

// sendLocked sends env now, or queues it while the engine is not ready or a
// compaction is in flight.
func (d *Dispatcher) sendLocked(env envelope.Envelope) {
	if !d.ready || !d.allowMessaging {
		d.outbox = append(d.outbox, env)
		d.sink.IncrCounter(telemetry.MetricHostQueuedCount, 1)
		return
	}
	d.sendDirectLocked(env)
}

func (d *Dispatcher) sendDirectLocked(env envelope.Envelope) {
	if err := d.conn.Send(env); err != nil {
		d.logger.Debug("send failed",
			telemetry.LabelError.L(err),
			telemetry.LabelType.L(env.Data.Type()),
		)
	}
}

// flushLocked resumes direct sends and drains the outbound queue in order.
func (d *Dispatcher) flushLocked() int {
	d.allowMessaging = true
	queued := d.outbox
	d.outbox = nil
	for _, env := range queued {
		d.sendDirectLocked(env)
	}
	return len(queued)
}
