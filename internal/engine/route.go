package engine

import (
	"log/slog"

	"github.com/roach88/switchboard/internal/envelope"
	"github.com/roach88/switchboard/internal/registry"
	"github.com/roach88/switchboard/internal/store"
	"github.com/roach88/switchboard/internal/telemetry"
)

// resolve runs one resolution attempt for env. p is the retry queue entry
// when the attempt comes from a tick, nil for a fresh message.
//
//  1. append a history row (best-effort)
//  2. reply path: look up the correlation record, then resume in
//     resumeReply; otherwise resolve the recipient name
//  3. settle: deliver, retry or drop
func (e *Engine) resolve(env envelope.Envelope, p *pending) {
	e.sink.IncrCounter(telemetry.MetricEngineResolveCount, 1)
	e.recordHistory(env, env.Attempts+1)

	if env.ReplyID != "" {
		if p != nil {
			p.inflight = true
		}
		queued := e.worker.submit(lookupJob(env.ReplyID, func(rec store.ReplyRecord, found bool) {
			e.queue.Enqueue(Event{
				Type:     EventReplyResolved,
				Envelope: env,
				Reply:    rec,
				Found:    found,
				Pending:  p,
			})
		}))
		if !queued {
			if p != nil {
				p.inflight = false
			}
			e.settle(env, nil, "", p)
		}
		return
	}

	e.settle(env, e.registry.Resolve(env.Recipient), envelope.Normalize(env.Recipient), p)
}

// resumeReply finishes a reply-path attempt once its correlation record is
// known. The sender is resolved by uid, never by name, so a reply reaches
// the inbox that sent the original even after compaction moved it.
func (e *Engine) resumeReply(ev Event) {
	p := ev.Pending
	if p != nil {
		if p.removed {
			return
		}
		p.inflight = false
	}

	var (
		slots []int
		group string
	)
	if ev.Found {
		slots = e.registry.ResolveUID(ev.Reply.SenderID)
		if ev.Envelope.ReplyAll {
			group = ev.Reply.Recipient
			slots = registry.Union(slots, e.registry.Resolve(group))
		}
	} else {
		e.logger.Debug("reply id has no correlation record",
			telemetry.LabelReplyID.L(ev.Envelope.ReplyID),
		)
	}

	e.settle(ev.Envelope, slots, group, p)
}

// settle delivers, queues or drops one attempt. group is the recipient name
// persisted with a new correlation record; a reply-all carries the original
// group forward so the conversation keeps reaching it.
func (e *Engine) settle(env envelope.Envelope, slots []int, group string, p *pending) {
	if len(slots) > 0 {
		e.deliver(env, slots, group)
		if p != nil {
			e.retry.remove(p)
			e.sink.SetGauge(telemetry.MetricEngineRetryQueueSize, float32(e.retry.len()))
		}
		return
	}

	if p != nil {
		p.env.Attempts++
		if p.env.Attempts >= p.env.MaxAttempts {
			e.retry.remove(p)
			e.sink.IncrCounter(telemetry.MetricEnginePurgedCount, 1)
			e.sink.SetGauge(telemetry.MetricEngineRetryQueueSize, float32(e.retry.len()))
			e.logger.Debug("retries exhausted, message purged",
				telemetry.LabelMessageID.L(p.env.MessageID),
				telemetry.LabelRecipient.L(p.env.Recipient),
				telemetry.LabelAttempt.L(p.env.Attempts),
			)
		}
		return
	}

	if env.MaxAttempts > 1 && env.MessageID != "" {
		env.Attempts = 1
		e.retry.add(env)
		e.sink.IncrCounter(telemetry.MetricEngineRetriedCount, 1)
		e.sink.SetGauge(telemetry.MetricEngineRetryQueueSize, float32(e.retry.len()))
		e.logger.Debug("no recipient, queued for retry",
			telemetry.LabelMessageID.L(env.MessageID),
			telemetry.LabelRecipient.L(env.Recipient),
		)
		return
	}

	e.sink.IncrCounter(telemetry.MetricEngineDroppedCount, 1)
	e.logger.Debug("no recipient, message dropped",
		telemetry.LabelMessageID.L(env.MessageID),
		telemetry.LabelRecipient.L(env.Recipient),
	)
}

// deliver posts one delivery envelope for all resolved slots. When the
// message names its sender, a fresh correlation id is minted, persisted and
// injected so the recipients can reply.
func (e *Engine) deliver(env envelope.Envelope, slots []int, group string) {
	msg, _ := env.Message()

	if env.SenderID != "" {
		replyID := e.ids.Generate()
		e.worker.submit(replyJob(store.ReplyRecord{
			ReplyID:   replyID,
			Recipient: group,
			SenderID:  env.SenderID,
		}))
		msg = msg.WithReplyID(replyID)
	}

	out := envelope.Envelope{
		SenderID:    env.SenderID,
		MessageID:   env.MessageID,
		MaxAttempts: 1,
		Slots:       slots,
		Epoch:       e.registry.Epoch(),
		Data:        msg,
	}
	if err := e.send(out); err != nil {
		e.logger.Warn("delivery not posted",
			telemetry.LabelError.L(err),
			telemetry.LabelMessageID.L(env.MessageID),
		)
		return
	}

	e.sink.IncrCounter(telemetry.MetricEngineDeliveredCount, 1)
	e.logger.Debug("delivered",
		telemetry.LabelMessageID.L(env.MessageID),
		telemetry.LabelSlots.L(slots),
		telemetry.LabelEpoch.L(out.Epoch),
	)
}

// retryTick re-attempts every queued message without an attempt in flight.
func (e *Engine) retryTick() {
	e.retry.fired()
	for _, p := range e.retry.due() {
		if p.removed {
			continue
		}
		e.resolve(p.env, p)
	}
	e.retry.arm()
	e.logger.Debug("retry tick", telemetry.LabelCount.L(e.retry.len()), slog.Bool("idle", e.retry.idle()))
}

func (e *Engine) recordHistory(env envelope.Envelope, attempt int) {
	data, err := envelope.MarshalPayload(env.Data)
	if err != nil {
		data = nil
	}
	e.worker.submit(historyJob(store.HistoryRecord{
		Seq:        e.clock.Next(),
		MessageUID: env.MessageID,
		Recipient:  env.Recipient,
		SenderID:   env.SenderID,
		Data:       data,
		Attempt:    attempt,
	}))
}
