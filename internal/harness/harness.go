package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/switchboard"
	"github.com/roach88/switchboard/internal/config"
	"github.com/roach88/switchboard/internal/envelope"
	"github.com/roach88/switchboard/internal/telemetry"
)

const defaultWaitTimeout = 2 * time.Second

// Harness executes one scenario against its own bus.
type Harness struct {
	bus    *switchboard.Bus
	logger *slog.Logger

	mu      sync.Mutex
	trace   []TraceEvent
	inboxes map[string]*inbox
}

// inbox records deliveries into the shared trace under its alias.
type inbox struct {
	h     *Harness
	alias string
	uid   string
	fail  string

	msgs []envelope.Message
}

var errInboxFailure = errors.New("scripted inbox failure")

// OnMessage runs on the dispatcher goroutine, so trace order is invocation
// order.
func (in *inbox) OnMessage(msg envelope.Message) error {
	in.h.mu.Lock()
	in.msgs = append(in.msgs, msg)
	in.h.trace = append(in.h.trace, TraceEvent{
		Seq:    len(in.h.trace) + 1,
		Inbox:  in.alias,
		Type:   msg.Kind,
		Fields: msg.Fields,
		Reply:  msg.ReplyID != "",
	})
	in.h.mu.Unlock()

	switch in.fail {
	case FailError:
		return errInboxFailure
	case FailPanic:
		panic(errInboxFailure)
	}
	return nil
}

func (in *inbox) received() int {
	in.h.mu.Lock()
	defer in.h.mu.Unlock()
	return len(in.msgs)
}

func (in *inbox) message(i int) (envelope.Message, bool) {
	in.h.mu.Lock()
	defer in.h.mu.Unlock()
	if i < 0 || i >= len(in.msgs) {
		return envelope.Message{}, false
	}
	return in.msgs[i], true
}

// Run is RunConfig on top of the built-in defaults.
func Run(ctx context.Context, scenario *Scenario, opts ...switchboard.Option) (*Result, error) {
	return RunConfig(ctx, config.Default(), scenario, opts...)
}

// RunConfig opens a bus configured by base plus the scenario's overrides,
// executes the steps, evaluates the assertions and closes the bus. opts are
// applied after the configuration.
//
// A returned error means the scenario could not be executed; failed waits
// and assertions are reported in Result.Errors.
func RunConfig(ctx context.Context, base *config.Config, scenario *Scenario, opts ...switchboard.Option) (*Result, error) {
	cfg := scenarioConfig(base, scenario.Config)

	logger := slog.New(slog.DiscardHandler)
	busOpts := []switchboard.Option{
		switchboard.WithConfig(cfg),
		switchboard.WithLogger(logger),
	}
	busOpts = append(busOpts, opts...)

	bus, err := switchboard.Open(ctx, busOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open bus: %w", err)
	}

	h := &Harness{
		bus:     bus,
		logger:  logger,
		trace:   []TraceEvent{},
		inboxes: map[string]*inbox{},
	}

	result := NewResult()
	stepErr := h.executeSteps(ctx, scenario.Steps, result)

	result.Stats = bus.Stats()
	closeErr := bus.Close()

	h.mu.Lock()
	result.Trace = append(result.Trace, h.trace...)
	h.mu.Unlock()

	if stepErr != nil {
		return nil, stepErr
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close bus: %w", closeErr)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func scenarioConfig(base *config.Config, sc *ScenarioConfig) *config.Config {
	cfg := *base
	if sc == nil {
		return &cfg
	}
	if sc.RetryIntervalMs > 0 {
		cfg.Engine.RetryIntervalMs = sc.RetryIntervalMs
	}
	if sc.MemoryOnly {
		cfg.Engine.MemoryOnly = true
	}
	if sc.MemoryClass != nil {
		cfg.Probe.MemoryClass = *sc.MemoryClass
	}
	if sc.SlowPlatform {
		cfg.Probe.SlowPlatform = true
	}
	return &cfg
}

// executeSteps runs steps in order. A wait that times out fails the result
// but the remaining steps still run.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		h.logger.Debug("step", slog.Int("index", i), slog.String("kind", step.Kind()))

		switch {
		case step.Hookup != nil:
			in := &inbox{h: h, alias: step.Hookup.As, fail: step.Hookup.Fail}
			h.inboxes[in.alias] = in
			in.uid = h.bus.Hookup(step.Hookup.Name, in)

		case step.Disconnect != nil:
			in, err := h.lookup(i, step.Disconnect.Inbox)
			if err != nil {
				return err
			}
			h.bus.Disconnect(in.uid)

		case step.Message != nil:
			m := step.Message
			h.bus.Message(switchboard.Outgoing{
				Recipient:   m.To,
				Data:        envelope.Message{Kind: m.Type, Fields: m.Fields},
				SenderID:    h.uidOf(m.From),
				MaxAttempts: m.MaxAttempts,
			})

		case step.Reply != nil, step.ReplyAll != nil:
			r, all := step.Reply, false
			if r == nil {
				r, all = step.ReplyAll, true
			}
			if err := h.reply(i, r, all, result); err != nil {
				return err
			}

		case step.Compact != nil:
			if !h.bus.Compact() {
				result.AddError(fmt.Sprintf("steps[%d]: compaction did not start", i))
				continue
			}
			h.waitFor(func() bool { return !h.bus.Stats().Compacting }, defaultWaitTimeout)

		case step.Wait != nil:
			w := step.Wait
			in, err := h.lookup(i, w.Inbox)
			if err != nil {
				return err
			}
			timeout := defaultWaitTimeout
			if w.TimeoutMs > 0 {
				timeout = time.Duration(w.TimeoutMs) * time.Millisecond
			}
			if !h.waitFor(func() bool { return in.received() >= w.Count }, timeout) {
				result.AddError(fmt.Sprintf("steps[%d]: inbox %s received %d of %d messages within %s",
					i, w.Inbox, in.received(), w.Count, timeout))
			}

		case step.Sleep != nil:
			time.Sleep(time.Duration(step.Sleep.Ms) * time.Millisecond)
		}
	}
	return nil
}

func (h *Harness) reply(i int, r *ReplyStep, all bool, result *Result) error {
	in, err := h.lookup(i, r.Inbox)
	if err != nil {
		return err
	}
	orig, ok := in.message(r.Index)
	if !ok || orig.ReplyID == "" {
		result.AddError(fmt.Sprintf("steps[%d]: inbox %s has no message %d to reply to", i, r.Inbox, r.Index))
		return nil
	}

	out := switchboard.Outgoing{
		ReplyID:     orig.ReplyID,
		Data:        envelope.Message{Kind: r.Type, Fields: r.Fields},
		SenderID:    h.uidOf(r.From),
		MaxAttempts: r.MaxAttempts,
	}
	if all {
		h.bus.ReplyAll(out)
	} else {
		h.bus.Reply(out)
	}
	return nil
}

func (h *Harness) lookup(i int, alias string) (*inbox, error) {
	in, ok := h.inboxes[alias]
	if !ok {
		return nil, fmt.Errorf("step %d: unknown inbox %q", i, alias)
	}
	return in, nil
}

func (h *Harness) uidOf(alias string) string {
	if in, ok := h.inboxes[alias]; ok {
		return in.uid
	}
	return ""
}

func (h *Harness) waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			h.logger.Warn("wait timed out", telemetry.LabelInterval.L(timeout))
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}
