package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted run against a live bus.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config overrides bus defaults for this run.
	Config *ScenarioConfig `yaml:"config,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ScenarioConfig overrides the bus configuration.
type ScenarioConfig struct {
	RetryIntervalMs int  `yaml:"retry_interval_ms,omitempty"`
	MemoryOnly      bool `yaml:"memory_only,omitempty"`
	MemoryClass     *int `yaml:"memory_class,omitempty"`
	SlowPlatform    bool `yaml:"slow_platform,omitempty"`
}

// Step is one scenario action. Exactly one field is set.
type Step struct {
	Hookup     *HookupStep  `yaml:"hookup,omitempty"`
	Disconnect *InboxRef    `yaml:"disconnect,omitempty"`
	Message    *MessageStep `yaml:"message,omitempty"`
	Reply      *ReplyStep   `yaml:"reply,omitempty"`
	ReplyAll   *ReplyStep   `yaml:"reply_all,omitempty"`
	Compact    *struct{}    `yaml:"compact,omitempty"`
	Wait       *WaitStep    `yaml:"wait,omitempty"`
	Sleep      *SleepStep   `yaml:"sleep,omitempty"`
}

// Kind names the action the step performs.
func (s Step) Kind() string {
	var kinds []string
	if s.Hookup != nil {
		kinds = append(kinds, "hookup")
	}
	if s.Disconnect != nil {
		kinds = append(kinds, "disconnect")
	}
	if s.Message != nil {
		kinds = append(kinds, "message")
	}
	if s.Reply != nil {
		kinds = append(kinds, "reply")
	}
	if s.ReplyAll != nil {
		kinds = append(kinds, "reply_all")
	}
	if s.Compact != nil {
		kinds = append(kinds, "compact")
	}
	if s.Wait != nil {
		kinds = append(kinds, "wait")
	}
	if s.Sleep != nil {
		kinds = append(kinds, "sleep")
	}
	return strings.Join(kinds, "+")
}

// HookupStep registers an inbox. Fail makes it return an error or panic on
// every message.
type HookupStep struct {
	As   string `yaml:"as"`
	Name string `yaml:"name"`
	Fail string `yaml:"fail,omitempty"`
}

// InboxRef names an inbox by its alias.
type InboxRef struct {
	Inbox string `yaml:"inbox"`
}

// MessageStep sends to a name. From sets the sender to an inbox's uid.
type MessageStep struct {
	To          string         `yaml:"to"`
	From        string         `yaml:"from,omitempty"`
	Type        string         `yaml:"type"`
	Fields      map[string]any `yaml:"fields,omitempty"`
	MaxAttempts int            `yaml:"max_attempts,omitempty"`
}

// ReplyStep answers the Index-th message received by Inbox.
type ReplyStep struct {
	Inbox       string         `yaml:"inbox"`
	Index       int            `yaml:"index,omitempty"`
	From        string         `yaml:"from,omitempty"`
	Type        string         `yaml:"type"`
	Fields      map[string]any `yaml:"fields,omitempty"`
	MaxAttempts int            `yaml:"max_attempts,omitempty"`
}

// WaitStep blocks until Inbox has received Count messages.
type WaitStep struct {
	Inbox     string `yaml:"inbox"`
	Count     int    `yaml:"count"`
	TimeoutMs int    `yaml:"timeout_ms,omitempty"`
}

// SleepStep pauses the scenario.
type SleepStep struct {
	Ms int `yaml:"ms"`
}

// Assertion validates the trace or the final dispatcher state.
type Assertion struct {
	// Type is one of received, received_count, trace_order, final_state.
	Type string `yaml:"type"`

	Inbox string   `yaml:"inbox,omitempty"`
	Types []string `yaml:"types,omitempty"`
	Count int      `yaml:"count,omitempty"`

	// final_state; nil fields are not checked.
	Live   *int `yaml:"live,omitempty"`
	Slots  *int `yaml:"slots,omitempty"`
	Queued *int `yaml:"queued,omitempty"`
}

// Assertion type constants.
const (
	AssertReceived      = "received"
	AssertReceivedCount = "received_count"
	AssertTraceOrder    = "trace_order"
	AssertFinalState    = "final_state"
)

// Failure modes for HookupStep.Fail.
const (
	FailError = "error"
	FailPanic = "panic"
)

// ErrSchema is wrapped by LoadScenario when the file violates the schema.
var ErrSchema = errors.New("scenario does not match schema")

// LoadScenario reads a scenario file, checks it against the CUE schema,
// decodes it strictly (unknown fields are rejected) and checks inbox
// references.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario is LoadScenario for in-memory YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	if errs := ValidateSchema(data); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("%w: %s", ErrSchema, strings.Join(msgs, "; "))
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks what the schema cannot: one action per step and
// that every alias is hooked up before it is used.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	known := map[string]bool{}
	ref := func(i int, alias string) error {
		if alias != "" && !known[alias] {
			return fmt.Errorf("steps[%d]: inbox %q used before hookup", i, alias)
		}
		return nil
	}

	for i, step := range s.Steps {
		kind := step.Kind()
		if kind == "" || strings.Contains(kind, "+") {
			return fmt.Errorf("steps[%d]: exactly one action required, got %q", i, kind)
		}

		var err error
		switch {
		case step.Hookup != nil:
			if step.Hookup.As == "" {
				return fmt.Errorf("steps[%d]: hookup alias is required", i)
			}
			if known[step.Hookup.As] {
				return fmt.Errorf("steps[%d]: duplicate inbox alias %q", i, step.Hookup.As)
			}
			switch step.Hookup.Fail {
			case "", FailError, FailPanic:
			default:
				return fmt.Errorf("steps[%d]: unknown failure mode %q", i, step.Hookup.Fail)
			}
			known[step.Hookup.As] = true
		case step.Disconnect != nil:
			err = ref(i, step.Disconnect.Inbox)
		case step.Message != nil:
			err = ref(i, step.Message.From)
		case step.Reply != nil:
			err = errors.Join(ref(i, step.Reply.Inbox), ref(i, step.Reply.From))
		case step.ReplyAll != nil:
			err = errors.Join(ref(i, step.ReplyAll.Inbox), ref(i, step.ReplyAll.From))
		case step.Wait != nil:
			err = ref(i, step.Wait.Inbox)
		}
		if err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertReceived, AssertReceivedCount:
			if !known[a.Inbox] {
				return fmt.Errorf("assertions[%d]: unknown inbox %q", i, a.Inbox)
			}
		case AssertTraceOrder, AssertFinalState:
		default:
			return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
		}
	}
	return nil
}
