package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s <- %s\n", ev.Seq, ev.Inbox, ev.Type)
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertReceived:
			err = assertReceived(result, a)
		case AssertReceivedCount:
			err = assertReceivedCount(result, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func assertReceived(result *Result, a Assertion) error {
	got := result.Received(a.Inbox)
	want := a.Types
	if want == nil {
		want = []string{}
	}
	if slices.Equal(got, want) {
		return nil
	}
	return &AssertionError{
		Type:     AssertReceived,
		Expected: fmt.Sprintf("%s received %v", a.Inbox, want),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    result.Trace,
	}
}

func assertReceivedCount(result *Result, a Assertion) error {
	got := len(result.Received(a.Inbox))
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertReceivedCount,
		Expected: fmt.Sprintf("%d messages for %s", a.Count, a.Inbox),
		Actual:   fmt.Sprintf("%d messages", got),
		Trace:    result.Trace,
	}
}

// assertTraceOrder checks that the types appear as a subsequence of the
// trace; other deliveries may sit between them.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, ev := range trace {
		if next < len(a.Types) && ev.Type == a.Types[next] {
			next++
		}
	}
	if next == len(a.Types) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("types in order: %v", a.Types),
		Actual:   fmt.Sprintf("matched %d, missing %s", next, a.Types[next]),
		Trace:    trace,
	}
}

func assertFinalState(result *Result, a Assertion) error {
	var diffs []string
	check := func(name string, want *int, got int) {
		if want != nil && *want != got {
			diffs = append(diffs, fmt.Sprintf("%s=%d (want %d)", name, got, *want))
		}
	}
	check("live", a.Live, result.Stats.Live)
	check("slots", a.Slots, result.Stats.Slots)
	check("queued", a.Queued, result.Stats.Queued)

	if len(diffs) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: "dispatcher stats to match",
		Actual:   strings.Join(diffs, ", "),
		Trace:    result.Trace,
	}
}
