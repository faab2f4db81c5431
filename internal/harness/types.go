package harness

import "github.com/roach88/switchboard/internal/dispatch"

// TraceEvent is one inbox invocation.
type TraceEvent struct {
	Seq    int            `json:"seq"`
	Inbox  string         `json:"inbox"`
	Type   string         `json:"type"`
	Fields map[string]any `json:"fields,omitempty"`
	// Reply is set when the message carried a reply id.
	Reply bool `json:"reply,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every wait completed and every assertion held.
	Pass   bool           `json:"pass"`
	Trace  []TraceEvent   `json:"trace"`
	Errors []string       `json:"errors,omitempty"`
	Stats  dispatch.Stats `json:"-"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Received returns the types delivered to one inbox, in order.
func (r *Result) Received(inbox string) []string {
	out := []string{}
	for _, ev := range r.Trace {
		if ev.Inbox == inbox {
			out = append(out, ev.Type)
		}
	}
	return out
}
