// Package harness runs scripted scenarios against a live switchboard bus.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: reply_round_trip
//	description: "B answers A through the reply id minted for A's message"
//	config:
//	  retry_interval_ms: 10
//	steps:
//	  - hookup: { as: a, name: alice }
//	  - hookup: { as: b, name: bob }
//	  - message: { to: bob, from: a, type: ask }
//	  - wait: { inbox: b, count: 1 }
//	  - reply: { inbox: b, type: answer }
//	  - wait: { inbox: a, count: 1 }
//	assertions:
//	  - type: received
//	    inbox: a
//	    types: [answer]
//
// Every step sets exactly one of hookup, disconnect, message, reply,
// reply_all, compact, wait or sleep. Inboxes are referred to by the alias
// given in their hookup step.
//
// # Assertion Types
//
//   - received: the inbox received exactly these message types, in order
//   - received_count: the inbox received exactly N messages
//   - trace_order: these types appear in the delivery trace in order
//   - final_state: dispatcher stats (live, slots, queued) after the last step
//
// # Determinism
//
// The trace lists deliveries in the order the dispatcher invoked inboxes.
// Identifiers never appear in it, so traces are stable across runs and can
// be compared against golden files.
//
// Scenarios are validated twice: against the CUE schema in schema.cue, then
// with strict YAML decoding and reference checks.
package harness
