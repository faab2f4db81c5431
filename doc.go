// Package switchboard is an in-process message bus.
//
// Inboxes register under a name and receive every message sent to that name.
// Names are compared after trimming, Unicode normalization and case folding,
// so "Chat", " chat " and "CHAT" address the same inboxes.
//
// A Bus is two halves joined by a copying transport:
//
//   - the host dispatcher, which owns the inbox callbacks and buffers sends
//     until the engine is ready
//   - the routing engine, which owns the name registry, retries messages
//     whose recipient has not registered yet and keeps a per-session log of
//     every attempt and reply correlation
//
// Nothing crosses between them by reference. A message handed to Message is
// copied, and every inbox receives its own copy.
//
// # Replies
//
// A message sent with a SenderID is stamped with a fresh reply id before
// delivery. Passing that id to Reply routes a message back to the sender;
// ReplyAll also reaches every inbox still registered under the original
// recipient name.
//
// # Failure
//
// Send methods never return errors. Undeliverable messages are retried up to
// MaxAttempts times and then dropped. An inbox whose OnMessage returns an
// error or panics is disconnected.
package switchboard
