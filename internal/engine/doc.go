// Package engine implements the routing engine: the side of the bus that
// owns the address registry, the retry queue and the log store.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Every piece of engine state is owned by the goroutine running Run. Other
// goroutines only enqueue events:
//   - the transport reader (inbound envelopes from the host)
//   - the store worker (store opened, reply correlation looked up)
//   - timers (retry tick, background compaction and ping)
//
// Store Worker:
// Store I/O runs on a dedicated goroutine consuming a FIFO job queue. Because
// jobs run in submission order, a correlation record written while handling
// one envelope is visible to a lookup issued for any later envelope. The loop
// never blocks on the store; lookups resume through EventReplyResolved.
//
// Readiness:
// The store is opened by the first job. WorkerReady is posted to the host
// only once that job finishes, whether it produced a database or fell back
// to the in-memory store.
//
// ERROR HANDLING:
// Nothing is reported back to senders. Event failures are logged with the
// envelope's routing fields and the loop continues.
package engine
