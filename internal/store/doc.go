// Package store provides the routing engine's per-session log store.
//
// Two tables are kept:
//   - history: one row per resolution attempt, written whether or not a
//     recipient was found
//   - reply: correlation records letting a later reply resolve back to the
//     original sender
//
// # Lifetime
//
// A Store lives for one bus session. OpenSession derives a session-unique
// file name; Destroy closes the database and removes its files. Nothing
// survives the session.
//
// # Ordering
//
// History is read back ordered by seq (the engine's logical clock), never by
// wall time: ORDER BY seq ASC, id ASC.
//
// # Database Configuration
//
//   - WAL mode
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - a single connection, since there is exactly one writer
//
// MemoryStore is the fallback when the database cannot be opened. It keeps
// reply records only; history appends are accepted and discarded.
package store
