// Package envelope defines the unit exchanged between the host dispatcher and
// the routing engine.
//
// An Envelope carries routing metadata (recipient, reply correlation, retry
// budget) plus a Payload. Payload is a tagged union keyed by Type():
//
//   - Message: an application payload, opaque to routing. The only field the
//     engine ever writes is ReplyID.
//   - host → engine controls: Hookup, Disconnect, UpdateAddresses, Init, Unload.
//   - engine → host controls: WorkerReady, CompactionComplete,
//     RequestCompaction, Ping.
//
// Control envelopes are addressed to one of the reserved recipients
// (EngineRecipient, HostRecipient). Everything else is routed by name.
//
// # Wire Format
//
// Envelopes cross the transport as JSON. The data object always has a "type"
// discriminator; how it is decoded depends on the recipient: control
// recipients decode into control variants, every other envelope decodes into
// a Message. Unrecognized control types decode into Unknown so receivers can
// log and ignore them.
//
// # Names
//
// Recipient names are matched exactly after Normalize (trim, NFC, lower-case).
// There is no wildcard or prefix matching.
package envelope
