package envelope

import "maps"

// Payload is implemented by every variant that can travel in Envelope.Data.
type Payload interface {
	Type() string
}

// Control payload type names.
const (
	TypeHookup             = "hookup"
	TypeDisconnect         = "disconnect"
	TypeUpdateAddresses    = "update-addresses"
	TypeInit               = "init"
	TypeUnload             = "unload"
	TypeWorkerReady        = "worker-ready"
	TypeCompactionComplete = "compaction-complete"
	TypeRequestCompaction  = "request-compaction"
	TypePing               = "ping"
)

// Message is an application payload. Fields are opaque to routing and are
// copied on every crossing, so receivers may mutate them freely.
type Message struct {
	Kind    string
	ReplyID string
	Fields  map[string]any
}

// Type implements Payload.
func (m Message) Type() string { return m.Kind }

// WithReplyID returns a copy of m carrying the given correlation id.
func (m Message) WithReplyID(id string) Message {
	m.ReplyID = id
	m.Fields = maps.Clone(m.Fields)
	return m
}

// Clone returns a shallow copy of m with its own Fields map.
func (m Message) Clone() Message {
	m.Fields = maps.Clone(m.Fields)
	return m
}

// Hookup tells the engine that an inbox now lives at Slot under Name.
type Hookup struct {
	Name string `json:"name"`
	Slot int    `json:"inboxAddress"`
	UID  string `json:"uid"`
}

func (Hookup) Type() string { return TypeHookup }

// Disconnect tells the engine a slot no longer resolves.
type Disconnect struct {
	Slot int    `json:"inboxAddress"`
	UID  string `json:"uid,omitempty"`
}

func (Disconnect) Type() string { return TypeDisconnect }

// AddressUpdate is one old → new slot substitution produced by compaction.
type AddressUpdate struct {
	Old int `json:"oldAddressIndex"`
	New int `json:"newAddressIndex"`
}

// UpdateAddresses carries the full remap computed by a host compaction.
type UpdateAddresses struct {
	Addresses []AddressUpdate `json:"addresses"`
}

func (UpdateAddresses) Type() string { return TypeUpdateAddresses }

// Init is the host capability probe sent right after readiness.
type Init struct {
	MemoryClass  int  `json:"memory"`
	SlowPlatform bool `json:"isSafari"`
}

func (Init) Type() string { return TypeInit }

// Unload asks the engine to discard its log store and stop.
type Unload struct{}

func (Unload) Type() string { return TypeUnload }

// WorkerReady is the engine's readiness signal.
type WorkerReady struct{}

func (WorkerReady) Type() string { return TypeWorkerReady }

// CompactionComplete acknowledges an UpdateAddresses.
type CompactionComplete struct{}

func (CompactionComplete) Type() string { return TypeCompactionComplete }

// RequestCompaction asks the host to run a compaction round trip.
type RequestCompaction struct{}

func (RequestCompaction) Type() string { return TypeRequestCompaction }

// Ping is a liveness round trip; the host only has to receive it.
type Ping struct{}

func (Ping) Type() string { return TypePing }

// Unknown is a control payload whose type this build does not recognize.
type Unknown struct {
	Name string
}

func (u Unknown) Type() string { return u.Name }
