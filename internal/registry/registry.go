// Package registry holds the routing engine's authoritative address table.
//
// A Registry is not safe for concurrent use. It is owned by the engine's
// event loop and mutated nowhere else.
package registry

import (
	"slices"

	"github.com/roach88/switchboard/internal/envelope"
)

// Record binds a normalized name to a host slot and the uid of the inbox
// living there.
type Record struct {
	Name string
	Slot int
	UID  string
}

// Registry maps names and uids to host slots.
type Registry struct {
	bySlot map[int]Record
	epoch  uint64
}

// New returns an empty registry at epoch 0.
func New() *Registry {
	return &Registry{bySlot: make(map[int]Record)}
}

// Register records that the inbox uid lives at slot under name. The host
// assigns slots; a second registration at the same slot replaces the first.
func (r *Registry) Register(name, uid string, slot int) Record {
	rec := Record{Name: envelope.Normalize(name), Slot: slot, UID: uid}
	r.bySlot[slot] = rec
	return rec
}

// At returns the record stored at slot.
func (r *Registry) At(slot int) (Record, bool) {
	rec, ok := r.bySlot[slot]
	return rec, ok
}

// Unregister removes the record at slot. It reports whether one existed.
func (r *Registry) Unregister(slot int) bool {
	if _, ok := r.bySlot[slot]; !ok {
		return false
	}
	delete(r.bySlot, slot)
	return true
}

// Remap applies a batch of slot substitutions atomically and advances the
// epoch.
//
// Each update matches the record whose stored slot equals Old. Updates whose
// Old slot is unknown are ignored. A record left unmapped whose slot is taken
// by a remapped record is stale and is dropped. Remap returns how many records
// moved and how many were dropped.
func (r *Registry) Remap(updates []envelope.AddressUpdate) (moved, dropped int) {
	targets := make(map[int]int, len(updates))
	for _, u := range updates {
		targets[u.Old] = u.New
	}

	next := make(map[int]Record, len(r.bySlot))
	var stale []Record
	for slot, rec := range r.bySlot {
		n, ok := targets[slot]
		if !ok {
			stale = append(stale, rec)
			continue
		}
		rec.Slot = n
		next[n] = rec
		if n != slot {
			moved++
		}
	}
	for _, rec := range stale {
		if _, taken := next[rec.Slot]; taken {
			dropped++
			continue
		}
		next[rec.Slot] = rec
	}

	r.bySlot = next
	r.epoch++
	return moved, dropped
}

// Resolve returns every slot registered under the normalized form of name,
// in ascending order. An empty name resolves to nothing.
func (r *Registry) Resolve(name string) []int {
	n := envelope.Normalize(name)
	if n == "" {
		return nil
	}
	return r.collect(func(rec Record) bool { return rec.Name == n })
}

// ResolveUID returns the slots currently owned by uid.
func (r *Registry) ResolveUID(uid string) []int {
	if uid == "" {
		return nil
	}
	return r.collect(func(rec Record) bool { return rec.UID == uid })
}

func (r *Registry) collect(match func(Record) bool) []int {
	var slots []int
	for slot, rec := range r.bySlot {
		if match(rec) {
			slots = append(slots, slot)
		}
	}
	slices.Sort(slots)
	return slots
}

// Epoch counts Remap calls. Deliveries are stamped with it so the host can
// tell which slot numbering they were resolved against.
func (r *Registry) Epoch() uint64 {
	return r.epoch
}

// Len returns the number of live records.
func (r *Registry) Len() int {
	return len(r.bySlot)
}

// Records returns a snapshot ordered by slot.
func (r *Registry) Records() []Record {
	out := make([]Record, 0, len(r.bySlot))
	for _, rec := range r.bySlot {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b Record) int { return a.Slot - b.Slot })
	return out
}

// Union merges two ascending slot lists into one ascending list without
// duplicates.
func Union(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	slices.Sort(out)
	return slices.Compact(out)
}
