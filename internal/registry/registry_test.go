package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/switchboard/internal/envelope"
)

func TestResolve_FanOutAndNormalization(t *testing.T) {
	r := New()
	r.Register("Chat", "u0", 0)
	r.Register("  chat ", "u1", 1)
	r.Register("other", "u2", 2)

	assert.Equal(t, []int{0, 1}, r.Resolve("CHAT"))
	assert.Equal(t, []int{0, 1}, r.Resolve("chat\n"))
	assert.Equal(t, []int{2}, r.Resolve("Other"))
	assert.Empty(t, r.Resolve("cha"))
	assert.Empty(t, r.Resolve(""))
}

func TestUnregister(t *testing.T) {
	r := New()
	r.Register("chat", "u0", 0)
	r.Register("chat", "u1", 1)

	assert.True(t, r.Unregister(0))
	assert.False(t, r.Unregister(0))
	assert.Equal(t, []int{1}, r.Resolve("chat"))
	assert.Equal(t, 1, r.Len())
}

func TestResolveUID(t *testing.T) {
	r := New()
	r.Register("a", "ua", 0)
	r.Register("b", "ub", 1)

	assert.Equal(t, []int{1}, r.ResolveUID("ub"))
	assert.Empty(t, r.ResolveUID("nobody"))
	assert.Empty(t, r.ResolveUID(""))
}

func TestRemap_CompactionMapping(t *testing.T) {
	// slots [0,1,2] with 1 disconnected: host sends {0->0, 2->1}
	r := New()
	r.Register("a", "u0", 0)
	r.Register("b", "u1", 1)
	r.Register("c", "u2", 2)
	require.True(t, r.Unregister(1))

	moved, dropped := r.Remap([]envelope.AddressUpdate{{Old: 0, New: 0}, {Old: 2, New: 1}})
	assert.Equal(t, 1, moved)
	assert.Equal(t, 0, dropped)
	assert.Equal(t, uint64(1), r.Epoch())

	assert.Equal(t, []int{0}, r.Resolve("a"))
	assert.Equal(t, []int{1}, r.Resolve("c"))
	assert.Equal(t, []int{1}, r.ResolveUID("u2"))
}

func TestRemap_MatchesStoredSlotNotPosition(t *testing.T) {
	// Registration order differs from slot order; the update must still hit
	// the record that lives at slot 5.
	r := New()
	r.Register("late", "u5", 5)
	r.Register("early", "u3", 3)

	r.Remap([]envelope.AddressUpdate{{Old: 5, New: 1}, {Old: 3, New: 0}})

	assert.Equal(t, []int{1}, r.Resolve("late"))
	assert.Equal(t, []int{0}, r.Resolve("early"))
}

func TestRemap_AppliesAgainstSnapshot(t *testing.T) {
	// A chain 2->1, 1->0 must not move slot 2 twice.
	r := New()
	r.Register("x", "ux", 1)
	r.Register("y", "uy", 2)

	r.Remap([]envelope.AddressUpdate{{Old: 2, New: 1}, {Old: 1, New: 0}})

	assert.Equal(t, []int{0}, r.Resolve("x"))
	assert.Equal(t, []int{1}, r.Resolve("y"))
}

func TestRemap_UnknownOldSlotIgnored(t *testing.T) {
	r := New()
	r.Register("x", "ux", 0)

	moved, dropped := r.Remap([]envelope.AddressUpdate{{Old: 9, New: 4}})
	assert.Zero(t, moved)
	assert.Zero(t, dropped)
	assert.Equal(t, []int{0}, r.Resolve("x"))
}

func TestRemap_IsIdempotentForLiveEntries(t *testing.T) {
	r := New()
	r.Register("a", "u0", 0)
	r.Register("b", "u1", 1)

	identity := []envelope.AddressUpdate{{Old: 0, New: 0}, {Old: 1, New: 1}}
	r.Remap(identity)
	r.Remap(identity)

	assert.Equal(t, []Record{
		{Name: "a", Slot: 0, UID: "u0"},
		{Name: "b", Slot: 1, UID: "u1"},
	}, r.Records())
	assert.Equal(t, uint64(2), r.Epoch())
}

func TestRemap_DropsStaleCollision(t *testing.T) {
	r := New()
	r.Register("stale", "us", 1)
	r.Register("live", "ul", 2)

	_, dropped := r.Remap([]envelope.AddressUpdate{{Old: 2, New: 1}})
	assert.Equal(t, 1, dropped)
	assert.Empty(t, r.Resolve("stale"))
	assert.Equal(t, []int{1}, r.Resolve("live"))
}

func TestUnion(t *testing.T) {
	assert.Equal(t, []int{0, 1, 3}, Union([]int{0, 3}, []int{1, 3}))
	assert.Empty(t, Union(nil, nil))
}

func TestAt(t *testing.T) {
	r := New()
	r.Register(" Chat", "u0", 4)

	rec, ok := r.At(4)
	require.True(t, ok)
	assert.Equal(t, Record{Name: "chat", Slot: 4, UID: "u0"}, rec)

	_, ok = r.At(0)
	assert.False(t, ok)
}
