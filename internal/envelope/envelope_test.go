package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "chat", "chat"},
		{"trim and lower", "  Chat\t", "chat"},
		{"all caps", "INBOX", "inbox"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		// "é" as e + combining acute composes to the same name as U+00E9.
		{"nfc", "Café", "café"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestIsReserved(t *testing.T) {
	assert.True(t, IsReserved("engine"))
	assert.True(t, IsReserved(" Host "))
	assert.False(t, IsReserved("hostess"))
	assert.False(t, IsReserved(""))
}

func TestCoerceMaxAttempts(t *testing.T) {
	assert.Equal(t, 1, CoerceMaxAttempts(-5))
	assert.Equal(t, 1, CoerceMaxAttempts(0))
	assert.Equal(t, 1, CoerceMaxAttempts(1))
	assert.Equal(t, 3, CoerceMaxAttempts(3))
	assert.Equal(t, Unlimited, CoerceMaxAttempts(Unlimited))
}

func TestEnvelope_MessageRoundTrip(t *testing.T) {
	in := Envelope{
		Recipient:   "chat",
		SenderID:    "ua",
		MessageID:   "m-1",
		MaxAttempts: 3,
		Data: Message{
			Kind:   "greeting",
			Fields: map[string]any{"text": "hi", "n": float64(2)},
		},
	}

	b, err := Encode(in)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"recipient":"chat","senderId":"ua","messageId":"m-1","maxAttempts":3,
		  "data":{"type":"greeting","text":"hi","n":2}}`,
		string(b))

	out, err := Decode(b)
	require.NoError(t, err)
	msg, ok := out.Message()
	require.True(t, ok)
	assert.Equal(t, "greeting", msg.Kind)
	assert.Equal(t, "hi", msg.Fields["text"])
	assert.Equal(t, float64(2), msg.Fields["n"])
	assert.Equal(t, in.MessageID, out.MessageID)
}

func TestEnvelope_ReplyIDLivesInData(t *testing.T) {
	msg := Message{Kind: "ask", Fields: map[string]any{"q": 1}}.WithReplyID("r-9")
	b, err := Encode(Envelope{Slots: []int{0, 2}, Epoch: 4, MaxAttempts: 1, Data: msg})
	require.NoError(t, err)

	out, err := Decode(b)
	require.NoError(t, err)
	assert.True(t, out.IsDelivery())
	assert.Equal(t, []int{0, 2}, out.Slots)
	assert.Equal(t, uint64(4), out.Epoch)

	got, ok := out.Message()
	require.True(t, ok)
	assert.Equal(t, "r-9", got.ReplyID)
	assert.NotContains(t, got.Fields, "replyId")
}

func TestEnvelope_ControlVariantsDecodeByRecipient(t *testing.T) {
	tests := []struct {
		name      string
		recipient string
		payload   Payload
	}{
		{"hookup", EngineRecipient, Hookup{Name: "chat", Slot: 2, UID: "u"}},
		{"disconnect", EngineRecipient, Disconnect{Slot: 1, UID: "u"}},
		{"update addresses", EngineRecipient, UpdateAddresses{Addresses: []AddressUpdate{{Old: 2, New: 1}}}},
		{"init", EngineRecipient, Init{MemoryClass: 4, SlowPlatform: true}},
		{"unload", EngineRecipient, Unload{}},
		{"worker ready", HostRecipient, WorkerReady{}},
		{"compaction complete", HostRecipient, CompactionComplete{}},
		{"request compaction", HostRecipient, RequestCompaction{}},
		{"ping", HostRecipient, Ping{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Encode(Control(tt.recipient, tt.payload))
			require.NoError(t, err)

			out, err := Decode(b)
			require.NoError(t, err)
			assert.True(t, out.IsControl())
			assert.Equal(t, tt.payload, out.Data)
		})
	}
}

func TestEnvelope_ApplicationTypeNamedLikeControl(t *testing.T) {
	// A message to an ordinary inbox whose type collides with a control name
	// stays an application payload.
	b, err := Encode(Envelope{Recipient: "chat", MaxAttempts: 1, Data: Message{Kind: TypeUnload}})
	require.NoError(t, err)

	out, err := Decode(b)
	require.NoError(t, err)
	msg, ok := out.Message()
	require.True(t, ok)
	assert.Equal(t, TypeUnload, msg.Kind)
}

func TestUnmarshalControl_Unknown(t *testing.T) {
	p, err := UnmarshalControl([]byte(`{"type":"reticulate"}`))
	require.NoError(t, err)
	assert.Equal(t, Unknown{Name: "reticulate"}, p)
}

func TestUnmarshalMessage_MissingType(t *testing.T) {
	_, err := UnmarshalMessage([]byte(`{"text":"hi"}`))
	assert.ErrorIs(t, err, ErrMissingType)

	_, err = Decode([]byte(`{"recipient":"chat","maxAttempts":1,"data":{"text":"hi"}}`))
	assert.ErrorIs(t, err, ErrMissingType)
}

func TestMessage_CloneIsIndependent(t *testing.T) {
	orig := Message{Kind: "k", Fields: map[string]any{"a": 1}}
	c := orig.Clone()
	c.Fields["a"] = 2
	assert.Equal(t, 1, orig.Fields["a"])
}

func TestSequenceGenerator(t *testing.T) {
	g := NewSequenceGenerator("uid")
	assert.Equal(t, "uid-1", g.Generate())
	assert.Equal(t, "uid-2", g.Generate())
}

func TestUUIDv7Generator(t *testing.T) {
	var g UUIDv7Generator
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
