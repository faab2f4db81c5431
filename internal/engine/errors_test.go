package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoutingError_Format(t *testing.T) {
	assert.Equal(t,
		`UNKNOWN_CONTROL: unhandled control type "reticulate" (recipient=engine)`,
		NewUnknownControlError("engine", "reticulate").Error())

	assert.Equal(t,
		"MALFORMED_ENVELOPE: bad (recipient=chat, message=m-1)",
		NewMalformedError("chat", "m-1", errors.New("bad")).Error())

	assert.Equal(t,
		"STORE_UNAVAILABLE: disk full",
		NewStoreUnavailableError("/tmp/x.db", errors.New("disk full")).Error())
}

func TestRoutingError_Predicates(t *testing.T) {
	wrapped := fmt.Errorf("handle: %w", NewUnknownControlError("engine", "x"))
	assert.True(t, IsUnknownControl(wrapped))
	assert.False(t, IsMalformed(wrapped))

	assert.True(t, IsMalformed(NewMalformedError("", "", errors.New("x"))))
	assert.False(t, IsMalformed(errors.New("plain")))
}
