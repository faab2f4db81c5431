package engine

import (
	"errors"
	"fmt"
)

// RoutingError describes an envelope the engine could not act on.
//
// Routing errors are logged, never returned to the sender.
type RoutingError struct {
	Code RoutingErrorCode

	Message string

	// Recipient and MessageID identify the offending envelope, when known.
	Recipient string
	MessageID string

	Details map[string]string
}

// RoutingErrorCode categorizes routing errors.
type RoutingErrorCode string

const (
	// ErrCodeUnknownControl marks a control payload this engine does not
	// handle. Ignored for forward compatibility.
	ErrCodeUnknownControl RoutingErrorCode = "UNKNOWN_CONTROL"

	// ErrCodeMalformedEnvelope marks a frame or payload that could not be
	// interpreted.
	ErrCodeMalformedEnvelope RoutingErrorCode = "MALFORMED_ENVELOPE"

	// ErrCodeStoreUnavailable marks a failure to open the log store. The
	// engine continues on the in-memory fallback.
	ErrCodeStoreUnavailable RoutingErrorCode = "STORE_UNAVAILABLE"
)

func (e *RoutingError) Error() string {
	if e.Recipient != "" && e.MessageID != "" {
		return fmt.Sprintf("%s: %s (recipient=%s, message=%s)", e.Code, e.Message, e.Recipient, e.MessageID)
	}
	if e.Recipient != "" {
		return fmt.Sprintf("%s: %s (recipient=%s)", e.Code, e.Message, e.Recipient)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsUnknownControl reports whether err is an UNKNOWN_CONTROL routing error.
func IsUnknownControl(err error) bool {
	return hasCode(err, ErrCodeUnknownControl)
}

// IsMalformed reports whether err is a MALFORMED_ENVELOPE routing error.
func IsMalformed(err error) bool {
	return hasCode(err, ErrCodeMalformedEnvelope)
}

func hasCode(err error, code RoutingErrorCode) bool {
	var re *RoutingError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// NewUnknownControlError creates a RoutingError for an unhandled control type.
func NewUnknownControlError(recipient, typ string) *RoutingError {
	return &RoutingError{
		Code:      ErrCodeUnknownControl,
		Message:   fmt.Sprintf("unhandled control type %q", typ),
		Recipient: recipient,
		Details:   map[string]string{"type": typ},
	}
}

// NewMalformedError creates a RoutingError for an uninterpretable envelope.
func NewMalformedError(recipient, messageID string, cause error) *RoutingError {
	return &RoutingError{
		Code:      ErrCodeMalformedEnvelope,
		Message:   cause.Error(),
		Recipient: recipient,
		MessageID: messageID,
	}
}

// NewStoreUnavailableError creates a RoutingError for a store that failed to
// open.
func NewStoreUnavailableError(path string, cause error) *RoutingError {
	return &RoutingError{
		Code:    ErrCodeStoreUnavailable,
		Message: cause.Error(),
		Details: map[string]string{"path": path},
	}
}
