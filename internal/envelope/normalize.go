package envelope

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalizes an address name: surrounding whitespace is trimmed,
// the result is NFC-composed and case-folded. Names are compared only after
// normalization.
func Normalize(name string) string {
	s := strings.TrimSpace(name)
	if s == "" {
		return ""
	}
	s = norm.NFC.String(s)
	return cases.Lower(language.Und).String(s)
}

// IsReserved reports whether name is one of the control recipients.
func IsReserved(name string) bool {
	switch Normalize(name) {
	case EngineRecipient, HostRecipient:
		return true
	}
	return false
}
