package domain

import "github.com/google/uuid"

// NewID returns a fresh opaque identifier: a 128-bit UUID rendered as the
// canonical 36-char hyphenated lowercase string. Every entity id in the
// system (matches, innings, events, disputes) uses this form.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether s parses as a canonical UUID string.
func ValidID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
