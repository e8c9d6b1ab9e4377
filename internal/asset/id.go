// Package asset defines the shared vocabulary of the derivation cache: stable
// item identifiers, the error taxonomy, per-item load states, and the message
// list surfaced for failed loads.
package asset

import (
	"strings"

	"github.com/google/uuid"
)

// ID stably identifies one logical content item independent of its path.
// It is a string-based type using canonical lowercase UUID format.
type ID string

// NewID generates a new unique ID using UUID v4.
func NewID() ID {
	return ID(uuid.New().String())
}

// ParseID validates s as a UUID and returns it in canonical form.
// Braced and uppercase forms are accepted.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", err
	}
	return ID(u.String()), nil
}

// String returns the string representation of the ID.
func (id ID) String() string {
	return string(id)
}

// IsValid returns true if the ID is a valid UUID.
func (id ID) IsValid() bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(string(id))
	return err == nil
}

// Short returns the first eight characters, used in tables and log lines.
func (id ID) Short() string {
	if len(id) <= 8 {
		return string(id)
	}
	return string(id[:8])
}
