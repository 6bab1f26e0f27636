// Package id generates the UUIDv7 identifiers used by every entity.
// V7 embeds the creation timestamp in the high bits, so primary keys
// sort chronologically and cluster well in Postgres B-trees.
package id

import (
	"github.com/google/uuid"
)

// ID aliases uuid.UUID so call sites stay short.
type ID = uuid.UUID

// New returns a UUIDv7, falling back to V4 if the clock source fails.
func New() ID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// Parse converts a string to an ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse converts a string to an ID, panicking on error. For
// constants and tests only.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil returns the zero ID.
func Nil() ID {
	return uuid.Nil
}

// IsNil reports whether id is the zero ID.
func IsNil(id ID) bool {
	return id == uuid.Nil
}
