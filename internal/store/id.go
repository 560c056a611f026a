package store

import "github.com/google/uuid"

// NewID returns a fresh identifier for internal records.
func NewID() string {
	return uuid.NewString()
}
