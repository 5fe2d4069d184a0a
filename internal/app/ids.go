package app

import "github.com/google/uuid"

// NewID returns a random identifier for requests and audit records.
func NewID() string {
	return uuid.NewString()
}
