package core

import "github.com/google/uuid"

// NewID generates a new unique identifier suitable for request correlation
// and log tracing.
func NewID() string { return uuid.NewString() }
