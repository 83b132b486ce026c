// Package uid generates identifiers: snowflake numbers for produced messages
// and UUIDs for correlation IDs.
package uid

import "github.com/google/uuid"

type NumberID interface {
	Generate() int64
}

type StringID interface {
	Generate() string
}

// UUID generates time-ordered UUIDv7 strings, or v4 when v7 cannot be made.
type UUID struct{}

func NewUUID() UUID { return UUID{} }

func (UUID) Generate() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
