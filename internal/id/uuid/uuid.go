// Package uuid generates run and request identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator implements crawler.IDGenerator.
type Generator struct{}

// New returns a Generator.
func New() *Generator {
	return &Generator{}
}

// NewRunID returns a time-ordered UUIDv7 so run IDs sort by start time.
func (Generator) NewRunID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate run id: %w", err)
	}
	return id, nil
}

// NewRequestID returns a random UUIDv4 string, falling back to the nil UUID
// if the entropy source fails.
func (Generator) NewRequestID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.Nil.String()
	}
	return id.String()
}
