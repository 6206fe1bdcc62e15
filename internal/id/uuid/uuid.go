// Package uuid provides a UUIDv4 implementation of links.IDGenerator.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator produces random UUIDs for batch identifiers.
type Generator struct{}

// New returns a Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a random UUID string.
func (g *Generator) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return id.String(), nil
}
