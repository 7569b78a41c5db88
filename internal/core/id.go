package core

import (
	"github.com/google/uuid"
)

// NewID returns a random UUIDv4 string used as a record primary key.
func NewID() string {
	return uuid.NewString()
}
