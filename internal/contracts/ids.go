package contracts

import "github.com/google/uuid"

// NewID returns a fresh random UUID for any *_id contract field.
func NewID() string {
	return uuid.NewString()
}
