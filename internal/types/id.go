// README: Identifier type shared by pickups, workers, customers and events.
package types

import "github.com/google/uuid"

type ID string

// NewID returns a random UUID string.
func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string {
	return string(id)
}
