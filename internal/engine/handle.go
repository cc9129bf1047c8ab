package engine

import "github.com/google/uuid"

// Handle identifies one callback registration. Register returns it and
// Unregister takes it back.
type Handle string

// HandleGenerator produces registration handles.
type HandleGenerator interface {
	Generate() Handle
}

// UUIDv7Generator issues UUIDv7 handles, which sort by registration time in
// logs. It is stateless.
type UUIDv7Generator struct{}

// Generate panics only if the system random source fails.
func (UUIDv7Generator) Generate() Handle {
	return Handle(uuid.Must(uuid.NewV7()).String())
}
