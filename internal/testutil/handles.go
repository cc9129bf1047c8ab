package testutil

import (
	"fmt"
	"sync"
)

// FixedGenerator hands out predetermined identifiers in order. H is any
// string-based identifier type, so an engine.Handle generator is
// FixedGenerator[engine.Handle].
//
// Generate panics once the list is used up, which catches a test that
// registers more callbacks than it planned for.
type FixedGenerator[H ~string] struct {
	mu  sync.Mutex
	ids []H
	idx int
}

// NewFixedGenerator returns a generator yielding ids in order.
func NewFixedGenerator[H ~string](ids ...H) *FixedGenerator[H] {
	return &FixedGenerator[H]{ids: ids}
}

// Generate returns the next identifier.
func (g *FixedGenerator[H]) Generate() H {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic(fmt.Sprintf("FixedGenerator: all %d ids used", len(g.ids)))
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
