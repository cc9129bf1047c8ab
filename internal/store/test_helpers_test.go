package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/autodomum/autodomum/internal/engine"
	"github.com/autodomum/autodomum/internal/lamp"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestLamp creates a lamp with the fields used throughout the tests.
func createTestLamp(id, name string, on bool, x, y int, callIDs ...string) lamp.Lamp {
	return lamp.Lamp{ID: id, Name: name, On: on, X: x, Y: y, CallIDs: callIDs}
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []engine.Event
}

func (p *recordingPublisher) PublishContext(_ context.Context, ev engine.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type publisherFunc func(ev any)

func (f publisherFunc) PublishContext(_ context.Context, ev engine.Event) error {
	f(ev)
	return nil
}

func (p *recordingPublisher) changes() []lamp.StateChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]lamp.StateChanged, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.(lamp.StateChanged))
	}
	return out
}
