package lamp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// JSONStore keeps lamps in memory, seeded from a JSON array:
//
//	[{"id":"id1","name":"name1","on":false,"x":1,"y":2,"callIds":["a","b"]}]
//
// Thread-safety: all methods are safe for concurrent use. Announcements
// are published outside the data lock, so callbacks may read the store.
type JSONStore struct {
	mu    sync.RWMutex
	lamps map[string]Lamp
	pub   Publisher
	log   *slog.Logger

	announce Announcer
}

// NewJSONStore creates an empty store that announces updates through pub.
func NewJSONStore(pub Publisher) *JSONStore {
	return &JSONStore{
		lamps: make(map[string]Lamp),
		pub:   pub,
		log:   slog.Default(),
	}
}

// SetPublisher replaces the publisher. Used when the store is created before
// the engine it announces through.
func (s *JSONStore) SetPublisher(pub Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pub = pub
}

// Load decodes a JSON array of lamps from r and adds them to the store.
// Lamps with an id already present are replaced.
func (s *JSONStore) Load(r io.Reader) error {
	var lamps []Lamp
	if err := json.NewDecoder(r).Decode(&lamps); err != nil {
		return fmt.Errorf("decode lamps: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range lamps {
		if l.ID == "" {
			return fmt.Errorf("decode lamps: lamp %q has no id", l.Name)
		}
		s.lamps[l.ID] = l.Clone()
	}
	return nil
}

// LoadFile loads lamps from a JSON file.
func (s *JSONStore) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open lamps file: %w", err)
	}
	defer f.Close()

	if err := s.Load(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Get implements Store.
func (s *JSONStore) Get(_ context.Context, id string) (Lamp, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lamps[id]
	if !ok {
		return Lamp{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return l.Clone(), nil
}

// Update implements Store.
func (s *JSONStore) Update(ctx context.Context, id string, p Patch) (Lamp, error) {
	s.mu.RLock()
	pub := s.pub
	s.mu.RUnlock()

	return s.announce.Do(ctx, pub, s.log, func(context.Context) (Lamp, bool, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		current, ok := s.lamps[id]
		if !ok {
			return Lamp{}, false, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		changed := p.Apply(&current)
		s.lamps[id] = current
		return current.Clone(), changed, nil
	})
}

// List implements Store. Lamps are ordered by id.
func (s *JSONStore) List(_ context.Context) ([]Lamp, error) {
	s.mu.RLock()
	out := make([]Lamp, 0, len(s.lamps))
	for _, l := range s.lamps {
		out = append(out, l.Clone())
	}
	s.mu.RUnlock()

	SortByID(out)
	return out, nil
}
