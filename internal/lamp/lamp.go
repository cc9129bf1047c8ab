// Package lamp defines lamp records, the lamp store contract and the
// in-memory JSON-backed store.
package lamp

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/autodomum/autodomum/internal/engine"
)

// ErrNotFound is returned when no lamp has the requested id.
var ErrNotFound = errors.New("lamp not found")

// Lamp is a switchable light. CallIDs are the device-driver addresses that
// control it.
type Lamp struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	On      bool     `json:"on"`
	X       int      `json:"x"`
	Y       int      `json:"y"`
	CallIDs []string `json:"callIds"`
}

// Clone returns a deep copy.
func (l Lamp) Clone() Lamp {
	l.CallIDs = slices.Clone(l.CallIDs)
	return l
}

func (l Lamp) String() string {
	return fmt.Sprintf("Lamp[id=%s name=%s on=%t x=%d y=%d callIds=[%s]]",
		l.ID, l.Name, l.On, l.X, l.Y, strings.Join(l.CallIDs, ", "))
}

// Patch is a partial update. Nil fields are left untouched. Identity fields
// (ID, Name, CallIDs) cannot be patched.
type Patch struct {
	On *bool `json:"on,omitempty"`
	X  *int  `json:"x,omitempty"`
	Y  *int  `json:"y,omitempty"`
}

// Apply writes the non-nil fields of p into l and reports whether any value
// actually changed.
func (p Patch) Apply(l *Lamp) bool {
	changed := false
	if p.On != nil && *p.On != l.On {
		l.On = *p.On
		changed = true
	}
	if p.X != nil && *p.X != l.X {
		l.X = *p.X
		changed = true
	}
	if p.Y != nil && *p.Y != l.Y {
		l.Y = *p.Y
		changed = true
	}
	return changed
}

// Empty reports whether p sets no field.
func (p Patch) Empty() bool {
	return p.On == nil && p.X == nil && p.Y == nil
}

// SetOn is a convenience for building a Patch that only switches a lamp.
func SetOn(on bool) Patch {
	return Patch{On: &on}
}

// Store persists lamp records.
//
// Update applies a Patch to an existing lamp and announces a StateChanged
// event through the store's Publisher, even when nothing changed. Unknown
// ids return ErrNotFound and announce nothing.
type Store interface {
	Get(ctx context.Context, id string) (Lamp, error)
	Update(ctx context.Context, id string, p Patch) (Lamp, error)
	List(ctx context.Context) ([]Lamp, error)
}

// Publisher is the part of the engine a store needs. *engine.Engine
// satisfies it. ctx is the one passed to Update, so an update made from a
// callback publishes as part of that callback's dispatch.
type Publisher interface {
	PublishContext(ctx context.Context, ev engine.Event) error
}

// StateChanged announces the state of a lamp after an update.
//
// Changed is false when the update matched the stored state. Drivers still
// resend the state in that case, since radio-controlled receivers do not
// acknowledge commands.
type StateChanged struct {
	Lamp    Lamp
	Changed bool
}

// Kind implements engine.Event.
func (StateChanged) Kind() engine.Kind { return engine.KindLampStateChanged }

// Announce publishes a StateChanged for l. A nil publisher is ignored.
func Announce(ctx context.Context, pub Publisher, l Lamp, changed bool) error {
	if pub == nil {
		return nil
	}
	if err := pub.PublishContext(ctx, StateChanged{Lamp: l.Clone(), Changed: changed}); err != nil {
		return fmt.Errorf("announce lamp %s: %w", l.ID, err)
	}
	return nil
}

// SortByID orders lamps by id in place.
func SortByID(lamps []Lamp) {
	slices.SortFunc(lamps, func(a, b Lamp) int { return strings.Compare(a.ID, b.ID) })
}
