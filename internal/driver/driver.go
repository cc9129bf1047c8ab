// Package driver turns lamp state announcements into vendor device calls.
//
// Drivers are engine callbacks registered for engine.KindLampStateChanged.
// They never call back into the engine.
package driver

import (
	"fmt"

	"github.com/autodomum/autodomum/internal/engine"
	"github.com/autodomum/autodomum/internal/lamp"
)

// Registrar is the part of the engine a driver needs to subscribe.
type Registrar interface {
	Register(kind engine.Kind, cb engine.Callback) (engine.Handle, error)
}

// Attach registers d for lamp state changes.
func Attach(r Registrar, d engine.Callback) (engine.Handle, error) {
	h, err := r.Register(engine.KindLampStateChanged, d)
	if err != nil {
		return "", fmt.Errorf("attach driver: %w", err)
	}
	return h, nil
}

// lampOf extracts the lamp snapshot from a state change event.
func lampOf(ev engine.Event) (lamp.Lamp, bool) {
	switch e := ev.(type) {
	case lamp.StateChanged:
		return e.Lamp, true
	case *lamp.StateChanged:
		if e == nil {
			return lamp.Lamp{}, false
		}
		return e.Lamp, true
	default:
		return lamp.Lamp{}, false
	}
}
