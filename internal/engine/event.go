package engine

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies the type of an event. Callbacks are registered per Kind and
// receive only events of exactly that Kind.
type Kind int

const (
	// KindStartup is published once when the engine loop starts.
	KindStartup Kind = iota + 1
	// KindShutdown is published once when the engine loop stops gracefully.
	KindShutdown
	// KindSunrise is published when daylight flips from false to true.
	KindSunrise
	// KindSunset is published when daylight flips from true to false.
	KindSunset
	// KindFireOnce is a named one-shot delayed event.
	KindFireOnce
	// KindLampStateChanged announces a lamp record update.
	KindLampStateChanged
)

var kindNames = map[Kind]string{
	KindStartup:          "startup",
	KindShutdown:         "shutdown",
	KindSunrise:          "sunrise",
	KindSunset:           "sunset",
	KindFireOnce:         "fire_once",
	KindLampStateChanged: "lamp_state_changed",
}

// Kinds returns every valid Kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindStartup, KindShutdown, KindSunrise, KindSunset, KindFireOnce, KindLampStateChanged}
}

// String returns the snake_case name used in rule files and metrics labels.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind converts a kind name (case-insensitive, "-" or "_" separated)
// back to a Kind.
func ParseKind(s string) (Kind, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for k, name := range kindNames {
		if name == norm {
			return k, nil
		}
	}
	return 0, invalidArgument("parse kind", fmt.Sprintf("unknown event kind %q", s))
}

// Event is an immutable fact published through the engine.
type Event interface {
	Kind() Kind
}

// DelayedEvent is an Event bound to an absolute fire time.
type DelayedEvent interface {
	Event
	FireAt() time.Time
}

// Startup is published when the engine loop starts.
type Startup struct{}

// Kind implements Event.
func (Startup) Kind() Kind { return KindStartup }

// Shutdown is published when the engine loop stops.
type Shutdown struct{}

// Kind implements Event.
func (Shutdown) Kind() Kind { return KindShutdown }

// Sunrise is published on the tick that observes daylight beginning.
type Sunrise struct {
	At time.Time
}

// Kind implements Event.
func (Sunrise) Kind() Kind { return KindSunrise }

// Sunset is published on the tick that observes daylight ending.
type Sunset struct {
	At time.Time
}

// Kind implements Event.
func (Sunset) Kind() Kind { return KindSunset }

// FireOnce is a named delayed event. Two FireOnce values are equal when both
// Name and At match; the empty name is a distinct, valid name.
type FireOnce struct {
	Name string
	At   time.Time
}

// NewFireOnce creates a FireOnce event that fires at the given instant.
func NewFireOnce(name string, at time.Time) FireOnce {
	return FireOnce{Name: name, At: at}
}

// Kind implements Event.
func (FireOnce) Kind() Kind { return KindFireOnce }

// FireAt implements DelayedEvent.
func (f FireOnce) FireAt() time.Time { return f.At }

// Equal reports whether f and other share name and fire instant.
func (f FireOnce) Equal(other FireOnce) bool {
	return f.Name == other.Name && f.At.Equal(other.At)
}

// Key returns a comparable identity suitable for use as a map key.
func (f FireOnce) Key() FireOnceKey {
	return FireOnceKey{Name: f.Name, UnixNano: f.At.UnixNano()}
}

// String mirrors the log format used throughout the engine.
func (f FireOnce) String() string {
	return fmt.Sprintf("FireOnce[name=%s at=%s]", f.Name, f.At.Format(time.RFC3339))
}

// FireOnceKey is the comparable identity of a FireOnce event.
type FireOnceKey struct {
	Name     string
	UnixNano int64
}
