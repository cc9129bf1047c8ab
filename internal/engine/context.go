package engine

import (
	"context"
	"maps"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/autodomum/autodomum/internal/daylight"
)

// Context is the engine's shared world state, passed to every callback.
//
// Time-of-day, holiday, daylight and next sunrise/sunset are written only by
// the engine's recompute step; callbacks see them through getters. The
// attribute bag is the one part callbacks may write, and it is safe for
// concurrent use.
//
// Each callback receives a view of the engine's Context that also carries
// the dispatch it runs in (see Dispatch). Views share all state.
type Context struct {
	*world
	dispatch context.Context
}

// world is the state behind every view of a Context. It belongs to exactly
// one Engine for the engine's whole lifetime.
type world struct {
	mu          sync.RWMutex
	hour        int
	minute      int
	holiday     bool
	daylight    bool
	nextSunrise time.Time
	nextSunset  time.Time
	coordinate  daylight.Coordinate

	attrMu sync.RWMutex
	attrs  map[string]Value

	randMu sync.Mutex
	rand   *rand.Rand
}

func newContext(coord daylight.Coordinate, seed uint64) *Context {
	return &Context{world: &world{
		coordinate: coord,
		attrs:      make(map[string]Value),
		rand:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}}
}

// Dispatch returns the context.Context of the publish that invoked the
// callback. Work done on behalf of the event should carry it, for example
// into lamp.Store.Update: publishes made with it through
// Engine.PublishContext count toward the nesting limit. The engine's own
// Context returns context.Background().
func (c *Context) Dispatch() context.Context {
	if c.dispatch == nil {
		return context.Background()
	}
	return c.dispatch
}

func (c *Context) within(ctx context.Context) *Context {
	return &Context{world: c.world, dispatch: ctx}
}

// Hour is the local hour (0-23) observed at the last recompute.
func (c *Context) Hour() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hour
}

// Minute is the local minute (0-59) observed at the last recompute.
func (c *Context) Minute() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.minute
}

// IsHoliday reports whether the date of the last recompute is a holiday.
func (c *Context) IsHoliday() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.holiday
}

// IsDaylight reports the last recorded daylight value.
func (c *Context) IsDaylight() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.daylight
}

// NextSunrise is the next sunrise relative to the last recompute.
func (c *Context) NextSunrise() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nextSunrise
}

// NextSunset is the next sunset relative to the last recompute.
func (c *Context) NextSunset() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nextSunset
}

// Coordinate is the location sunrise and sunset are computed for.
func (c *Context) Coordinate() daylight.Coordinate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.coordinate
}

// recomputed carries the outputs of one recompute step.
type recomputed struct {
	hour        int
	minute      int
	holiday     bool
	nextSunrise time.Time
	nextSunset  time.Time

	// daylight is nil when the classification branch does not state a value.
	daylight *bool
}

// apply writes r and reports whether daylight flipped, and to what.
func (c *Context) apply(r recomputed) (flipped, now bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hour = r.hour
	c.minute = r.minute
	c.holiday = r.holiday
	c.nextSunrise = r.nextSunrise
	c.nextSunset = r.nextSunset

	if r.daylight == nil || *r.daylight == c.daylight {
		return false, c.daylight
	}
	c.daylight = *r.daylight
	return true, c.daylight
}

func (c *Context) setDaylight(v bool) {
	c.mu.Lock()
	c.daylight = v
	c.mu.Unlock()
}

// Set stores an attribute. Setting nil removes the key.
// Returns an error for values that are not a string, number or bool.
func (c *Context) Set(key string, v any) error {
	val, err := ValueOf(v)
	if err != nil {
		return invalidArgument("set attribute", err.Error())
	}
	c.SetValue(key, val)
	return nil
}

// SetValue stores an already typed attribute. A nil Value removes the key.
func (c *Context) SetValue(key string, v Value) {
	c.attrMu.Lock()
	defer c.attrMu.Unlock()

	if v == nil {
		delete(c.attrs, key)
		return
	}
	c.attrs[key] = v
}

// Get returns the attribute stored under key.
func (c *Context) Get(key string) (Value, bool) {
	c.attrMu.RLock()
	defer c.attrMu.RUnlock()

	v, ok := c.attrs[key]
	return v, ok
}

// GetString renders the attribute under key as a string, or "" when unset.
func (c *Context) GetString(key string) string {
	v, ok := c.Get(key)
	if !ok {
		return ""
	}
	return v.String()
}

// Delete removes an attribute. Missing keys are ignored.
func (c *Context) Delete(key string) {
	c.SetValue(key, nil)
}

// Attributes returns a copy of the attribute bag.
func (c *Context) Attributes() map[string]Value {
	c.attrMu.RLock()
	defer c.attrMu.RUnlock()
	return maps.Clone(c.attrs)
}

// IntN returns a pseudo-random int in [0, n). n <= 0 yields 0.
func (c *Context) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	c.randMu.Lock()
	defer c.randMu.Unlock()
	return c.rand.IntN(n)
}

// Float64 returns a pseudo-random float in [0.0, 1.0).
func (c *Context) Float64() float64 {
	c.randMu.Lock()
	defer c.randMu.Unlock()
	return c.rand.Float64()
}

// Snapshot is a point-in-time, JSON-friendly copy of a Context.
type Snapshot struct {
	Hour        int            `json:"hour"`
	Minute      int            `json:"minute"`
	Holiday     bool           `json:"holiday"`
	Daylight    bool           `json:"daylight"`
	NextSunrise time.Time      `json:"next_sunrise"`
	NextSunset  time.Time      `json:"next_sunset"`
	Latitude    float64        `json:"latitude"`
	Longitude   float64        `json:"longitude"`
	Attributes  map[string]any `json:"attributes"`
}

// Snapshot copies the current context state.
func (c *Context) Snapshot() Snapshot {
	c.mu.RLock()
	s := Snapshot{
		Hour:        c.hour,
		Minute:      c.minute,
		Holiday:     c.holiday,
		Daylight:    c.daylight,
		NextSunrise: c.nextSunrise,
		NextSunset:  c.nextSunset,
		Latitude:    c.coordinate.Latitude,
		Longitude:   c.coordinate.Longitude,
	}
	c.mu.RUnlock()

	attrs := c.Attributes()
	s.Attributes = make(map[string]any, len(attrs))
	for k, v := range attrs {
		s.Attributes[k] = nativeValue(v)
	}
	return s
}

func nativeValue(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	default:
		return nil
	}
}
