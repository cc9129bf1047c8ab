// Package rules loads declarative automation rules and attaches them to the
// engine.
//
// A rule file (YAML or CUE) lists rules that react to an event kind and run
// actions: switch lamps, schedule named events, and set context attributes.
// Host registers one engine callback per rule and swaps whole rule sets
// atomically.
package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/autodomum/autodomum/internal/engine"
	"github.com/autodomum/autodomum/internal/lamp"
)

// Set is a compiled rule file.
type Set struct {
	Startup []Action
	Rules   []Rule
}

// Rule is a compiled rule.
type Rule struct {
	Name    string
	On      engine.Kind
	Match   string
	When    Conditions
	Actions []Action
}

// Conditions are the guards evaluated against the context before a rule
// runs. Nil pointers and an empty map are unconstrained.
type Conditions struct {
	Daylight   *bool
	Holiday    *bool
	Attributes map[string]engine.Value
}

// Matches reports whether r applies to ev given the current context.
func (r Rule) Matches(c *engine.Context, ev engine.Event) bool {
	if ev.Kind() != r.On {
		return false
	}
	if r.Match != "" {
		fo, ok := ev.(engine.FireOnce)
		if !ok || fo.Name != r.Match {
			return false
		}
	}
	return r.When.Hold(c)
}

// Hold reports whether every guard is satisfied.
func (w Conditions) Hold(c *engine.Context) bool {
	if w.Daylight != nil && c.IsDaylight() != *w.Daylight {
		return false
	}
	if w.Holiday != nil && c.IsHoliday() != *w.Holiday {
		return false
	}
	for key, want := range w.Attributes {
		got, ok := c.Get(key)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Env is what actions act on.
type Env struct {
	Ctx    context.Context
	Engine Scheduler
	Lamps  lamp.Store
	State  *engine.Context
}

// Scheduler is the part of the engine actions use.
type Scheduler interface {
	ScheduleOnceIn(d time.Duration, name string) (engine.FireOnce, error)
	ScheduleOnceAt(hour, minute int, name string) (engine.FireOnce, error)
}

// Action is one compiled rule step.
type Action interface {
	Run(env Env) error
	String() string
}

// SetLamp switches one lamp.
type SetLamp struct {
	ID string
	On bool
}

func (a SetLamp) Run(env Env) error {
	if env.Lamps == nil {
		return fmt.Errorf("lamp %s: no lamp store", a.ID)
	}
	_, err := env.Lamps.Update(env.Ctx, a.ID, lamp.SetOn(a.On))
	if err != nil {
		return fmt.Errorf("lamp %s: %w", a.ID, err)
	}
	return nil
}

func (a SetLamp) String() string {
	return fmt.Sprintf("lamp %s on=%t", a.ID, a.On)
}

// SetAllLamps switches every lamp in the store.
type SetAllLamps struct {
	On bool
}

func (a SetAllLamps) Run(env Env) error {
	if env.Lamps == nil {
		return fmt.Errorf("all lamps: no lamp store")
	}
	lamps, err := env.Lamps.List(env.Ctx)
	if err != nil {
		return fmt.Errorf("all lamps: %w", err)
	}
	for _, l := range lamps {
		if _, err := env.Lamps.Update(env.Ctx, l.ID, lamp.SetOn(a.On)); err != nil {
			return fmt.Errorf("all lamps: %s: %w", l.ID, err)
		}
	}
	return nil
}

func (a SetAllLamps) String() string {
	return fmt.Sprintf("all lamps on=%t", a.On)
}

// ScheduleIn schedules Name after Delay plus up to Jitter.
type ScheduleIn struct {
	Name   string
	Delay  time.Duration
	Jitter time.Duration
}

func (a ScheduleIn) Run(env Env) error {
	d := a.Delay
	if a.Jitter > 0 && env.State != nil {
		d += time.Duration(env.State.IntN(int(a.Jitter/time.Millisecond))) * time.Millisecond
	}
	_, err := env.Engine.ScheduleOnceIn(d, a.Name)
	return err
}

func (a ScheduleIn) String() string {
	if a.Jitter > 0 {
		return fmt.Sprintf("schedule %s in %s+rand(%s)", a.Name, a.Delay, a.Jitter)
	}
	return fmt.Sprintf("schedule %s in %s", a.Name, a.Delay)
}

// ScheduleAt schedules Name tomorrow at Hour:Minute plus up to
// JitterMinutes.
type ScheduleAt struct {
	Name          string
	Hour          int
	Minute        int
	JitterMinutes int
}

func (a ScheduleAt) Run(env Env) error {
	minute := a.Minute
	if a.JitterMinutes > 0 && env.State != nil {
		minute += env.State.IntN(a.JitterMinutes)
	}
	_, err := env.Engine.ScheduleOnceAt(a.Hour, minute, a.Name)
	return err
}

func (a ScheduleAt) String() string {
	if a.JitterMinutes > 0 {
		return fmt.Sprintf("schedule %s at %02d:%02d+rand(%dm)", a.Name, a.Hour, a.Minute, a.JitterMinutes)
	}
	return fmt.Sprintf("schedule %s at %02d:%02d", a.Name, a.Hour, a.Minute)
}

// SetAttribute writes a context attribute. A nil Value removes the key.
type SetAttribute struct {
	Key   string
	Value engine.Value
}

func (a SetAttribute) Run(env Env) error {
	if env.State == nil {
		return fmt.Errorf("set attribute %s: no context", a.Key)
	}
	env.State.SetValue(a.Key, a.Value)
	return nil
}

func (a SetAttribute) String() string {
	if a.Value == nil {
		return fmt.Sprintf("unset %s", a.Key)
	}
	return fmt.Sprintf("set %s=%s", a.Key, a.Value)
}
