package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/autodomum/autodomum/internal/engine"
	"github.com/autodomum/autodomum/internal/lamp"
)

// Engine is the engine surface a Host drives. *engine.Engine satisfies it.
type Engine interface {
	Scheduler
	Register(kind engine.Kind, cb engine.Callback) (engine.Handle, error)
	Unregister(kind engine.Kind, h engine.Handle) error
	Context() *engine.Context
}

type attached struct {
	kind   engine.Kind
	handle engine.Handle
}

// Host attaches rule sets to an engine.
//
// Every rule becomes one registered callback. Replace swaps the active set:
// new callbacks are registered before the old ones are removed, so an event
// published during the swap sees the old set, the new set, or both, never
// neither.
type Host struct {
	engine Engine
	lamps  lamp.Store
	logger *slog.Logger

	mu       sync.Mutex
	active   []attached
	rules    []Rule
	loaded   bool
	failures int
}

// NewHost creates a Host. lamps may be nil when no rule switches lamps.
func NewHost(e Engine, lamps lamp.Store, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{engine: e, lamps: lamps, logger: logger}
}

// LoadFile compiles the rule file at path and makes it the active set.
func (h *Host) LoadFile(path string) error {
	set, err := LoadFile(path)
	if err != nil {
		return err
	}
	h.logger.Info("rules loaded", "path", path, "rules", len(set.Rules), "startup", len(set.Startup))
	return h.Replace(set)
}

// Replace registers set's rules, unregisters the previous set, then runs
// set's startup actions.
//
// If any registration fails the previous set stays active.
func (h *Host) Replace(set *Set) error {
	if set == nil {
		return errors.New("replace rules: nil rule set")
	}

	h.mu.Lock()
	next := make([]attached, 0, len(set.Rules))
	for _, r := range set.Rules {
		handle, err := h.engine.Register(r.On, h.callback(r))
		if err != nil {
			h.detach(next)
			h.mu.Unlock()
			return fmt.Errorf("register rule %q: %w", r.Name, err)
		}
		next = append(next, attached{kind: r.On, handle: handle})
	}

	previous := h.active
	h.active = next
	h.rules = append([]Rule(nil), set.Rules...)
	h.loaded = true
	h.detach(previous)
	h.mu.Unlock()

	return h.runStartup(set.Startup)
}

// Clear unregisters every active rule.
func (h *Host) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detach(h.active)
	h.active = nil
	h.rules = nil
}

// Rules returns the active rules.
func (h *Host) Rules() []Rule {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Rule(nil), h.rules...)
}

// Loaded reports whether a rule set has been installed.
func (h *Host) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loaded
}

// Failures returns how many action runs have failed.
func (h *Host) Failures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures
}

func (h *Host) detach(list []attached) {
	for _, a := range list {
		if err := h.engine.Unregister(a.kind, a.handle); err != nil {
			h.logger.Warn("failed to unregister rule", "kind", a.kind.String(), "error", err)
		}
	}
}

// callback wraps r as an engine callback. Actions run in order; the first
// failure stops the rule and is returned to the engine as a handler failure.
func (h *Host) callback(r Rule) engine.Callback {
	return engine.CallbackFunc(func(c *engine.Context, ev engine.Event) error {
		if !r.Matches(c, ev) {
			return nil
		}
		h.logger.Debug("rule triggered", "rule", r.Name, "kind", ev.Kind().String())

		env := h.env(c)
		for _, a := range r.Actions {
			if err := a.Run(env); err != nil {
				h.countFailure()
				return fmt.Errorf("rule %q: %s: %w", r.Name, a, err)
			}
		}
		return nil
	})
}

func (h *Host) runStartup(actions []Action) error {
	if len(actions) == 0 {
		return nil
	}
	env := h.env(h.engine.Context())

	var errs []error
	for _, a := range actions {
		if err := a.Run(env); err != nil {
			h.countFailure()
			errs = append(errs, fmt.Errorf("startup: %s: %w", a, err))
		}
	}
	return errors.Join(errs...)
}

func (h *Host) env(c *engine.Context) Env {
	return Env{
		Ctx:    c.Dispatch(),
		Engine: h.engine,
		Lamps:  h.lamps,
		State:  c,
	}
}

func (h *Host) countFailure() {
	h.mu.Lock()
	h.failures++
	h.mu.Unlock()
}
