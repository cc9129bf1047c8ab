package rules

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cuelang.org/go/cue/token"
	"golang.org/x/text/unicode/norm"

	"github.com/autodomum/autodomum/internal/engine"
)

// CompileError represents a rule compilation error. Pos is set for errors
// reported by the CUE evaluator.
type CompileError struct {
	Rule    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	if e.Rule != "" {
		return fmt.Sprintf("rule %q: %s: %s", e.Rule, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Compile validates f and converts it to a Set.
func Compile(f *File) (*Set, error) {
	set := &Set{}

	for i, a := range f.Startup {
		action, err := compileAction(a, fmt.Sprintf("startup[%d]", i))
		if err != nil {
			return nil, err
		}
		set.Startup = append(set.Startup, action)
	}

	seen := make(map[string]bool, len(f.Rules))
	for i, spec := range f.Rules {
		rule, err := compileRule(spec, i)
		if err != nil {
			return nil, err
		}
		if seen[rule.Name] {
			return nil, &CompileError{Rule: rule.Name, Field: "name", Message: "duplicate rule name"}
		}
		seen[rule.Name] = true
		set.Rules = append(set.Rules, rule)
	}

	return set, nil
}

func compileRule(spec RuleSpec, index int) (Rule, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		name = fmt.Sprintf("rule-%d", index+1)
	}
	fail := func(field, format string, args ...any) (Rule, error) {
		return Rule{}, &CompileError{Rule: name, Field: field, Message: fmt.Sprintf(format, args...)}
	}

	kind, err := engine.ParseKind(spec.On)
	if err != nil {
		return fail("on", "unknown event kind %q", spec.On)
	}

	rule := Rule{Name: name, On: kind}

	if spec.Match != "" {
		if kind != engine.KindFireOnce {
			return fail("match", "match requires on: %s", engine.KindFireOnce)
		}
		rule.Match = normalizeName(spec.Match)
	}

	if spec.When != nil {
		rule.When.Daylight = spec.When.Daylight
		rule.When.Holiday = spec.When.Holiday
		if len(spec.When.Attributes) > 0 {
			rule.When.Attributes = make(map[string]engine.Value, len(spec.When.Attributes))
			for key, raw := range spec.When.Attributes {
				v, err := engine.ValueOf(raw)
				if err != nil || v == nil {
					return fail("when.attributes."+key, "value must be a string, number or bool")
				}
				rule.When.Attributes[key] = v
			}
		}
	}

	if len(spec.Actions) == 0 {
		return fail("actions", "at least one action is required")
	}
	for i, a := range spec.Actions {
		action, err := compileAction(a, fmt.Sprintf("actions[%d]", i))
		if err != nil {
			var ce *CompileError
			if errors.As(err, &ce) {
				ce.Rule = name
			}
			return Rule{}, err
		}
		rule.Actions = append(rule.Actions, action)
	}

	return rule, nil
}

func compileAction(a ActionSpec, field string) (Action, error) {
	fail := func(format string, args ...any) (Action, error) {
		return nil, &CompileError{Field: field, Message: fmt.Sprintf(format, args...)}
	}

	set := 0
	for _, present := range []bool{a.Lamp != nil, a.AllLamps != nil, a.ScheduleIn != nil, a.ScheduleAt != nil, a.SetAttribute != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fail("exactly one of lamp, all_lamps, schedule_in, schedule_at, set_attribute is required, got %d", set)
	}

	switch {
	case a.Lamp != nil:
		id := strings.TrimSpace(a.Lamp.ID)
		if id == "" {
			return fail("lamp.id is required")
		}
		return SetLamp{ID: id, On: a.Lamp.On}, nil

	case a.AllLamps != nil:
		return SetAllLamps{On: a.AllLamps.On}, nil

	case a.ScheduleIn != nil:
		s := a.ScheduleIn
		name := normalizeName(s.Name)
		if name == "" {
			return fail("schedule_in.name is required")
		}
		delay, err := parseDuration(s.Delay)
		if err != nil {
			return fail("schedule_in.delay: %v", err)
		}
		jitter, err := parseDuration(s.Jitter)
		if err != nil {
			return fail("schedule_in.jitter: %v", err)
		}
		return ScheduleIn{Name: name, Delay: delay, Jitter: jitter}, nil

	case a.ScheduleAt != nil:
		s := a.ScheduleAt
		name := normalizeName(s.Name)
		if name == "" {
			return fail("schedule_at.name is required")
		}
		if s.Hour < 0 || s.Hour > 23 {
			return fail("schedule_at.hour %d out of range [0,23]", s.Hour)
		}
		if s.Minute < 0 || s.Minute > 59 {
			return fail("schedule_at.minute %d out of range [0,59]", s.Minute)
		}
		if s.JitterMinutes < 0 || s.Minute+s.JitterMinutes > 60 {
			return fail("schedule_at.jitter_minutes %d must keep the minute within the hour", s.JitterMinutes)
		}
		return ScheduleAt{Name: name, Hour: s.Hour, Minute: s.Minute, JitterMinutes: s.JitterMinutes}, nil

	default:
		s := a.SetAttribute
		key := strings.TrimSpace(s.Key)
		if key == "" {
			return fail("set_attribute.key is required")
		}
		v, err := engine.ValueOf(s.Value)
		if err != nil {
			return fail("set_attribute.value: %v", err)
		}
		return SetAttribute{Key: key, Value: v}, nil
	}
}

// parseDuration accepts time.ParseDuration syntax. Empty means zero.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

// normalizeName matches the engine's FireOnce name normalization so rule
// matches compare equal to scheduled names.
func normalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
