package rules

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a rule file, shared by the YAML and CUE
// formats.
type File struct {
	// Startup actions run once each time the file is loaded.
	Startup []ActionSpec `yaml:"startup,omitempty" json:"startup,omitempty"`

	// Rules react to published events.
	Rules []RuleSpec `yaml:"rules" json:"rules"`
}

// RuleSpec describes one rule before compilation.
type RuleSpec struct {
	Name string `yaml:"name" json:"name"`

	// On is the event kind name, e.g. "sunset" or "fire_once".
	On string `yaml:"on" json:"on"`

	// Match restricts a fire_once rule to events with this name.
	Match string `yaml:"match,omitempty" json:"match,omitempty"`

	When *WhenSpec `yaml:"when,omitempty" json:"when,omitempty"`

	Actions []ActionSpec `yaml:"actions" json:"actions"`
}

// WhenSpec holds the optional guards of a rule. All present guards must
// hold for the rule to run.
type WhenSpec struct {
	Daylight   *bool          `yaml:"daylight,omitempty" json:"daylight,omitempty"`
	Holiday    *bool          `yaml:"holiday,omitempty" json:"holiday,omitempty"`
	Attributes map[string]any `yaml:"attributes,omitempty" json:"attributes,omitempty"`
}

// ActionSpec is a one-of: exactly one field must be set.
type ActionSpec struct {
	Lamp         *LampSpec         `yaml:"lamp,omitempty" json:"lamp,omitempty"`
	AllLamps     *AllLampsSpec     `yaml:"all_lamps,omitempty" json:"all_lamps,omitempty"`
	ScheduleIn   *ScheduleInSpec   `yaml:"schedule_in,omitempty" json:"schedule_in,omitempty"`
	ScheduleAt   *ScheduleAtSpec   `yaml:"schedule_at,omitempty" json:"schedule_at,omitempty"`
	SetAttribute *SetAttributeSpec `yaml:"set_attribute,omitempty" json:"set_attribute,omitempty"`
}

type LampSpec struct {
	ID string `yaml:"id" json:"id"`
	On bool   `yaml:"on" json:"on"`
}

type AllLampsSpec struct {
	On bool `yaml:"on" json:"on"`
}

// ScheduleInSpec schedules a named event after Delay plus a random
// [0, Jitter) extra. Durations use time.ParseDuration syntax.
type ScheduleInSpec struct {
	Name   string `yaml:"name" json:"name"`
	Delay  string `yaml:"delay" json:"delay"`
	Jitter string `yaml:"jitter,omitempty" json:"jitter,omitempty"`
}

// ScheduleAtSpec schedules a named event tomorrow at Hour:Minute plus a
// random [0, JitterMinutes) minutes.
type ScheduleAtSpec struct {
	Name          string `yaml:"name" json:"name"`
	Hour          int    `yaml:"hour" json:"hour"`
	Minute        int    `yaml:"minute" json:"minute"`
	JitterMinutes int    `yaml:"jitter_minutes,omitempty" json:"jitter_minutes,omitempty"`
}

type SetAttributeSpec struct {
	Key   string `yaml:"key" json:"key"`
	Value any    `yaml:"value" json:"value"`
}

// Format is a rule file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("unsupported rule file extension %q", filepath.Ext(path))
	}
}

// LoadFile reads and compiles a rule file.
func LoadFile(path string) (*Set, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}

	f, err := Parse(data, format, path)
	if err != nil {
		return nil, err
	}
	return Compile(f)
}

// Parse decodes rule file contents. filename is used in error positions.
func Parse(data []byte, format Format, filename string) (*File, error) {
	switch format {
	case FormatYAML:
		return parseYAML(data)
	case FormatCUE:
		return parseCUE(data, filename)
	default:
		return nil, fmt.Errorf("unsupported rule file format %q", format)
	}
}

func parseYAML(data []byte) (*File, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &f, nil
}

func parseCUE(data []byte, filename string) (*File, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var f File
	if err := v.Decode(&f); err != nil {
		return nil, formatCUEError(err)
	}
	return &f, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
