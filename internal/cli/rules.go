package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/autodomum/autodomum/internal/rules"
)

// NewRulesCommand creates the rules command group.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Work with rule files",
	}
	cmd.AddCommand(newRulesValidateCommand(rootOpts))
	return cmd
}

func newRulesValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [rules-file]",
		Short: "Compile a rule file and print what it does",
		Long: `Parse and compile a YAML (.yaml, .yml) or CUE (.cue) rule file without
starting the engine. Without an argument the configured rules_file is used.

Example:
  autodomum rules validate examples/rules.yaml
  autodomum rules validate --format json examples/rules.cue`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runRulesValidate(rootOpts, path, cmd)
		},
	}
}

// RuleSummary is the JSON form of a compiled rule.
type RuleSummary struct {
	Name    string   `json:"name"`
	On      string   `json:"on"`
	Match   string   `json:"match,omitempty"`
	When    []string `json:"when,omitempty"`
	Actions []string `json:"actions"`
}

// RulesResult is the JSON payload of rules validate.
type RulesResult struct {
	File    string        `json:"file"`
	Startup []string      `json:"startup"`
	Rules   []RuleSummary `json:"rules"`
}

func runRulesValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if path == "" {
		cfg, err := opts.loadConfig()
		if err != nil {
			_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
			return err
		}
		if cfg.RulesFile == "" {
			msg := "no rules file given and rules_file is not configured"
			_ = formatter.Error(ErrCodeGeneric, msg, nil)
			return NewExitError(ExitCommandError, msg)
		}
		path = cfg.RulesFile
	}

	formatter.VerboseLog("Compiling %s", path)
	set, err := rules.LoadFile(path)
	if err != nil {
		_ = formatter.Error(ErrCodeRules, err.Error(), compileErrorDetails(err))
		return WrapExitError(ExitFailure, "invalid rule file", err)
	}

	result := summarize(filepath.Base(path), set)
	return formatter.Success(result, formatRules(result))
}

func compileErrorDetails(err error) map[string]any {
	var cErr *rules.CompileError
	if !errors.As(err, &cErr) {
		return nil
	}
	details := map[string]any{"field": cErr.Field}
	if cErr.Rule != "" {
		details["rule"] = cErr.Rule
	}
	if cErr.Pos.IsValid() {
		details["line"] = cErr.Pos.Line()
	}
	return details
}

func summarize(file string, set *rules.Set) RulesResult {
	result := RulesResult{
		File:    file,
		Startup: make([]string, 0, len(set.Startup)),
		Rules:   make([]RuleSummary, 0, len(set.Rules)),
	}
	for _, a := range set.Startup {
		result.Startup = append(result.Startup, a.String())
	}
	for _, r := range set.Rules {
		s := RuleSummary{
			Name:    r.Name,
			On:      r.On.String(),
			Match:   r.Match,
			When:    describeConditions(r.When),
			Actions: make([]string, 0, len(r.Actions)),
		}
		for _, a := range r.Actions {
			s.Actions = append(s.Actions, a.String())
		}
		result.Rules = append(result.Rules, s)
	}
	return result
}

func describeConditions(c rules.Conditions) []string {
	var out []string
	if c.Daylight != nil {
		out = append(out, fmt.Sprintf("daylight=%t", *c.Daylight))
	}
	if c.Holiday != nil {
		out = append(out, fmt.Sprintf("holiday=%t", *c.Holiday))
	}
	keys := make([]string, 0, len(c.Attributes))
	for k := range c.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, c.Attributes[k]))
	}
	return out
}

func formatRules(r RulesResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d startup action(s), %d rule(s)\n", r.File, len(r.Startup), len(r.Rules))
	if len(r.Startup) > 0 {
		b.WriteString("startup:\n")
		for _, a := range r.Startup {
			fmt.Fprintf(&b, "  %s\n", a)
		}
	}
	if len(r.Rules) > 0 {
		b.WriteString("rules:\n")
	}
	for _, rule := range r.Rules {
		trigger := rule.On
		if rule.Match != "" {
			trigger += " " + rule.Match
		}
		fmt.Fprintf(&b, "  %s (on %s)\n", rule.Name, trigger)
		if len(rule.When) > 0 {
			fmt.Fprintf(&b, "    when %s\n", strings.Join(rule.When, " "))
		}
		for _, a := range rule.Actions {
			fmt.Fprintf(&b, "    %s\n", a)
		}
	}
	return b.String()
}
