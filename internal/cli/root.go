package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/autodomum/autodomum/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// EnvFiles are the .env files read before the environment. Missing files
	// are skipped.
	EnvFiles []string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the autodomum CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{EnvFiles: []string{".env"}}

	cmd := &cobra.Command{
		Use:   "autodomum",
		Short: "autodomum - home automation rule engine",
		Long: `A home automation engine that switches lamps on sunrise, sunset and
scheduled events, driven by declarative rule files.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewLampsCommand(opts))
	cmd.AddCommand(NewSunCommand(opts))
	cmd.AddCommand(NewHolidayCommand(opts))
	cmd.AddCommand(NewRulesCommand(opts))

	return cmd
}

// loadConfig reads the config file named by --config plus .env files and
// the environment.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath, o.EnvFiles...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}
