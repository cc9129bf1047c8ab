package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/autodomum/autodomum/internal/holiday"
)

// HolidayOptions holds flags for the holiday command.
type HolidayOptions struct {
	*RootOptions
	Year     int
	Calendar string
}

// NewHolidayCommand creates the holiday command.
func NewHolidayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HolidayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "holiday",
		Short: "List the holidays of a year",
		Long: `List every date the configured holiday calendar treats as a holiday.

Example:
  autodomum holiday
  autodomum holiday --year 2016 --calendar sweden`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHoliday(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Year, "year", 0, "year to list (default current year)")
	cmd.Flags().StringVar(&opts.Calendar, "calendar", "", "holiday calendar (sweden|none, default from config)")

	return cmd
}

func runHoliday(opts *HolidayOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	name := opts.Calendar
	if name == "" {
		cfg, err := opts.loadConfig()
		if err != nil {
			_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
			return err
		}
		name = cfg.Holidays
	}

	cal, ok := holiday.ByName(name)
	if !ok {
		msg := fmt.Sprintf("unknown holiday calendar %q", name)
		_ = formatter.Error(ErrCodeGeneric, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	year := opts.Year
	if year == 0 {
		year = time.Now().Year()
	}
	occurrences := cal.Year(year)
	formatter.VerboseLog("Calendar %s has %d holiday rule(s)", name, cal.Len())

	var b strings.Builder
	fmt.Fprintf(&b, "Holidays in %d (%s)\n", year, name)
	for _, o := range occurrences {
		fmt.Fprintf(&b, "%s  %s  %s\n", o.Date.Format("2006-01-02"), o.Date.Format("Mon"), o.Name)
	}
	if len(occurrences) == 0 {
		b.WriteString("none\n")
	}
	return formatter.Success(occurrences, b.String())
}
