package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/autodomum/autodomum/internal/daylight"
)

// SunOptions holds flags for the sun command.
type SunOptions struct {
	*RootOptions
	Date string
	Days int

	// Now overrides the current time when Date is empty (for testing).
	Now func() time.Time
}

type sunDay struct {
	Date     string    `json:"date"`
	Sunrise  time.Time `json:"sunrise"`
	Sunset   time.Time `json:"sunset"`
	Daylight string    `json:"daylight"`
}

// NewSunCommand creates the sun command.
func NewSunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SunOptions{RootOptions: rootOpts, Now: time.Now}

	cmd := &cobra.Command{
		Use:   "sun",
		Short: "Show sunrise and sunset times",
		Long: `Show sunrise and sunset at the configured location.

Times are computed with the same daylight model the engine uses and are shown
in the configured time zone.

Example:
  autodomum sun
  autodomum sun --date 2016-06-21 --days 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSun(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "first date (YYYY-MM-DD, default today)")
	cmd.Flags().IntVar(&opts.Days, "days", 1, "number of days to show")

	return cmd
}

func runSun(opts *SunOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	loc, _ := cfg.Location() // validated by loadConfig

	if opts.Days < 1 || opts.Days > 366 {
		msg := fmt.Sprintf("--days must be between 1 and 366, got %d", opts.Days)
		_ = formatter.Error(ErrCodeGeneric, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	start := opts.Now().In(loc)
	if opts.Date != "" {
		start, err = time.ParseInLocation("2006-01-02", opts.Date, loc)
		if err != nil {
			msg := fmt.Sprintf("invalid --date %q: expected YYYY-MM-DD", opts.Date)
			_ = formatter.Error(ErrCodeGeneric, msg, nil)
			return NewExitError(ExitCommandError, msg)
		}
	}

	coord := cfg.Coordinate()
	days := sunTable(daylight.Algorithm{}, coord, start, opts.Days)

	var b strings.Builder
	fmt.Fprintf(&b, "Sunrise and sunset at %s (%s)\n", coord, loc)
	for _, d := range days {
		fmt.Fprintf(&b, "%s  %s  %s  %s\n",
			d.Date, d.Sunrise.Format("15:04"), d.Sunset.Format("15:04"), d.Daylight)
	}
	return formatter.Success(days, b.String())
}

func sunTable(alg daylight.Algorithm, coord daylight.Coordinate, start time.Time, n int) []sunDay {
	days := make([]sunDay, 0, n)
	for i := 0; i < n; i++ {
		date := time.Date(start.Year(), start.Month(), start.Day()+i, 0, 0, 0, 0, start.Location())
		rise := alg.Sunrise(coord, date)
		set := alg.Sunset(coord, date)
		days = append(days, sunDay{
			Date:     date.Format("2006-01-02"),
			Sunrise:  rise,
			Sunset:   set,
			Daylight: formatLength(set.Sub(rise)),
		})
	}
	return days
}

// formatLength renders d as "13h18m".
func formatLength(d time.Duration) string {
	d = d.Round(time.Minute)
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}
