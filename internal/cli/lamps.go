package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/autodomum/autodomum/internal/config"
	"github.com/autodomum/autodomum/internal/lamp"
	"github.com/autodomum/autodomum/internal/store"
)

// NewLampsCommand creates the lamps command.
func NewLampsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lamps",
		Short: "List configured lamps",
		Long: `List the lamps known to the configured lamp store.

Lamps come from the SQLite database when one is configured, otherwise from
the JSON lamps file.

Example:
  autodomum lamps --config autodomum.yaml
  autodomum lamps --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLamps(rootOpts, cmd)
		},
	}
	return cmd
}

func runLamps(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}

	ctx := commandContext(cmd)
	lamps, closeStore, err := openLamps(ctx, cfg, nil, slog.Default())
	if err != nil {
		_ = formatter.Error(ErrCodeLamps, err.Error(), nil)
		return err
	}
	defer closeStore()

	list, err := lamps.List(ctx)
	if err != nil {
		_ = formatter.Error(ErrCodeLamps, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list lamps", err)
	}
	formatter.VerboseLog("Found %d lamp(s)", len(list))

	return formatter.Success(list, formatLamps(list))
}

func formatLamps(list []lamp.Lamp) string {
	if len(list) == 0 {
		return "No lamps configured."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-4s %-16s %-4s %-10s %s\n", "ID", "NAME", "ON", "POSITION", "CALL IDS")
	for _, l := range list {
		state := "off"
		if l.On {
			state = "on"
		}
		fmt.Fprintf(&b, "%-4s %-16s %-4s %-10s %s\n",
			l.ID, l.Name, state, fmt.Sprintf("%d,%d", l.X, l.Y), strings.Join(l.CallIDs, ","))
	}
	return b.String()
}

// openLamps opens the configured lamp store.
//
// With a database the SQLite store is used; an empty database is seeded from
// the lamps file, if one is set. Without a database the lamps file is loaded
// into a JSONStore. The returned close function is never nil.
func openLamps(ctx context.Context, cfg *config.Config, pub lamp.Publisher, logger *slog.Logger) (lamp.Store, func(), error) {
	nop := func() {}

	if cfg.Database == "" {
		js := lamp.NewJSONStore(pub)
		if cfg.LampsFile == "" {
			logger.Warn("no lamps_file or database configured; lamp store is empty")
			return js, nop, nil
		}
		if err := js.LoadFile(cfg.LampsFile); err != nil {
			return nil, nop, WrapExitError(ExitCommandError, "failed to load lamps", err)
		}
		return js, nop, nil
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, nop, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	closeStore := func() {
		if err := st.Close(); err != nil {
			logger.Error("error closing database", "error", err)
		}
	}
	lamps := st.Lamps(pub)

	existing, err := lamps.List(ctx)
	if err != nil {
		closeStore()
		return nil, nop, WrapExitError(ExitCommandError, "failed to read database", err)
	}
	if len(existing) == 0 && cfg.LampsFile != "" {
		seed := lamp.NewJSONStore(nil)
		if err := seed.LoadFile(cfg.LampsFile); err != nil {
			closeStore()
			return nil, nop, WrapExitError(ExitCommandError, "failed to load lamps", err)
		}
		list, _ := seed.List(ctx)
		if err := lamps.Seed(ctx, list); err != nil {
			closeStore()
			return nil, nop, WrapExitError(ExitCommandError, "failed to seed database", err)
		}
		logger.Info("database seeded", "path", cfg.Database, "lamps", len(list))
	}
	return lamps, closeStore, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
