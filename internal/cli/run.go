package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/autodomum/autodomum/internal/api"
	"github.com/autodomum/autodomum/internal/config"
	"github.com/autodomum/autodomum/internal/daylight"
	"github.com/autodomum/autodomum/internal/driver"
	"github.com/autodomum/autodomum/internal/engine"
	"github.com/autodomum/autodomum/internal/metrics"
	"github.com/autodomum/autodomum/internal/rules"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	RulesFile  string
	Database   string
	LampsFile  string
	ListenAddr string

	// Clock overrides the engine clock (for testing).
	// If nil, defaults to the system clock.
	Clock engine.Clock
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the engine",
		Long: `Start the autodomum engine.

Loads the lamp store and the rule file, attaches the configured device driver,
serves the HTTP API and runs the event loop until interrupted. Flags override
the corresponding config keys.

Example:
  autodomum run --config autodomum.yaml
  autodomum run --rules examples/rules.yaml --lamps examples/lamps.json --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RulesFile, "rules", "", "rule file (.yaml or .cue), overrides rules_file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database, overrides database")
	cmd.Flags().StringVar(&opts.LampsFile, "lamps", "", "JSON lamps file, overrides lamps_file")
	cmd.Flags().StringVar(&opts.ListenAddr, "listen", "", "HTTP listen address, overrides listen_addr")

	return cmd
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	opts.applyFlags(cmd, cfg)

	logger := cfg.NewLogger(cmd.ErrOrStderr(), opts.Verbose)
	slog.SetDefault(logger)

	loc, err := cfg.Location()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid timezone", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register metrics", err)
	}

	engineOpts := []engine.Option{
		engine.WithLocation(loc),
		engine.WithPollTimeout(cfg.PollTimeout.Std()),
		engine.WithLogger(logger),
		engine.WithMetrics(m),
	}
	if cfg.RandomSeed != nil {
		engineOpts = append(engineOpts, engine.WithRandSeed(*cfg.RandomSeed))
	}
	if opts.Clock != nil {
		engineOpts = append(engineOpts, engine.WithClock(opts.Clock))
	}
	eng, err := engine.New(cfg.Coordinate(), daylight.Algorithm{}, cfg.HolidayCalendar(), engineOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	lamps, closeLamps, err := openLamps(ctx, cfg, eng, logger)
	if err != nil {
		return err
	}
	defer closeLamps()

	var wg sync.WaitGroup
	defer wg.Wait()
	// cancel runs before wg.Wait so workers see the shutdown.
	defer cancel()

	if err := attachDriver(ctx, cfg, eng, logger, &wg); err != nil {
		return err
	}

	host := rules.NewHost(eng, lamps, logger)
	if cfg.RulesFile != "" {
		if err := host.LoadFile(cfg.RulesFile); err != nil {
			return WrapExitError(ExitFailure, "failed to load rules", err)
		}
	} else {
		logger.Warn("no rules_file configured; engine will only publish daylight events")
	}

	serveErr := make(chan error, 1)
	if cfg.ListenAddr != "" {
		srv := api.NewServer(eng, lamps, m, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(ctx, cfg.ListenAddr); err != nil {
				serveErr <- err
				cancel()
			}
		}()
	}

	logger.Info("autodomum starting", "rules", cfg.RulesFile, "listen", cfg.ListenAddr, "driver", cfg.Driver.Kind)
	fmt.Fprintln(cmd.OutOrStdout(), "Engine started.")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := eng.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	select {
	case err := <-serveErr:
		return WrapExitError(ExitCommandError, "http server failed", err)
	default:
	}

	logger.Info("engine stopped gracefully", "rule_failures", host.Failures())
	return nil
}

// applyFlags copies explicitly set run flags over cfg.
func (o *RunOptions) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("rules") {
		cfg.RulesFile = o.RulesFile
	}
	if flags.Changed("db") {
		cfg.Database = o.Database
	}
	if flags.Changed("lamps") {
		cfg.LampsFile = o.LampsFile
	}
	if flags.Changed("listen") {
		cfg.ListenAddr = o.ListenAddr
	}
}

// attachDriver registers the configured device driver with the engine.
// Background workers are tracked by wg and stop when ctx is cancelled.
func attachDriver(ctx context.Context, cfg *config.Config, eng *engine.Engine, logger *slog.Logger, wg *sync.WaitGroup) error {
	switch cfg.Driver.Kind {
	case config.DriverTelldus:
		t := driver.NewTelldus(
			driver.WithTool(cfg.Driver.Tdtool),
			driver.WithRepeat(cfg.Driver.Repeat),
			driver.WithGap(cfg.Driver.Gap.Std()),
			driver.WithTelldusLogger(logger),
		)
		if _, err := driver.Attach(eng, t); err != nil {
			return WrapExitError(ExitCommandError, "failed to attach telldus driver", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = t.Run(ctx)
		}()
		logger.Info("telldus driver attached", "tool", cfg.Driver.Tdtool)

	case config.DriverMQTT:
		client, err := driver.Connect(driver.MQTTConfig{
			Broker:   cfg.Driver.MQTT.Broker,
			ClientID: cfg.Driver.MQTT.ClientID,
			Username: cfg.Driver.MQTT.Username,
			Password: cfg.Driver.MQTT.Password,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to connect to mqtt broker", err)
		}
		m := driver.NewMQTT(client, cfg.Driver.MQTT.Topic, logger)
		if _, err := driver.Attach(eng, m); err != nil {
			client.Disconnect(250)
			return WrapExitError(ExitCommandError, "failed to attach mqtt driver", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Run(ctx)
			client.Disconnect(250)
		}()
		logger.Info("mqtt driver attached", "broker", cfg.Driver.MQTT.Broker, "topic", m.Topic("+"))

	default:
		logger.Info("no device driver configured; lamp changes are not sent anywhere")
	}
	return nil
}
