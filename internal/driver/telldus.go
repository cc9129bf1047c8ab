package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/autodomum/autodomum/internal/engine"
	"github.com/autodomum/autodomum/internal/lamp"
)

const (
	// DefaultTdtool is the Telldus command line tool.
	DefaultTdtool = "tdtool"
	// DefaultRepeat is how many times each switch call is sent. RF receivers
	// miss single transmissions.
	DefaultRepeat = 3
	// DefaultGap is the pause between call ids.
	DefaultGap = 1500 * time.Millisecond
	// DefaultBuffer is the number of pending lamp snapshots.
	DefaultBuffer = 64
)

// ErrBacklog is returned by Handle when the worker has fallen behind.
var ErrBacklog = errors.New("telldus: backlog full")

// Runner executes one external command.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, name string, args ...string) error

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) error {
	return f(ctx, name, args...)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Telldus switches lamps through the tdtool command.
//
// Handle only enqueues; Run performs the calls on its own goroutine so the
// engine loop never waits on a device.
type Telldus struct {
	tool   string
	repeat int
	gap    time.Duration
	runner Runner
	logger *slog.Logger
	queue  chan lamp.Lamp
}

// TelldusOption configures a Telldus driver.
type TelldusOption func(*Telldus)

// WithTool overrides the tdtool path.
func WithTool(path string) TelldusOption {
	return func(t *Telldus) {
		if path != "" {
			t.tool = path
		}
	}
}

// WithRepeat sets how many times each call id is switched.
func WithRepeat(n int) TelldusOption {
	return func(t *Telldus) {
		if n > 0 {
			t.repeat = n
		}
	}
}

// WithGap sets the pause between call ids. Zero disables it.
func WithGap(d time.Duration) TelldusOption {
	return func(t *Telldus) {
		if d >= 0 {
			t.gap = d
		}
	}
}

// WithRunner replaces the command runner. Used by tests.
func WithRunner(r Runner) TelldusOption {
	return func(t *Telldus) {
		if r != nil {
			t.runner = r
		}
	}
}

// WithBuffer sets the queue capacity.
func WithBuffer(n int) TelldusOption {
	return func(t *Telldus) {
		if n > 0 {
			t.queue = make(chan lamp.Lamp, n)
		}
	}
}

// WithTelldusLogger sets the logger. Default: slog.Default().
func WithTelldusLogger(l *slog.Logger) TelldusOption {
	return func(t *Telldus) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTelldus creates a Telldus driver.
func NewTelldus(opts ...TelldusOption) *Telldus {
	t := &Telldus{
		tool:   DefaultTdtool,
		repeat: DefaultRepeat,
		gap:    DefaultGap,
		runner: ExecRunner{},
		logger: slog.Default(),
		queue:  make(chan lamp.Lamp, DefaultBuffer),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Handle implements engine.Callback. Other event kinds are ignored.
func (t *Telldus) Handle(_ *engine.Context, ev engine.Event) error {
	l, ok := lampOf(ev)
	if !ok {
		return nil
	}
	select {
	case t.queue <- l.Clone():
		return nil
	default:
		return fmt.Errorf("%w: dropping %s", ErrBacklog, l.ID)
	}
}

// Pending returns the number of queued lamp snapshots.
func (t *Telldus) Pending() int {
	return len(t.queue)
}

// Run drains the queue until ctx is cancelled.
func (t *Telldus) Run(ctx context.Context) error {
	t.logger.Info("telldus driver started", "tool", t.tool)
	defer t.logger.Info("telldus driver stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case l := <-t.queue:
			if err := t.apply(ctx, l); err != nil {
				return nil
			}
		}
	}
}

// apply switches every call id of l. It returns an error only when ctx is
// cancelled mid-sequence.
func (t *Telldus) apply(ctx context.Context, l lamp.Lamp) error {
	flag := "--off"
	if l.On {
		flag = "--on"
	}

	for _, id := range l.CallIDs {
		for i := 0; i < t.repeat; i++ {
			if err := t.runner.Run(ctx, t.tool, flag, id); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				t.logger.Warn("tdtool call failed", "lamp", l.ID, "call_id", id, "error", err)
				break
			}
			t.logger.Debug("tdtool call", "flag", flag, "call_id", id)
		}

		if err := sleep(ctx, t.gap); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
