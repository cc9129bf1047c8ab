package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/autodomum/autodomum/internal/daylight"
)

// DefaultPollTimeout bounds each tick's wait on the delayed-event queue.
// It is also the worst-case shutdown latency.
const DefaultPollTimeout = time.Second

// Daylight supplies sunrise and sunset instants for a coordinate and date.
// Implemented by daylight.Algorithm.
type Daylight interface {
	Sunrise(c daylight.Coordinate, date time.Time) time.Time
	Sunset(c daylight.Coordinate, date time.Time) time.Time
}

// Holiday answers whether a calendar date is a holiday.
// Implemented by holiday.Collection.
type Holiday interface {
	IsHoliday(date time.Time) bool
}

// Recorder receives engine measurements. Implemented by metrics.Metrics.
type Recorder interface {
	EventPublished(kind string)
	CallbackFailed(kind string)
	DelayedScheduled()
	QueueDepth(n int)
	Tick()
	Daylight(on bool)
}

type nopRecorder struct{}

func (nopRecorder) EventPublished(string) {}
func (nopRecorder) CallbackFailed(string) {}
func (nopRecorder) DelayedScheduled()     {}
func (nopRecorder) QueueDepth(int)        {}
func (nopRecorder) Tick()                 {}
func (nopRecorder) Daylight(bool)         {}

// noHolidays is used when no Holiday provider is configured.
type noHolidays struct{}

func (noHolidays) IsHoliday(time.Time) bool { return false }

// State is the engine loop's lifecycle state.
type State int32

const (
	// StateIdle means Run has not been called.
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Engine is the single-goroutine rule engine loop.
//
// Once per tick the loop recomputes the shared Context (possibly publishing
// Sunrise or Sunset), then waits up to the poll timeout for one delayed event
// to become due and publishes it.
//
// Thread-safety model:
//   - Register, Unregister, Publish, Schedule*: safe from any goroutine
//   - Run: at most once per Engine
//   - Publish called from outside the loop runs callbacks on the caller's
//     goroutine; there is no hand-off to the loop
type Engine struct {
	clock       Clock
	loc         *time.Location
	daylight    Daylight
	holiday     Holiday
	ctx         *Context
	registry    *registry
	queue       *delayQueue
	handles     HandleGenerator
	pollTimeout time.Duration
	logger      *slog.Logger
	recorder    Recorder
	seed        uint64
	seeded      bool
	maxDepth    int

	state   atomic.Int32
	started atomic.Bool

	// Start/Stop bookkeeping.
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxPublishDepth bounds nested Publish calls. Zero or less means
// DefaultMaxPublishDepth.
func WithMaxPublishDepth(n int) Option {
	return func(e *Engine) { e.maxDepth = n }
}

// WithClock replaces the wall clock. Used by tests.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLocation sets the time zone for hour/minute, dates and ScheduleOnceAt.
// Default: time.Local.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithPollTimeout overrides DefaultPollTimeout.
func WithPollTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollTimeout = d
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics attaches a Recorder.
func WithMetrics(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithRandSeed makes the context's random source deterministic.
func WithRandSeed(seed uint64) Option {
	return func(e *Engine) {
		e.seed = seed
		e.seeded = true
	}
}

// WithHandleGenerator replaces the UUIDv7 registration handle generator.
func WithHandleGenerator(g HandleGenerator) Option {
	return func(e *Engine) {
		if g != nil {
			e.handles = g
		}
	}
}

// New creates an Engine for the given coordinate.
//
// dl is required. A nil hol means no date is a holiday.
func New(coord daylight.Coordinate, dl Daylight, hol Holiday, opts ...Option) (*Engine, error) {
	if dl == nil {
		return nil, invalidArgument("new engine", "daylight provider is required")
	}
	if hol == nil {
		hol = noHolidays{}
	}

	e := &Engine{
		clock:       SystemClock{},
		loc:         time.Local,
		daylight:    dl,
		holiday:     hol,
		registry:    newRegistry(),
		handles:     UUIDv7Generator{},
		pollTimeout: DefaultPollTimeout,
		logger:      slog.Default(),
		recorder:    nopRecorder{},
	}

	for _, opt := range opts {
		opt(e)
	}

	if !e.seeded {
		e.seed = uint64(e.clock.Now().UnixNano())
	}
	e.ctx = newContext(coord, e.seed)
	e.queue = newDelayQueue(e.clock)
	e.maxDepth = maxDepth(e.maxDepth)

	return e, nil
}

// Context returns the engine's shared context.
func (e *Engine) Context() *Context {
	return e.ctx
}

// Location returns the engine's time zone.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Now returns the engine clock's current instant in the engine's location.
func (e *Engine) Now() time.Time {
	return e.clock.Now().In(e.loc)
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Register adds cb to the callbacks for kind and returns its handle.
// Registering the same callback twice yields two handles and two invocations
// per publish.
func (e *Engine) Register(kind Kind, cb Callback) (Handle, error) {
	if !kind.Valid() {
		return "", invalidArgument("register", fmt.Sprintf("invalid event kind %s", kind))
	}
	if isNilCallback(cb) {
		return "", invalidArgument("register", "callback is required")
	}

	h := e.handles.Generate()
	e.registry.add(kind, registration{handle: h, callback: cb})
	e.logger.Debug("callback registered", "kind", kind.String(), "handle", string(h))
	return h, nil
}

// Unregister removes the registration identified by h. Unknown handles are
// ignored.
func (e *Engine) Unregister(kind Kind, h Handle) error {
	if !kind.Valid() {
		return invalidArgument("unregister", fmt.Sprintf("invalid event kind %s", kind))
	}
	if h == "" {
		return invalidArgument("unregister", "handle is required")
	}

	if e.registry.remove(kind, h) {
		e.logger.Debug("callback unregistered", "kind", kind.String(), "handle", string(h))
	}
	return nil
}

// Callbacks returns how many callbacks are registered for kind.
func (e *Engine) Callbacks(kind Kind) int {
	return e.registry.count(kind)
}

// Publish invokes every callback registered for ev's kind, in registration
// order, on the calling goroutine.
//
// Callback failures are logged and counted but never returned: one failing
// callback does not prevent the others from running.
func (e *Engine) Publish(ev Event) error {
	return e.PublishContext(context.Background(), ev)
}

// PublishContext is Publish for code running on behalf of another event.
// ctx is normally a callback's Context.Dispatch (or derived from it); its
// chain of enclosing publishes is checked against the nesting limit, and a
// publish past the limit invokes nothing and returns a cycle error.
// A top-level publish is never refused for depth.
func (e *Engine) PublishContext(ctx context.Context, ev Event) error {
	if ev == nil {
		return invalidArgument("publish", "event is required")
	}
	kind := ev.Kind()
	if !kind.Valid() {
		return invalidArgument("publish", fmt.Sprintf("invalid event kind %s", kind))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	depth := publishDepth(ctx)
	if depth >= e.maxDepth {
		e.logger.Error("publish cycle detected", "kind", kind.String(), "max_depth", e.maxDepth)
		return &Error{
			Code:    ErrCodeCycle,
			Op:      "publish",
			Message: fmt.Sprintf("nested publish depth exceeded %d", e.maxDepth),
		}
	}
	view := e.ctx.within(nested(ctx, depth))

	e.recorder.EventPublished(kind.String())

	for _, reg := range e.registry.snapshot(kind) {
		if err := e.invoke(view, reg, ev); err != nil {
			e.recorder.CallbackFailed(kind.String())
			e.logger.Error("callback failed",
				"kind", kind.String(),
				"handle", string(reg.handle),
				"error", err,
			)
		}
	}
	return nil
}

// invoke runs one callback, converting a returned error or panic into a
// handler-failure error.
func (e *Engine) invoke(c *Context, reg registration, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{
				Code:    ErrCodeHandlerFailure,
				Op:      "publish",
				Message: fmt.Sprintf("callback panicked: %v", r),
			}
		}
	}()

	if cbErr := reg.callback.Handle(c, ev); cbErr != nil {
		return &Error{
			Code:    ErrCodeHandlerFailure,
			Op:      "publish",
			Message: "callback returned error",
			Err:     cbErr,
		}
	}
	return nil
}

// Schedule queues a delayed event.
func (e *Engine) Schedule(ev DelayedEvent) error {
	if ev == nil {
		return invalidArgument("schedule", "delayed event is required")
	}

	e.queue.Push(ev)
	e.recorder.DelayedScheduled()
	e.recorder.QueueDepth(e.queue.Len())
	e.logger.Debug("delayed event scheduled",
		"kind", ev.Kind().String(),
		"fire_at", ev.FireAt(),
	)
	return nil
}

// ScheduleOnceAt schedules a FireOnce named name at hour:minute:00 on
// tomorrow's date in the engine's location.
func (e *Engine) ScheduleOnceAt(hour, minute int, name string) (FireOnce, error) {
	if hour < 0 || hour > 23 {
		return FireOnce{}, invalidArgument("schedule once at", fmt.Sprintf("hour %d out of range [0,23]", hour))
	}
	if minute < 0 || minute > 59 {
		return FireOnce{}, invalidArgument("schedule once at", fmt.Sprintf("minute %d out of range [0,59]", minute))
	}
	name, err := eventName("schedule once at", name)
	if err != nil {
		return FireOnce{}, err
	}

	now := e.Now()
	at := time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, 0, 0, e.loc)

	ev := NewFireOnce(name, at)
	return ev, e.Schedule(ev)
}

// ScheduleOnceIn schedules a FireOnce named name to fire d from now.
func (e *Engine) ScheduleOnceIn(d time.Duration, name string) (FireOnce, error) {
	if d < 0 {
		return FireOnce{}, invalidArgument("schedule once in", fmt.Sprintf("negative delay %s", d))
	}
	name, err := eventName("schedule once in", name)
	if err != nil {
		return FireOnce{}, err
	}

	ev := NewFireOnce(name, e.Now().Add(d))
	return ev, e.Schedule(ev)
}

// Pending returns the queued delayed events in fire order.
func (e *Engine) Pending() []DelayedEvent {
	return e.queue.Pending()
}

// UpdateContext recomputes the shared context from the clock and the
// daylight and holiday providers, publishing Sunrise or Sunset when the
// daylight value flips.
//
// Called by the loop once per tick. Repeated calls at the same instant
// produce the same context and publish nothing new.
func (e *Engine) UpdateContext() {
	now := e.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.loc)
	tomorrow := today.AddDate(0, 0, 1)
	coord := e.ctx.Coordinate()

	sunriseToday := e.daylight.Sunrise(coord, today)
	sunsetToday := e.daylight.Sunset(coord, today)
	sunriseTomorrow := e.daylight.Sunrise(coord, tomorrow)
	sunsetTomorrow := e.daylight.Sunset(coord, tomorrow)

	r := recomputed{
		hour:    now.Hour(),
		minute:  now.Minute(),
		holiday: e.holiday.IsHoliday(today),
	}

	switch {
	case !now.Before(sunsetToday):
		r.daylight = boolPtr(false)
		r.nextSunrise = sunriseTomorrow
		r.nextSunset = sunsetTomorrow
	case !now.Before(sunriseToday):
		r.daylight = boolPtr(true)
		r.nextSunrise = sunriseTomorrow
		r.nextSunset = sunsetToday
	default:
		// Before sunrise: daylight keeps whatever the previous evening set.
		r.nextSunrise = sunriseToday
		r.nextSunset = sunsetToday
	}

	flipped, isDaylight := e.ctx.apply(r)
	if !flipped {
		return
	}

	e.recorder.Daylight(isDaylight)
	if isDaylight {
		e.logger.Info("sunrise", "at", sunriseToday)
		_ = e.Publish(Sunrise{At: sunriseToday})
	} else {
		e.logger.Info("sunset", "at", sunsetToday)
		_ = e.Publish(Sunset{At: sunsetToday})
	}
}

// Run executes the engine loop until ctx is cancelled.
//
// Publishes Startup after the first recompute and Shutdown on cancellation.
// A panic escaping the loop body ends the loop without Shutdown and is
// returned as a loop-fatal error. Cancellation is not an error: Run returns
// nil.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return &Error{Code: ErrCodeAlreadyStarted, Op: "run", Message: "engine loop already started"}
	}
	return e.run(ctx)
}

func (e *Engine) run(ctx context.Context) (err error) {
	e.setState(StateStarting)
	defer e.setState(StateStopped)

	defer func() {
		if r := recover(); r != nil {
			err = &Error{
				Code:    ErrCodeLoopFatal,
				Op:      "run",
				Message: fmt.Sprintf("engine loop panicked: %v", r),
			}
			e.logger.Error("engine loop terminated", "error", err)
		}
	}()

	e.logger.Info("engine starting",
		"latitude", e.ctx.Coordinate().Latitude,
		"longitude", e.ctx.Coordinate().Longitude,
		"location", e.loc.String(),
	)

	e.UpdateContext()
	_ = e.Publish(Startup{})
	e.setState(StateRunning)

	for ctx.Err() == nil {
		e.tick(ctx)
	}

	e.setState(StateStopping)
	e.logger.Info("engine stopping: context cancelled")
	_ = e.Publish(Shutdown{})
	e.logger.Info("engine stopped")
	return nil
}

// tick performs one recompute-then-poll iteration.
func (e *Engine) tick(ctx context.Context) {
	e.recorder.Tick()
	e.UpdateContext()

	ev, ok := e.queue.Poll(ctx, e.pollTimeout)
	if !ok {
		return
	}
	e.recorder.QueueDepth(e.queue.Len())
	e.logger.Debug("delayed event ready", "kind", ev.Kind().String(), "fire_at", ev.FireAt())
	_ = e.Publish(ev)
}

// Start runs the loop in a new goroutine.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started.CompareAndSwap(false, true) {
		return &Error{Code: ErrCodeAlreadyStarted, Op: "start", Message: "engine loop already started"}
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done

	go func() {
		defer close(done)
		err := e.run(runCtx)
		e.mu.Lock()
		e.runErr = err
		e.mu.Unlock()
	}()
	return nil
}

// Stop cancels a loop started with Start and waits for it to exit.
// Returns the loop-fatal error, if the loop ended on one.
func (e *Engine) Stop() error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()
	<-done

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runErr
}

func eventName(op, name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return "", invalidArgument(op, "name is required")
	}
	return name, nil
}

func isNilCallback(cb Callback) bool {
	if cb == nil {
		return true
	}
	if f, ok := cb.(CallbackFunc); ok && f == nil {
		return true
	}
	return false
}

func boolPtr(b bool) *bool { return &b }
