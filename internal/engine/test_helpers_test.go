package engine

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autodomum/autodomum/internal/daylight"
	"github.com/autodomum/autodomum/internal/testutil"
)

func at(s string) time.Time {
	return testutil.MustParse(time.UTC, s)
}

// scenarioDaylight is the fixed sunrise/sunset table for early April 2016.
func scenarioDaylight() *testutil.FixedDaylight {
	return testutil.NewFixedDaylight().
		Add(at("2016-04-04 06:39:14"), at("2016-04-04 18:36:15")).
		Add(at("2016-04-05 06:37:08"), at("2016-04-05 18:38:09")).
		Add(at("2016-04-06 06:35:02"), at("2016-04-06 18:40:03")).
		Add(at("2016-04-07 06:32:56"), at("2016-04-07 18:42:01"))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngineAt creates an engine in UTC whose clock reads now.
func newTestEngineAt(t *testing.T, now string, opts ...Option) (*Engine, *testutil.FakeClock) {
	t.Helper()

	clock := testutil.NewFakeClock(at(now))
	base := []Option{
		WithClock(clock),
		WithLocation(time.UTC),
		WithLogger(discardLogger()),
		WithRandSeed(42),
		WithPollTimeout(10 * time.Millisecond),
	}

	e, err := New(daylight.Stockholm, scenarioDaylight(), testutil.HolidaySet{}, append(base, opts...)...)
	require.NoError(t, err)
	return e, clock
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, _ := newTestEngineAt(t, "2016-04-05 12:00:00", opts...)
	return e
}

// eventRecorder is a callback that records every event it receives.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
	ctxs   []*Context
}

func (r *eventRecorder) Handle(c *Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	r.ctxs = append(r.ctxs, c)
	return nil
}

func (r *eventRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// record registers a fresh recorder for kind.
func record(t *testing.T, e *Engine, kind Kind) *eventRecorder {
	t.Helper()
	r := &eventRecorder{}
	_, err := e.Register(kind, r)
	require.NoError(t, err)
	return r
}

// countingRecorder is a Recorder that counts calls.
type countingRecorder struct {
	mu        sync.Mutex
	published map[string]int
	failed    map[string]int
	scheduled int
	depth     int
	ticks     int
	daylight  []bool
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{published: map[string]int{}, failed: map[string]int{}}
}

func (r *countingRecorder) EventPublished(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published[kind]++
}

func (r *countingRecorder) CallbackFailed(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[kind]++
}

func (r *countingRecorder) DelayedScheduled() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled++
}

func (r *countingRecorder) QueueDepth(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.depth = n
}

func (r *countingRecorder) Tick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks++
}

func (r *countingRecorder) Daylight(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.daylight = append(r.daylight, on)
}
