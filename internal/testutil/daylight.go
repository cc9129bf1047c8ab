package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/autodomum/autodomum/internal/daylight"
)

// FixedDaylight returns canned sunrise and sunset instants per calendar date.
//
// Dates without an entry panic, so a test that drifts onto an unexpected day
// fails loudly instead of computing against zero times.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedDaylight struct {
	mu    sync.Mutex
	days  map[string][2]time.Time
	calls int
}

// NewFixedDaylight creates an empty table.
func NewFixedDaylight() *FixedDaylight {
	return &FixedDaylight{days: make(map[string][2]time.Time)}
}

// Add registers sunrise and sunset for the calendar date of sunrise.
func (d *FixedDaylight) Add(sunrise, sunset time.Time) *FixedDaylight {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.days[sunrise.Format("2006-01-02")] = [2]time.Time{sunrise, sunset}
	return d
}

// Sunrise implements engine.Daylight.
func (d *FixedDaylight) Sunrise(_ daylight.Coordinate, date time.Time) time.Time {
	return d.lookup(date)[0]
}

// Sunset implements engine.Daylight.
func (d *FixedDaylight) Sunset(_ daylight.Coordinate, date time.Time) time.Time {
	return d.lookup(date)[1]
}

// Calls returns how many lookups have been made.
func (d *FixedDaylight) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *FixedDaylight) lookup(date time.Time) [2]time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	key := date.Format("2006-01-02")
	day, ok := d.days[key]
	if !ok {
		panic(fmt.Sprintf("FixedDaylight: no entry for %s", key))
	}
	return day
}

// HolidaySet treats the listed "2006-01-02" dates as holidays.
type HolidaySet map[string]bool

// IsHoliday implements engine.Holiday.
func (h HolidaySet) IsHoliday(date time.Time) bool {
	return h[date.Format("2006-01-02")]
}
