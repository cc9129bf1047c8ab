package lamp

import (
	"time"

	"github.com/autodomum/autodomum/internal/daylight"
)

// daylightStub satisfies engine.Daylight for tests that never run the loop.
type daylightStub struct{}

func (daylightStub) coord() daylight.Coordinate { return daylight.Stockholm }

func (daylightStub) Sunrise(_ daylight.Coordinate, date time.Time) time.Time {
	return date.Add(6 * time.Hour)
}

func (daylightStub) Sunset(_ daylight.Coordinate, date time.Time) time.Time {
	return date.Add(18 * time.Hour)
}
