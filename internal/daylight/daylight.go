// Package daylight computes sunrise and sunset for a coordinate and date.
//
// Day length follows the CBM model from "A Model Comparison for Daylength as
// a function of latitude and day of the year" (Ecological Modelling 80,
// 1995), using a 0.8333 degree horizon. Solar noon is anchored at 12:00 local
// wall time and corrected by the equation of time.
package daylight

import (
	"fmt"
	"math"
	"time"
)

// Coordinate is a geographic position in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Stockholm is the default coordinate.
var Stockholm = Coordinate{Latitude: 59.334591, Longitude: 18.063240}

// Validate checks the coordinate is on the globe.
func (c Coordinate) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 || math.IsNaN(c.Latitude) {
		return fmt.Errorf("latitude %v out of range [-90,90]", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 || math.IsNaN(c.Longitude) {
		return fmt.Errorf("longitude %v out of range [-180,180]", c.Longitude)
	}
	return nil
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Latitude, c.Longitude)
}

// Algorithm implements the engine's daylight provider. The zero value is
// ready to use.
type Algorithm struct{}

// Length returns the hours of daylight at latitude on the given day of year.
// Polar day yields 24 and polar night 0.
func (Algorithm) Length(latitude float64, day int) float64 {
	p := math.Asin(.39795 * math.Cos(.2163108+2*math.Atan(.9671396*math.Tan(.00860*float64(day-186)))))

	lat := latitude * math.Pi / 180
	x := (math.Sin(0.8333*math.Pi/180) + math.Sin(lat)*math.Sin(p)) / (math.Cos(lat) * math.Cos(p))
	x = math.Max(-1, math.Min(1, x))

	return 24 - (24/math.Pi)*math.Acos(x)
}

// LocalSolarTime returns the equation-of-time correction in minutes for the
// given day of year.
func (Algorithm) LocalSolarTime(day int) float64 {
	b := (360.0 / 365.0) * float64(day-81) * math.Pi / 180
	return 9.87*math.Sin(2*b) - 7.53*math.Cos(b) - 1.5*math.Sin(b)
}

// Sunrise returns the sunrise instant on date's calendar day, in date's
// location.
func (a Algorithm) Sunrise(c Coordinate, date time.Time) time.Time {
	return a.event(c, date, -1)
}

// Sunset returns the sunset instant on date's calendar day, in date's
// location.
func (a Algorithm) Sunset(c Coordinate, date time.Time) time.Time {
	return a.event(c, date, 1)
}

// event offsets local noon by half the day length in direction sign.
func (a Algorithm) event(c Coordinate, date time.Time, sign int) time.Time {
	day := date.YearDay()
	total := a.Length(c.Latitude, day)

	hours := int(total)
	minutes := int((total - float64(hours)) * 60)

	t := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, date.Location())
	t = t.Add(time.Duration(sign*hours/2) * time.Hour)
	t = t.Add(time.Duration(sign*minutes/2) * time.Minute)
	t = t.Add(time.Duration(int(a.LocalSolarTime(day))) * time.Minute)

	if t.IsDST() {
		t = t.Add(time.Hour)
	}
	return t
}
