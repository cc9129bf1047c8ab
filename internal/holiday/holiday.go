// Package holiday answers whether a calendar date is a public holiday.
//
// Only the calendar date of the given time is considered; clock time and
// location offset are ignored.
package holiday

import (
	"time"
)

// Holiday reports whether a date is a holiday.
type Holiday interface {
	IsHoliday(date time.Time) bool
}

// Func adapts a plain function to Holiday.
type Func func(date time.Time) bool

// IsHoliday implements Holiday.
func (f Func) IsHoliday(date time.Time) bool { return f(date) }

// Fixed is a holiday on the same month and day every year.
type Fixed struct {
	Month time.Month
	Day   int
}

// IsHoliday implements Holiday.
func (f Fixed) IsHoliday(date time.Time) bool {
	return date.Month() == f.Month && date.Day() == f.Day
}

// EasterRelative is a holiday a fixed number of days from Easter Sunday.
type EasterRelative struct {
	Offset int
}

// IsHoliday implements Holiday.
func (e EasterRelative) IsHoliday(date time.Time) bool {
	target := Easter(date.Year()).AddDate(0, 0, e.Offset)
	return sameDate(civil(date), target)
}

// WeekdayInRange is a holiday on the given weekday within the seven days
// starting at Month/Day. Midsummer Eve, for example, is the Friday between
// 19 and 25 June.
type WeekdayInRange struct {
	Weekday time.Weekday
	Month   time.Month
	Day     int
}

// IsHoliday implements Holiday.
func (w WeekdayInRange) IsHoliday(date time.Time) bool {
	if date.Weekday() != w.Weekday {
		return false
	}
	d := civil(date)
	start := time.Date(d.Year(), w.Month, w.Day, 0, 0, 0, 0, time.UTC)
	days := int(d.Sub(start).Hours() / 24)
	return days >= 0 && days < 7
}

// Easter returns Easter Sunday of the Gregorian year, at midnight UTC.
// Uses the anonymous Gregorian algorithm (Meeus/Jones/Butcher).
func Easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451

	month := time.Month((h + l - 7*m + 114) / 31)
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// civil maps t onto midnight UTC of its calendar date.
func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
