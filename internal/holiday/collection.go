package holiday

import "time"

// Named pairs a Holiday with its display name.
type Named struct {
	Name    string
	Holiday Holiday
}

// Occurrence is a holiday falling on a specific date.
type Occurrence struct {
	Name string    `json:"name"`
	Date time.Time `json:"date"`
}

// Collection is a set of holidays. A date is a holiday when any member says
// so. The zero value is an empty collection.
type Collection struct {
	holidays []Named
}

// NewCollection creates a collection, preserving the given order.
func NewCollection(holidays ...Named) *Collection {
	hs := make([]Named, 0, len(holidays))
	for _, h := range holidays {
		if h.Holiday != nil {
			hs = append(hs, h)
		}
	}
	return &Collection{holidays: hs}
}

// IsHoliday implements Holiday.
func (c *Collection) IsHoliday(date time.Time) bool {
	_, ok := c.Match(date)
	return ok
}

// Match returns the name of the first member that matches date.
func (c *Collection) Match(date time.Time) (string, bool) {
	if c == nil {
		return "", false
	}
	for _, h := range c.holidays {
		if h.Holiday.IsHoliday(date) {
			return h.Name, true
		}
	}
	return "", false
}

// Len returns the number of holidays in the collection.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.holidays)
}

// Year lists every holiday occurrence in year, in date order.
func (c *Collection) Year(year int) []Occurrence {
	var out []Occurrence
	for d := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC); d.Year() == year; d = d.AddDate(0, 0, 1) {
		if name, ok := c.Match(d); ok {
			out = append(out, Occurrence{Name: name, Date: d})
		}
	}
	return out
}

// Sweden returns the Swedish public holidays plus the eves that are
// observed as days off.
func Sweden() *Collection {
	return NewCollection(
		Named{"New Year's Day", Fixed{time.January, 1}},
		Named{"Epiphany", Fixed{time.January, 6}},
		Named{"Good Friday", EasterRelative{-2}},
		Named{"Easter Sunday", EasterRelative{0}},
		Named{"Easter Monday", EasterRelative{1}},
		Named{"First of May", Fixed{time.May, 1}},
		Named{"Ascension Day", EasterRelative{39}},
		Named{"Whitsun Day", EasterRelative{49}},
		Named{"Whit Monday", EasterRelative{50}},
		Named{"National Day of Sweden", Fixed{time.June, 6}},
		Named{"Midsummer Eve", WeekdayInRange{time.Friday, time.June, 19}},
		Named{"Midsummer Day", WeekdayInRange{time.Saturday, time.June, 20}},
		Named{"All Saints' Day", WeekdayInRange{time.Saturday, time.October, 31}},
		Named{"Christmas Eve", Fixed{time.December, 24}},
		Named{"Christmas Day", Fixed{time.December, 25}},
		Named{"Boxing Day", Fixed{time.December, 26}},
		Named{"New Year's Eve", Fixed{time.December, 31}},
	)
}

// ByName returns the named holiday set. Known names: "sweden", "none".
func ByName(name string) (*Collection, bool) {
	switch name {
	case "sweden", "se":
		return Sweden(), true
	case "none", "":
		return NewCollection(), true
	default:
		return nil, false
	}
}
