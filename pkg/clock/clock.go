package clock

import "time"

// Clock abstracts "now" so time-sensitive services can be tested with fixed
// instants.
type Clock interface {
	Now() time.Time
}

// System returns wall-clock time.
type System struct{}

// Now implements Clock.
func (System) Now() time.Time {
	return time.Now()
}

// Fixed always reports the same instant. Intended for tests.
type Fixed struct {
	Instant time.Time
}

// Now implements Clock.
func (f Fixed) Now() time.Time {
	return f.Instant
}

// DateOf truncates an instant to its calendar date in the instant's location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// At combines a calendar date with a wall-clock "HH:MM" string. The zero time
// is returned when the clock string is empty or malformed.
func At(date time.Time, hhmm string) time.Time {
	if hhmm == "" {
		return time.Time{}
	}
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, parsed.Hour(), parsed.Minute(), 0, 0, date.Location())
}

// EndOfDay returns the last instant of the date's calendar day.
func EndOfDay(date time.Time) time.Time {
	return DateOf(date).AddDate(0, 0, 1).Add(-time.Second)
}
