package market

import (
	"time"
)

// SessionType classifies a moment on the US equity calendar.
type SessionType string

const (
	SessionPremarket  SessionType = "PRE"
	SessionRegular    SessionType = "RTH"
	SessionPostmarket SessionType = "POST"
	SessionClosed     SessionType = "CLOSED"
)

// Minutes from midnight, exchange time.
const (
	premarketStart = 4 * 60
	marketOpen     = 9*60 + 30
	marketClose    = 16 * 60
	postmarketEnd  = 20 * 60
)

// Calendar is a weekday + time-of-day window in the exchange's zone.
// Holidays are not modelled.
type Calendar struct {
	loc *time.Location
}

// NewCalendar loads America/New_York. The binary embeds time/tzdata so this
// only fails on a broken build.
func NewCalendar() (*Calendar, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, err
	}
	return &Calendar{loc: loc}, nil
}

func (c *Calendar) Location() *time.Location { return c.loc }

func (c *Calendar) Session(t time.Time) SessionType {
	et := t.In(c.loc)
	if wd := et.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return SessionClosed
	}
	m := et.Hour()*60 + et.Minute()
	switch {
	case m >= premarketStart && m < marketOpen:
		return SessionPremarket
	case m >= marketOpen && m < marketClose:
		return SessionRegular
	case m >= marketClose && m < postmarketEnd:
		return SessionPostmarket
	default:
		return SessionClosed
	}
}

// IsOpen reports whether t falls in regular trading hours.
func (c *Calendar) IsOpen(t time.Time) bool {
	return c.Session(t) == SessionRegular
}

// NextOpen returns the next regular-session open strictly after t, or t
// itself when the market is already open.
func (c *Calendar) NextOpen(t time.Time) time.Time {
	if c.IsOpen(t) {
		return t
	}
	et := t.In(c.loc)
	day := time.Date(et.Year(), et.Month(), et.Day(), 9, 30, 0, 0, c.loc)
	if !et.Before(day) {
		day = day.AddDate(0, 0, 1)
	}
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// UntilOpen is the wait from t to the next open; zero when open.
func (c *Calendar) UntilOpen(t time.Time) time.Duration {
	return c.NextOpen(t).Sub(t)
}
