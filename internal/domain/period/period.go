// Package period resolves named reporting periods into half-open time
// windows in the store's timezone.
package period

import (
	"time"

	"github.com/go-faster/errors"
)

// Name identifies a predefined reporting period.
type Name string

const (
	Today     Name = "today"
	Yesterday Name = "yesterday"
	Week      Name = "week"
	Month     Name = "month"
	Year      Name = "year"
	Custom    Name = "custom"
)

// ErrUnknown is returned for a period name outside the predefined set.
var ErrUnknown = errors.New("unknown period")

// ErrInvalidRange is returned when a custom window is empty or inverted.
var ErrInvalidRange = errors.New("period start must be before end")

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Day returns the window covering t's calendar day in loc.
func Day(t time.Time, loc *time.Location) Window {
	start := StartOfDay(t, loc)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// Resolve turns a period name into a window ending at the end of now's day.
// For Custom, start and end are used as given.
func Resolve(name Name, now time.Time, loc *time.Location, start, end time.Time) (Window, error) {
	today := Day(now, loc)
	switch name {
	case Today, "":
		return today, nil
	case Yesterday:
		return Window{Start: today.Start.AddDate(0, 0, -1), End: today.Start}, nil
	case Week:
		return Window{Start: today.Start.AddDate(0, 0, -6), End: today.End}, nil
	case Month:
		s := today.Start
		return Window{Start: time.Date(s.Year(), s.Month(), 1, 0, 0, 0, 0, s.Location()), End: today.End}, nil
	case Year:
		s := today.Start
		return Window{Start: time.Date(s.Year(), time.January, 1, 0, 0, 0, 0, s.Location()), End: today.End}, nil
	case Custom:
		if start.IsZero() || end.IsZero() || !start.Before(end) {
			return Window{}, ErrInvalidRange
		}
		return Window{Start: start, End: end}, nil
	default:
		return Window{}, errors.Wrapf(ErrUnknown, "%q", name)
	}
}
