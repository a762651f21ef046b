package calendar

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const MinutesPerDay = 24 * 60

// Clock is a wall-clock time of day in minutes since midnight.
type Clock int

func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid clock %q: out of range", s)
	}
	return Clock(h*60 + m), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) Add(minutes int) Clock {
	return c + Clock(minutes)
}

// Window is a half-open operating interval [Start, End) within a day.
type Window struct {
	Start Clock
	End   Clock
}

func ParseWindow(s string) (Window, error) {
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return Window{}, fmt.Errorf("invalid window %q: want HH:MM-HH:MM", s)
	}
	start, err := ParseClock(from)
	if err != nil {
		return Window{}, err
	}
	end, err := ParseClock(to)
	if err != nil {
		return Window{}, err
	}
	if end <= start {
		return Window{}, fmt.Errorf("invalid window %q: end must be after start", s)
	}
	return Window{Start: start, End: end}, nil
}

func (w Window) Minutes() int {
	return int(w.End - w.Start)
}

// Contains reports whether [start, start+minutes) lies fully inside the window.
func (w Window) Contains(start Clock, minutes int) bool {
	return start >= w.Start && start.Add(minutes) <= w.End
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

type Week map[time.Weekday][]Window

// Calendar describes the operating windows of a business per weekday and the
// grid every slot start is aligned to. It is immutable once built.
type Calendar struct {
	loc         *time.Location
	granularity int
	days        [7][]Window
}

func New(loc *time.Location, granularityMinutes int, week Week) (*Calendar, error) {
	if loc == nil {
		loc = time.UTC
	}
	if granularityMinutes <= 0 || granularityMinutes > MinutesPerDay {
		return nil, errors.New("granularity must be between 1 and 1440 minutes")
	}

	c := &Calendar{loc: loc, granularity: granularityMinutes}
	for wd, windows := range week {
		if wd < time.Sunday || wd > time.Saturday {
			return nil, fmt.Errorf("invalid weekday %d", wd)
		}
		sorted := make([]Window, len(windows))
		copy(sorted, windows)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

		for i, w := range sorted {
			if w.Start < 0 || w.End > MinutesPerDay || w.End <= w.Start {
				return nil, fmt.Errorf("%s: invalid window %s", wd, w)
			}
			if i > 0 && sorted[i-1].End > w.Start {
				return nil, fmt.Errorf("%s: window %s overlaps %s", wd, sorted[i-1], w)
			}
		}
		c.days[wd] = sorted
	}
	return c, nil
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Granularity is the slot grid in minutes.
func (c *Calendar) Granularity() int {
	return c.granularity
}

// WindowsFor returns the ordered windows for a weekday. A closed day has none.
func (c *Calendar) WindowsFor(wd time.Weekday) []Window {
	windows := c.days[wd]
	out := make([]Window, len(windows))
	copy(out, windows)
	return out
}

// Day truncates t to midnight of its calendar date in the business timezone.
func (c *Calendar) Day(t time.Time) time.Time {
	l := t.In(c.loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, c.loc)
}

// Date is midnight in the business timezone of the year, month and day of t
// as written, whatever the location of t.
func (c *Calendar) Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// At returns the absolute instant of a clock time on the given date.
func (c *Calendar) At(day time.Time, clock Clock) time.Time {
	d := c.Day(day)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, int(clock), 0, 0, c.loc)
}

// WindowFor returns the window of the day's weekday that fully contains
// [start, start+minutes), if any.
func (c *Calendar) WindowFor(day time.Time, start Clock, minutes int) (Window, bool) {
	for _, w := range c.days[c.Day(day).Weekday()] {
		if w.Contains(start, minutes) {
			return w, true
		}
	}
	return Window{}, false
}

// LongestWindow is the span in minutes of the widest window on a weekday.
func (c *Calendar) LongestWindow(wd time.Weekday) int {
	longest := 0
	for _, w := range c.days[wd] {
		if w.Minutes() > longest {
			longest = w.Minutes()
		}
	}
	return longest
}
