package domain

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func NewInterval(start time.Time, minutes int) Interval {
	return Interval{Start: start, End: start.Add(time.Duration(minutes) * time.Minute)}
}

// Overlaps is the only overlap predicate in the module. Intervals that merely
// touch (one ends when the other starts) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

func (i Interval) Overlaps(o Interval) bool {
	return Overlaps(i, o)
}

// FirstConflict returns the first blocking appointment whose interval overlaps
// the candidate.
func FirstConflict(candidate Interval, existing []Appointment) (Appointment, bool) {
	for _, a := range existing {
		if !a.Status.Blocks() {
			continue
		}
		if Overlaps(candidate, a.Interval()) {
			return a, true
		}
	}
	return Appointment{}, false
}
