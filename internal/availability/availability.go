package availability

import (
	"time"

	"agenda/internal/calendar"
	"agenda/internal/domain"
)

type Request struct {
	ProfessionalID  string
	Date            time.Time
	DurationMinutes int
	// Existing appointments of the professional on Date. Non-blocking
	// statuses are ignored.
	Existing []domain.Appointment
}

// Generate enumerates the grid-aligned start times on req.Date at which a
// service of req.DurationMinutes fits entirely inside one operating window
// and overlaps no blocking appointment. The result is chronological and
// never nil. Grid points are anchored at midnight so every slot of every
// window shares one grid.
func Generate(cal *calendar.Calendar, req Request) []domain.Slot {
	out := make([]domain.Slot, 0, 32)
	if req.DurationMinutes <= 0 {
		return out
	}

	day := cal.Day(req.Date)
	grid := cal.Granularity()

	for _, w := range cal.WindowsFor(day.Weekday()) {
		if w.Minutes() < req.DurationMinutes {
			continue
		}
		for start := alignUp(w.Start, grid); w.Contains(start, req.DurationMinutes); start = start.Add(grid) {
			candidate := domain.NewInterval(cal.At(day, start), req.DurationMinutes)
			if _, conflict := domain.FirstConflict(candidate, req.Existing); conflict {
				continue
			}
			out = append(out, domain.Slot{
				Date:            day,
				ProfessionalID:  req.ProfessionalID,
				StartTime:       candidate.Start,
				DurationMinutes: req.DurationMinutes,
				Available:       true,
			})
		}
	}
	return out
}

func alignUp(c calendar.Clock, grid int) calendar.Clock {
	if rem := int(c) % grid; rem != 0 {
		return c.Add(grid - rem)
	}
	return c
}
