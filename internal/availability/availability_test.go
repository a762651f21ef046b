package availability

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"agenda/internal/calendar"
	"agenda/internal/domain"
)

func salonCalendar(t *testing.T) *calendar.Calendar {
	t.Helper()
	morning, err := calendar.ParseWindow("09:00-13:00")
	if err != nil {
		t.Fatalf("ParseWindow error: %v", err)
	}
	afternoon, err := calendar.ParseWindow("14:30-19:30")
	if err != nil {
		t.Fatalf("ParseWindow error: %v", err)
	}
	week := calendar.Week{}
	for wd := time.Monday; wd <= time.Saturday; wd++ {
		week[wd] = []calendar.Window{morning, afternoon}
	}
	cal, err := calendar.New(time.UTC, 15, week)
	if err != nil {
		t.Fatalf("calendar.New error: %v", err)
	}
	return cal
}

var monday = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func clock(hour, minute int) time.Time {
	return monday.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func starts(slots []domain.Slot) map[string]bool {
	out := make(map[string]bool, len(slots))
	for _, s := range slots {
		out[s.StartTime.Format("15:04")] = true
	}
	return out
}

func TestGenerate_ExcludesStartsOverlappingExistingAppointment(t *testing.T) {
	cal := salonCalendar(t)
	existing := []domain.Appointment{{
		ID:             uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		ProfessionalID: "p1",
		StartTime:      clock(10, 0),
		EndTime:        clock(10, 30),
		Status:         domain.StatusScheduled,
	}}

	got := starts(Generate(cal, Request{ProfessionalID: "p1", Date: monday, DurationMinutes: 30, Existing: existing}))

	for _, s := range []string{"09:45", "10:00", "10:15"} {
		if got[s] {
			t.Fatalf("start %s should be excluded", s)
		}
	}
	for _, s := range []string{"09:00", "09:30", "10:30", "14:30", "19:00"} {
		if !got[s] {
			t.Fatalf("start %s should be available", s)
		}
	}
}

func TestGenerate_WindowBoundaries(t *testing.T) {
	cal := salonCalendar(t)
	got := starts(Generate(cal, Request{ProfessionalID: "p1", Date: monday, DurationMinutes: 30}))

	if !got["12:30"] {
		t.Fatalf("12:30 ends exactly at 13:00 and must be available")
	}
	if got["12:45"] {
		t.Fatalf("12:45 runs into the lunch gap and must not be available")
	}
	if got["13:00"] || got["14:15"] {
		t.Fatalf("no start may fall inside the lunch gap")
	}
	if !got["19:00"] || got["19:15"] {
		t.Fatalf("last afternoon start must be 19:00")
	}
	// 15 starts in the morning, 19 in the afternoon.
	if len(got) != 34 {
		t.Fatalf("len(starts) = %d, want 34", len(got))
	}
}

func TestGenerate_ChronologicalAndMarkedAvailable(t *testing.T) {
	cal := salonCalendar(t)
	slots := Generate(cal, Request{ProfessionalID: "p1", Date: clock(17, 0), DurationMinutes: 60})
	if len(slots) == 0 {
		t.Fatalf("expected slots")
	}
	for i, s := range slots {
		if !s.Available || s.DurationMinutes != 60 || s.ProfessionalID != "p1" {
			t.Fatalf("slot %d = %+v", i, s)
		}
		if !s.Date.Equal(monday) {
			t.Fatalf("slot date = %v, want %v", s.Date, monday)
		}
		if i > 0 && !slots[i-1].StartTime.Before(s.StartTime) {
			t.Fatalf("slots not chronological: %v then %v", slots[i-1].StartTime, s.StartTime)
		}
	}
}

func TestGenerate_EmptyResults(t *testing.T) {
	cal := salonCalendar(t)
	sunday := monday.AddDate(0, 0, 6)

	tests := []struct {
		name string
		req  Request
	}{
		{name: "closed day", req: Request{ProfessionalID: "p1", Date: sunday, DurationMinutes: 30}},
		{name: "duration longer than every window", req: Request{ProfessionalID: "p1", Date: monday, DurationMinutes: 301}},
		{name: "non-positive duration", req: Request{ProfessionalID: "p1", Date: monday, DurationMinutes: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Generate(cal, tt.req)
			if got == nil {
				t.Fatalf("result must be non-nil")
			}
			if len(got) != 0 {
				t.Fatalf("len = %d, want 0", len(got))
			}
		})
	}
}

func TestGenerate_IgnoresCancelledAndCompleted(t *testing.T) {
	cal := salonCalendar(t)
	existing := []domain.Appointment{
		{StartTime: clock(10, 0), EndTime: clock(10, 30), Status: domain.StatusCancelled},
		{StartTime: clock(11, 0), EndTime: clock(11, 30), Status: domain.StatusCompleted},
	}
	got := starts(Generate(cal, Request{ProfessionalID: "p1", Date: monday, DurationMinutes: 30, Existing: existing}))
	if !got["10:00"] || !got["11:00"] {
		t.Fatalf("cancelled and completed appointments must not block")
	}
}

func TestGenerate_IsIdempotent(t *testing.T) {
	cal := salonCalendar(t)
	req := Request{
		ProfessionalID:  "p1",
		Date:            monday,
		DurationMinutes: 45,
		Existing: []domain.Appointment{
			{StartTime: clock(15, 0), EndTime: clock(16, 0), Status: domain.StatusScheduled},
		},
	}
	first := Generate(cal, req)
	second := Generate(cal, req)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("results differ between calls")
	}
}

func TestGenerate_AlignsOffGridWindowsUp(t *testing.T) {
	w, err := calendar.ParseWindow("09:10-10:00")
	if err != nil {
		t.Fatalf("ParseWindow error: %v", err)
	}
	cal, err := calendar.New(time.UTC, 15, calendar.Week{time.Monday: {w}})
	if err != nil {
		t.Fatalf("calendar.New error: %v", err)
	}
	slots := Generate(cal, Request{ProfessionalID: "p1", Date: monday, DurationMinutes: 15})
	got := make([]string, 0, len(slots))
	for _, s := range slots {
		got = append(got, s.StartTime.Format("15:04"))
	}
	want := []string{"09:15", "09:30", "09:45"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("starts = %v, want %v", got, want)
	}
}
