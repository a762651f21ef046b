package calendar

import (
	"testing"
	"time"
)

func mustWindow(t *testing.T, s string) Window {
	t.Helper()
	w, err := ParseWindow(s)
	if err != nil {
		t.Fatalf("ParseWindow(%q) error: %v", s, err)
	}
	return w
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "09:00", want: 540},
		{in: "9:30", want: 570},
		{in: " 14:30 ", want: 870},
		{in: "24:00", want: 1440},
		{in: "00:00", want: 0},
		{in: "24:01", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "1230", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "12:5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClock error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("clock = %d, want %d", got, tt.want)
			}
			if tt.in == "09:00" && got.String() != "09:00" {
				t.Fatalf("String() = %q", got.String())
			}
		})
	}
}

func TestParseWindow_RejectsEmptyOrInverted(t *testing.T) {
	for _, s := range []string{"13:00-09:00", "09:00-09:00", "09:00", "xx-13:00"} {
		if _, err := ParseWindow(s); err == nil {
			t.Fatalf("ParseWindow(%q) expected error", s)
		}
	}
}

func TestWindowContains_Boundaries(t *testing.T) {
	w := mustWindow(t, "09:00-13:00")

	if !w.Contains(Clock(12*60+30), 30) {
		t.Fatalf("[12:30,13:00) should fit in %s", w)
	}
	if w.Contains(Clock(12*60+45), 30) {
		t.Fatalf("[12:45,13:15) should not fit in %s", w)
	}
	if w.Contains(Clock(8*60+45), 30) {
		t.Fatalf("[08:45,09:15) should not fit in %s", w)
	}
}

func TestNew_ValidatesWindows(t *testing.T) {
	_, err := New(time.UTC, 15, Week{
		time.Monday: {mustWindow(t, "09:00-13:00"), mustWindow(t, "12:00-15:00")},
	})
	if err == nil {
		t.Fatalf("expected overlap error")
	}

	_, err = New(time.UTC, 0, Week{})
	if err == nil {
		t.Fatalf("expected granularity error")
	}
}

func TestNew_SortsWindowsAndSupportsClosedDays(t *testing.T) {
	cal, err := New(time.UTC, 15, Week{
		time.Monday: {mustWindow(t, "14:30-19:30"), mustWindow(t, "09:00-13:00")},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	monday := cal.WindowsFor(time.Monday)
	if len(monday) != 2 {
		t.Fatalf("len(monday) = %d, want 2", len(monday))
	}
	if monday[0].String() != "09:00-13:00" || monday[1].String() != "14:30-19:30" {
		t.Fatalf("windows = %v, want sorted", monday)
	}
	if got := cal.WindowsFor(time.Sunday); len(got) != 0 {
		t.Fatalf("sunday windows = %v, want none", got)
	}
	if got := cal.LongestWindow(time.Monday); got != 300 {
		t.Fatalf("LongestWindow = %d, want 300", got)
	}

	monday[0] = Window{}
	if cal.WindowsFor(time.Monday)[0].String() != "09:00-13:00" {
		t.Fatalf("WindowsFor must return a copy")
	}
}

func TestCalendar_AtAndWindowFor(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}
	cal, err := New(loc, 15, Week{
		time.Monday: {mustWindow(t, "09:00-13:00"), mustWindow(t, "14:30-19:30")},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	day := time.Date(2026, 1, 5, 22, 0, 0, 0, loc)
	at := cal.At(day, Clock(14*60+30))
	if at.Hour() != 14 || at.Minute() != 30 || at.Day() != 5 {
		t.Fatalf("At = %v, want 2026-01-05 14:30 local", at)
	}
	if got := cal.Date(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)); got.Day() != 5 || got.Location() != loc {
		t.Fatalf("Date = %v, want 2026-01-05 00:00 local", got)
	}
	if got := cal.Day(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)); got.Day() != 4 {
		t.Fatalf("Day = %v, want 2026-01-04 local", got)
	}

	if _, ok := cal.WindowFor(day, Clock(12*60+30), 60); ok {
		t.Fatalf("60 minutes at 12:30 must not fit (lunch gap)")
	}
	w, ok := cal.WindowFor(day, Clock(14*60+30), 60)
	if !ok || w.String() != "14:30-19:30" {
		t.Fatalf("WindowFor = %v, %v", w, ok)
	}
	if _, ok := cal.WindowFor(day.AddDate(0, 0, 6), Clock(9*60), 30); ok {
		t.Fatalf("sunday must be closed")
	}
}
