package domain

import "time"

// Slot is a derived candidate start time. It is never persisted.
type Slot struct {
	Date            time.Time
	ProfessionalID  string
	StartTime       time.Time
	DurationMinutes int
	Available       bool
}
