package store

import "agenda/internal/domain"

// SameBooking reports whether a stored appointment matches a replayed insert
// for the same idempotent id.
func SameBooking(existing, appt domain.Appointment) bool {
	return existing.ProfessionalID == appt.ProfessionalID &&
		existing.RequesterID == appt.RequesterID &&
		existing.ServiceID == appt.ServiceID &&
		existing.StartTime.Equal(appt.StartTime) &&
		existing.EndTime.Equal(appt.EndTime)
}
