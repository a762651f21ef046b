package events

import (
	"context"
	"time"

	"agenda/internal/domain"
)

type Kind string

const (
	KindBooked    Kind = "appointment.booked"
	KindCancelled Kind = "appointment.cancelled"
	KindCompleted Kind = "appointment.completed"
)

// Event describes a committed change to an appointment.
type Event struct {
	Kind           Kind      `json:"kind"`
	AppointmentID  string    `json:"appointment_id"`
	ProfessionalID string    `json:"professional_id"`
	RequesterID    string    `json:"requester_id"`
	ServiceID      string    `json:"service_id,omitempty"`
	Date           string    `json:"date"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Status         string    `json:"status"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func FromAppointment(kind Kind, a domain.Appointment, at time.Time) Event {
	return Event{
		Kind:           kind,
		AppointmentID:  a.ID.String(),
		ProfessionalID: a.ProfessionalID,
		RequesterID:    a.RequesterID,
		ServiceID:      a.ServiceID,
		Date:           a.DayKey(),
		StartTime:      a.StartTime.UTC(),
		EndTime:        a.EndTime.UTC(),
		Status:         string(a.Status),
		OccurredAt:     at.UTC(),
	}
}

// Publisher delivers events after the change they describe has committed.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
