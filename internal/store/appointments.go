package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"agenda/internal/domain"
)

// AppointmentStore is the persistence boundary of the booking engine. Writes
// must be visible to subsequent reads issued by the same process.
type AppointmentStore interface {
	// InProfessionalDay runs fn while holding the store-level serialization
	// boundary for one professional on one calendar date. fn must not block on
	// anything but the store itself.
	InProfessionalDay(ctx context.Context, professionalID string, day time.Time, fn func(ctx context.Context, tx DayTx) error) error

	ListScheduled(ctx context.Context, professionalID string, day time.Time) ([]domain.Appointment, error)
	Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	// UpdateStatus moves an appointment from one status to another atomically.
	// It fails with ErrStatusConflict, and returns the current appointment, when
	// the stored status is not from.
	UpdateStatus(ctx context.Context, appointmentID uuid.UUID, from, to domain.Status) (domain.Appointment, error)
	ListScheduledEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Appointment, error)
}

// DayTx is the view of a single professional/date inside InProfessionalDay.
type DayTx interface {
	ListScheduled(ctx context.Context) ([]domain.Appointment, error)
	Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	Insert(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
}
