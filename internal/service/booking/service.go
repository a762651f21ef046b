package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"agenda/internal/availability"
	"agenda/internal/calendar"
	"agenda/internal/catalog"
	"agenda/internal/domain"
	"agenda/internal/events"
	"agenda/internal/keylock"
	"agenda/internal/store"
)

// errSlotTaken aborts the day transaction when the final check finds a
// conflict. It never leaves the package.
var errSlotTaken = errors.New("slot already taken")

type Service struct {
	cal       *calendar.Calendar
	store     store.AppointmentStore
	catalog   catalog.Catalog
	publisher events.Publisher
	log       *slog.Logger
	locks     *keylock.Table
	validate  *validator.Validate
	now       func() time.Time
}

type Option func(*Service)

func WithCatalog(c catalog.Catalog) Option {
	return func(s *Service) { s.catalog = c }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(cal *calendar.Calendar, st store.AppointmentStore, opts ...Option) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("label"); name != "" {
			return name
		}
		return f.Name
	})

	s := &Service{
		cal:       cal,
		store:     st,
		publisher: events.Noop{},
		log:       slog.Default(),
		locks:     keylock.New(),
		validate:  v,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "booking"))
	return s
}

func (s *Service) Calendar() *calendar.Calendar {
	return s.cal
}

type SlotsQuery struct {
	ProfessionalID  string    `label:"professional_id" validate:"required,max=128"`
	// Date is read by its year, month and day fields; the time of day and
	// location are ignored.
	Date            time.Time `label:"date" validate:"required"`
	DurationMinutes int       `label:"duration_minutes" validate:"gte=0"`
	ServiceID       string    `label:"service_id" validate:"max=128"`
}

// GetAvailableSlots returns the bookable starts for the professional on the
// date. The answer is advisory: Book re-checks under the day lock.
func (s *Service) GetAvailableSlots(ctx context.Context, q SlotsQuery) ([]domain.Slot, error) {
	q.ProfessionalID = strings.TrimSpace(q.ProfessionalID)
	if err := s.validate.Struct(q); err != nil {
		return nil, fromValidator(err)
	}

	minutes, err := s.resolveDuration(ctx, q.DurationMinutes, q.ServiceID)
	if err != nil {
		return nil, err
	}
	if minutes <= 0 {
		return nil, validationError("duration_minutes or service_id is required")
	}

	day := s.cal.Date(q.Date)
	existing, err := s.store.ListScheduled(ctx, q.ProfessionalID, day)
	if err != nil {
		s.log.Error("list scheduled failed", slog.Any("err", err), slog.String("professional_id", q.ProfessionalID))
		return nil, unavailable("list scheduled", err)
	}

	return availability.Generate(s.cal, availability.Request{
		ProfessionalID:  q.ProfessionalID,
		Date:            day,
		DurationMinutes: minutes,
		Existing:        existing,
	}), nil
}

type BookInput struct {
	ProfessionalID  string         `label:"professional_id" validate:"required,max=128"`
	RequesterID     string         `label:"requester_id" validate:"required,max=128"`
	// Date is read by its year, month and day fields, like SlotsQuery.Date.
	Date            time.Time      `label:"date" validate:"required"`
	Start           calendar.Clock `label:"start_time" validate:"gte=0,lte=1440"`
	DurationMinutes int
	ServiceID       string `label:"service_id" validate:"max=128"`
	IdempotencyKey  string `label:"idempotency_key" validate:"max=256"`
}

// Outcome is either a committed appointment or a rejection.
type Outcome struct {
	Appointment domain.Appointment
	Rejection   *Rejection
	// Replayed is set when an idempotent retry returned the original booking.
	Replayed bool
}

func (o Outcome) Rejected() bool {
	return o.Rejection != nil
}

// Book is the only path that creates a scheduled appointment. The conflict
// check is re-run against the store under a per-professional, per-date lock
// immediately before the insert.
func (s *Service) Book(ctx context.Context, in BookInput) (Outcome, error) {
	in.ProfessionalID = strings.TrimSpace(in.ProfessionalID)
	in.RequesterID = strings.TrimSpace(in.RequesterID)
	in.ServiceID = strings.TrimSpace(in.ServiceID)
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if err := s.validate.Struct(in); err != nil {
		return Outcome{}, fromValidator(err)
	}

	minutes, err := s.resolveDuration(ctx, in.DurationMinutes, in.ServiceID)
	if err != nil {
		return Outcome{}, err
	}

	day := s.cal.Date(in.Date)
	log := s.log.With(
		slog.String("professional_id", in.ProfessionalID),
		slog.String("date", domain.DayKey(day)),
		slog.String("start_time", in.Start.String()),
		slog.Int("duration_minutes", minutes),
	)

	if r := s.checkHours(day, in.Start, minutes); r != nil {
		log.Info("booking rejected", slog.String("reason", string(r.Reason)))
		return Outcome{Rejection: r}, nil
	}

	interval := domain.NewInterval(s.cal.At(day, in.Start), minutes)
	appt := domain.Appointment{
		ProfessionalID: in.ProfessionalID,
		RequesterID:    in.RequesterID,
		ServiceID:      in.ServiceID,
		Day:            day,
		StartTime:      interval.Start,
		EndTime:        interval.End,
		Status:         domain.StatusScheduled,
	}
	if in.IdempotencyKey != "" {
		appt.ID = idempotentID(in.RequesterID, in.IdempotencyKey)
	}

	lockKey := in.ProfessionalID + "|" + domain.DayKey(day)
	unlock, err := s.locks.Lock(ctx, lockKey)
	if err != nil {
		return Outcome{}, err
	}

	var (
		created  domain.Appointment
		replayed bool
	)
	err = s.store.InProfessionalDay(ctx, in.ProfessionalID, day, func(ctx context.Context, tx store.DayTx) error {
		if appt.ID != uuid.Nil {
			prior, err := tx.Get(ctx, appt.ID)
			switch {
			case err == nil:
				if !store.SameBooking(prior, appt) {
					return store.ErrIdempotencyConflict
				}
				created, replayed = prior, true
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		existing, err := tx.ListScheduled(ctx)
		if err != nil {
			return err
		}
		if _, conflict := domain.FirstConflict(interval, existing); conflict {
			return errSlotTaken
		}

		created, err = tx.Insert(ctx, appt)
		return err
	})
	unlock()

	switch {
	case err == nil:
	case errors.Is(err, errSlotTaken), errors.Is(err, store.ErrConflict):
		log.Info("booking rejected", slog.String("reason", string(SlotAlreadyTaken)))
		return Outcome{Rejection: reject(SlotAlreadyTaken, "%s is no longer available", in.Start)}, nil
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info("idempotency key reused with different parameters")
		return Outcome{}, err
	default:
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			log.Error("booking failed", slog.Any("err", err))
		}
		return Outcome{}, unavailable("book", err)
	}

	if replayed {
		log.Info("booking replayed", slog.String("appointment_id", created.ID.String()))
		return Outcome{Appointment: created, Replayed: true}, nil
	}

	log.Info("appointment booked", slog.String("appointment_id", created.ID.String()))
	s.publish(ctx, events.KindBooked, created)
	return Outcome{Appointment: created}, nil
}

// checkHours rejects durations no window of the weekday can hold and
// intervals that are not fully inside one window.
func (s *Service) checkHours(day time.Time, start calendar.Clock, minutes int) *Rejection {
	if minutes <= 0 {
		return reject(InvalidDuration, "duration must be positive, got %d minutes", minutes)
	}
	longest := s.cal.LongestWindow(day.Weekday())
	if longest == 0 {
		return reject(OutsideBusinessHours, "closed on %s", day.Weekday())
	}
	if minutes > longest {
		return reject(InvalidDuration, "%d minutes exceeds the longest operating window (%d minutes)", minutes, longest)
	}
	if _, ok := s.cal.WindowFor(day, start, minutes); !ok {
		return reject(OutsideBusinessHours, "%s-%s is outside business hours", start, start.Add(minutes))
	}
	return nil
}

func (s *Service) Cancel(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	return s.transition(ctx, appointmentID, domain.StatusCancelled, events.KindCancelled)
}

func (s *Service) Complete(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	return s.transition(ctx, appointmentID, domain.StatusCompleted, events.KindCompleted)
}

// transition moves an appointment to a terminal status when its current
// status allows it. It does not take the day lock; Book re-reads current state
// before every insert. Repeating a transition that already happened is a no-op.
func (s *Service) transition(ctx context.Context, appointmentID uuid.UUID, to domain.Status, kind events.Kind) (domain.Appointment, error) {
	if appointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	log := s.log.With(slog.String("appointment_id", appointmentID.String()), slog.String("status", string(to)))

	current, err := s.store.Get(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Appointment{}, err
		}
		log.Error("status lookup failed", slog.Any("err", err))
		return domain.Appointment{}, unavailable("get appointment", err)
	}

	for {
		if current.Status == to {
			return current, nil
		}
		if !current.Status.CanTransitionTo(to) {
			return domain.Appointment{}, fmt.Errorf("%w: %s appointment cannot become %s", ErrInvalidTransition, current.Status, to)
		}

		updated, err := s.store.UpdateStatus(ctx, appointmentID, current.Status, to)
		switch {
		case err == nil:
			log.Info("appointment status changed")
			s.publish(ctx, kind, updated)
			return updated, nil
		case errors.Is(err, store.ErrNotFound):
			return domain.Appointment{}, err
		case errors.Is(err, store.ErrStatusConflict):
			// Changed concurrently; decide again against the stored status.
			current = updated
		default:
			log.Error("status update failed", slog.Any("err", err))
			return domain.Appointment{}, unavailable("update status", err)
		}
	}
}

func (s *Service) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	if appointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	a, err := s.store.Get(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Appointment{}, err
		}
		return domain.Appointment{}, unavailable("get appointment", err)
	}
	return a, nil
}

// resolveDuration prefers an explicit duration and falls back to the catalog.
func (s *Service) resolveDuration(ctx context.Context, minutes int, serviceID string) (int, error) {
	if minutes != 0 || serviceID == "" {
		return minutes, nil
	}
	if s.catalog == nil {
		return 0, validationError("service_id lookup is not configured")
	}
	d, err := s.catalog.ServiceDuration(ctx, serviceID)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownService) {
			return 0, validationError("unknown service_id")
		}
		return 0, unavailable("service duration", err)
	}
	return d, nil
}

// publish runs after commit. A failure is logged and the change stands.
func (s *Service) publish(ctx context.Context, kind events.Kind, a domain.Appointment) {
	if err := s.publisher.Publish(ctx, events.FromAppointment(kind, a, s.now())); err != nil {
		s.log.Warn("event publish failed", slog.Any("err", err), slog.String("kind", string(kind)), slog.String("appointment_id", a.ID.String()))
	}
}

func idempotentID(requesterID, key string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("agenda:book:"+requesterID+":"+key))
}
