package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"agenda/internal/domain"
	"agenda/internal/keylock"
	"agenda/internal/store"
)

// Store keeps appointments in process memory. It enforces the same
// no-overlap and idempotency rules as the postgres store.
type Store struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]domain.Appointment
	days  *keylock.Table
	clock func() time.Time
}

func New() *Store {
	return &Store{
		byID:  make(map[uuid.UUID]domain.Appointment),
		days:  keylock.New(),
		clock: func() time.Time { return time.Now().UTC() },
	}
}

type dayTx struct {
	s              *Store
	professionalID string
	day            string
}

func (s *Store) InProfessionalDay(ctx context.Context, professionalID string, day time.Time, fn func(ctx context.Context, tx store.DayTx) error) error {
	key := professionalID + "|" + domain.DayKey(day)
	unlock, err := s.days.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	return fn(ctx, dayTx{s: s, professionalID: professionalID, day: domain.DayKey(day)})
}

func (s *Store) ListScheduled(ctx context.Context, professionalID string, day time.Time) ([]domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.listScheduled(professionalID, domain.DayKey(day)), nil
}

func (s *Store) listScheduled(professionalID, day string) []domain.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Appointment, 0)
	for _, a := range s.byID {
		if a.ProfessionalID == professionalID && a.DayKey() == day && a.Status == domain.StatusScheduled {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out
}

func (s *Store) Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Appointment{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[appointmentID]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) UpdateStatus(ctx context.Context, appointmentID uuid.UUID, from, to domain.Status) (domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Appointment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[appointmentID]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	if a.Status != from {
		return a, store.ErrStatusConflict
	}
	a.Status = to
	a.UpdatedAt = s.clock()
	s.byID[appointmentID] = a
	return a, nil
}

func (s *Store) ListScheduledEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Appointment, 0)
	for _, a := range s.byID {
		if a.Status == domain.StatusScheduled && !a.EndTime.After(cutoff) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t dayTx) ListScheduled(ctx context.Context) ([]domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.s.listScheduled(t.professionalID, t.day), nil
}

func (t dayTx) Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	return t.s.Get(ctx, appointmentID)
}

func (t dayTx) Insert(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Appointment{}, err
	}
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if appt.ID != uuid.Nil {
		if existing, ok := s.byID[appt.ID]; ok {
			if !store.SameBooking(existing, appt) {
				return domain.Appointment{}, store.ErrIdempotencyConflict
			}
			return existing, nil
		}
	}

	if appt.Status.Blocks() {
		for _, a := range s.byID {
			if a.ProfessionalID == appt.ProfessionalID && a.Status.Blocks() && domain.Overlaps(a.Interval(), appt.Interval()) {
				return domain.Appointment{}, store.ErrConflict
			}
		}
	}

	if appt.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		appt.ID = id
	}
	now := s.clock()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	if appt.UpdatedAt.IsZero() {
		appt.UpdatedAt = now
	}
	s.byID[appt.ID] = appt
	return appt, nil
}

func sortByStart(appts []domain.Appointment) {
	sort.Slice(appts, func(i, j int) bool { return appts[i].StartTime.Before(appts[j].StartTime) })
}
