package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"agenda/internal/domain"
	"agenda/internal/store"
)

const noOverlapConstraint = "appointments_no_overlap"

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type dayTx struct {
	tx             bun.Tx
	professionalID string
	day            time.Time
}

func (r *AppointmentRepo) InProfessionalDay(ctx context.Context, professionalID string, day time.Time, fn func(ctx context.Context, tx store.DayTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProfessionalDay(ctx, tx, professionalID, day); err != nil {
			return err
		}
		return fn(ctx, dayTx{tx: tx, professionalID: professionalID, day: day})
	})
}

// lockProfessionalDay serializes bookings for one professional on one date
// across every process sharing the database. The lock is released on commit
// or rollback.
func lockProfessionalDay(ctx context.Context, tx bun.Tx, professionalID string, day time.Time) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", lockKey(professionalID, day)).Exec(ctx)
	return err
}

func lockKey(professionalID string, day time.Time) string {
	return "appointments:" + professionalID + ":" + domain.DayKey(day)
}

func (r *AppointmentRepo) ListScheduled(ctx context.Context, professionalID string, day time.Time) ([]domain.Appointment, error) {
	return listScheduled(ctx, r.db, professionalID, day)
}

func (r *AppointmentRepo) Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, r.db, appointmentID)
}

func (r *AppointmentRepo) UpdateStatus(ctx context.Context, appointmentID uuid.UUID, from, to domain.Status) (domain.Appointment, error) {
	var m domain.Appointment
	err := r.db.NewUpdate().
		Model(&m).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", appointmentID).
		Where("status = ?", from).
		Returning("*").
		Scan(ctx)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, err
	}

	current, getErr := getAppointment(ctx, r.db, appointmentID)
	if getErr != nil {
		return domain.Appointment{}, getErr
	}
	return current, store.ErrStatusConflict
}

func (r *AppointmentRepo) ListScheduledEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().
		Model(&rows).
		Where("status = ?", domain.StatusScheduled).
		Where("end_time <= ?", cutoff).
		OrderExpr("end_time ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (t dayTx) ListScheduled(ctx context.Context) ([]domain.Appointment, error) {
	return listScheduled(ctx, t.tx, t.professionalID, t.day)
}

func (t dayTx) Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, t.tx, appointmentID)
}

func (t dayTx) Insert(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := insertRow(appt)
	_, err := insertQuery(t.tx, &m).Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23P01" && pgErr.ConstraintName == noOverlapConstraint {
				return domain.Appointment{}, store.ErrConflict
			}
			if pgErr.Code == "23505" {
				// Replays are resolved by the caller before inserting; a
				// duplicate id here was written concurrently under another key.
				return domain.Appointment{}, store.ErrIdempotencyConflict
			}
		}
		return domain.Appointment{}, err
	}

	return m, nil
}

func insertRow(appt domain.Appointment) domain.Appointment {
	return domain.Appointment{
		ID:             appt.ID,
		ProfessionalID: appt.ProfessionalID,
		RequesterID:    appt.RequesterID,
		ServiceID:      appt.ServiceID,
		Day:            dateColumn(appt.Day),
		StartTime:      appt.StartTime,
		EndTime:        appt.EndTime,
		Status:         appt.Status,
		CreatedAt:      appt.CreatedAt,
		UpdatedAt:      appt.UpdatedAt,
	}
}

func insertQuery(db bun.IDB, m *domain.Appointment) *bun.InsertQuery {
	return db.NewInsert().Model(m)
}

// dateColumn keeps the calendar date of day when bun renders it as a UTC
// instant for the date column.
func dateColumn(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}

func listScheduled(ctx context.Context, db bun.IDB, professionalID string, day time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := db.NewSelect().
		Model(&rows).
		Where("professional_id = ?", professionalID).
		Where("day = ?", domain.DayKey(day)).
		Where("status = ?", domain.StatusScheduled).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func getAppointment(ctx context.Context, db bun.IDB, appointmentID uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := db.NewSelect().
		Model(&a).
		Where("id = ?", appointmentID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return a, nil
}
