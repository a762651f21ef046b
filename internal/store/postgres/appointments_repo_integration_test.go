package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"agenda/internal/domain"
	"agenda/internal/store"
	"agenda/migrations"
)

func openTestRepo(t *testing.T) *AppointmentRepo {
	t.Helper()

	databaseURL := strings.TrimSpace(os.Getenv("AGENDA_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("AGENDA_TEST_DATABASE_URL not set")
	}

	admin, err := Open(databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(admin)
	})

	schema := "agenda_test_" + randomHex(t, 8)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := admin.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = admin.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})

	u, err := url.Parse(databaseURL)
	if err != nil {
		t.Fatalf("url.Parse error: %v", err)
	}
	q := u.Query()
	q.Set("search_path", schema+",public")
	u.RawQuery = q.Encode()

	db, err := Open(u.String(), PoolConfig{MaxOpenConns: 8})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	if _, err := Migrate(ctx, db, migrations.FS); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	return NewAppointmentRepo(db)
}

func insertAppointment(ctx context.Context, r *AppointmentRepo, appt domain.Appointment) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.InProfessionalDay(ctx, appt.ProfessionalID, appt.Day, func(ctx context.Context, tx store.DayTx) error {
		a, err := tx.Insert(ctx, appt)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

func TestPostgresIntegration_InsertListOverlapAndStatus(t *testing.T) {
	r := openTestRepo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	start := day.Add(10 * time.Hour)
	base := domain.Appointment{
		ProfessionalID: "p1",
		RequesterID:    "c1",
		Day:            day,
		StartTime:      start,
		EndTime:        start.Add(30 * time.Minute),
		Status:         domain.StatusScheduled,
	}

	a1, err := insertAppointment(ctx, r, base)
	if err != nil {
		t.Fatalf("insert error: %v", err)
	}
	if a1.ID == uuid.Nil {
		t.Fatalf("expected generated id")
	}

	rows, err := r.ListScheduled(ctx, "p1", day)
	if err != nil {
		t.Fatalf("ListScheduled error: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != a1.ID {
		t.Fatalf("rows = %+v, want [%s]", rows, a1.ID)
	}

	overlapping := base
	overlapping.StartTime = start.Add(15 * time.Minute)
	overlapping.EndTime = start.Add(45 * time.Minute)
	if _, err := insertAppointment(ctx, r, overlapping); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("overlap err = %v, want %v", err, store.ErrConflict)
	}

	backToBack := base
	backToBack.StartTime = start.Add(30 * time.Minute)
	backToBack.EndTime = start.Add(60 * time.Minute)
	if _, err := insertAppointment(ctx, r, backToBack); err != nil {
		t.Fatalf("back-to-back insert error: %v", err)
	}

	cancelled, err := r.UpdateStatus(ctx, a1.ID, domain.StatusScheduled, domain.StatusCancelled)
	if err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Fatalf("status = %q, want %q", cancelled.Status, domain.StatusCancelled)
	}
	if _, err := r.UpdateStatus(ctx, a1.ID, domain.StatusScheduled, domain.StatusCompleted); !errors.Is(err, store.ErrStatusConflict) {
		t.Fatalf("err = %v, want %v", err, store.ErrStatusConflict)
	}

	if _, err := insertAppointment(ctx, r, overlapping); err == nil {
		t.Fatalf("overlap with the back-to-back appointment must still conflict")
	}
	rebook := base
	if _, err := insertAppointment(ctx, r, rebook); err != nil {
		t.Fatalf("cancelled interval must be bookable again: %v", err)
	}

	if _, err := r.Get(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want %v", err, store.ErrNotFound)
	}
}

func TestPostgresIntegration_AdvisoryLockSerializesCheckThenInsert(t *testing.T) {
	r := openTestRepo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	day := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	start := day.Add(11 * time.Hour)

	const workers = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := r.InProfessionalDay(ctx, "p1", day, func(ctx context.Context, tx store.DayTx) error {
				existing, err := tx.ListScheduled(ctx)
				if err != nil {
					return err
				}
				candidate := domain.NewInterval(start.Add(time.Duration(i)*time.Minute), 30)
				if _, conflict := domain.FirstConflict(candidate, existing); conflict {
					return store.ErrConflict
				}
				_, err = tx.Insert(ctx, domain.Appointment{
					ProfessionalID: "p1",
					RequesterID:    "c1",
					Day:            day,
					StartTime:      candidate.Start,
					EndTime:        candidate.End,
					Status:         domain.StatusScheduled,
				})
				return err
			})
			if err == nil {
				mu.Lock()
				committed++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if committed != 1 {
		t.Fatalf("committed = %d, want 1", committed)
	}
}

func TestPostgresIntegration_DayIsKeptEastOfUTC(t *testing.T) {
	r := openTestRepo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, berlin)
	start := day.Add(9 * time.Hour)
	a, err := insertAppointment(ctx, r, domain.Appointment{
		ProfessionalID: "p1",
		RequesterID:    "c1",
		Day:            day,
		StartTime:      start,
		EndTime:        start.Add(30 * time.Minute),
		Status:         domain.StatusScheduled,
	})
	if err != nil {
		t.Fatalf("insert error: %v", err)
	}
	if a.DayKey() != "2026-01-05" {
		t.Fatalf("returned day = %s, want 2026-01-05", a.DayKey())
	}

	rows, err := r.ListScheduled(ctx, "p1", day)
	if err != nil {
		t.Fatalf("ListScheduled error: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != a.ID {
		t.Fatalf("rows = %+v, want [%s]", rows, a.ID)
	}
	got, err := r.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.DayKey() != "2026-01-05" {
		t.Fatalf("stored day = %s, want 2026-01-05", got.DayKey())
	}
}

func TestPostgresIntegration_MigrateIsRepeatable(t *testing.T) {
	r := openTestRepo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	applied, err := Migrate(ctx, r.db, migrations.FS)
	if err != nil {
		t.Fatalf("second Migrate error: %v", err)
	}
	if applied != 0 {
		t.Fatalf("second Migrate applied %d migrations, want 0", applied)
	}
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}
