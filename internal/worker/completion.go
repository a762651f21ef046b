package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"agenda/internal/domain"
)

type pastFinder interface {
	ListScheduledEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Appointment, error)
}

type completer interface {
	Complete(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
}

type CompletionConfig struct {
	// Grace is how long after its end an appointment stays scheduled.
	Grace     time.Duration
	BatchSize int
	Timeout   time.Duration
}

// CompletionSweeper marks scheduled appointments whose end has passed as
// completed, through the same path as an explicit complete.
type CompletionSweeper struct {
	finder    pastFinder
	completer completer
	cfg       CompletionConfig
	log       *slog.Logger
	now       func() time.Time
}

func NewCompletionSweeper(finder pastFinder, c completer, cfg CompletionConfig, log *slog.Logger) *CompletionSweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &CompletionSweeper{
		finder:    finder,
		completer: c,
		cfg:       cfg,
		log:       log.With(slog.String("component", "completion_sweeper")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Sweep completes every overdue appointment and reports how many it changed.
func (s *CompletionSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.Grace)
	done := 0
	for {
		batch, err := s.finder.ListScheduledEndedBefore(ctx, cutoff, s.cfg.BatchSize)
		if err != nil {
			return done, err
		}

		progressed := 0
		for _, a := range batch {
			if _, err := s.completer.Complete(ctx, a.ID); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return done, err
				}
				s.log.Warn("complete failed", slog.Any("err", err), slog.String("appointment_id", a.ID.String()))
				continue
			}
			progressed++
		}
		done += progressed

		if len(batch) < s.cfg.BatchSize || progressed == 0 {
			return done, nil
		}
	}
}

func (s *CompletionSweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	n, err := s.Sweep(ctx)
	if err != nil {
		s.log.Error("completion sweep failed", slog.Any("err", err), slog.Int("completed", n))
		return
	}
	if n > 0 {
		s.log.Info("completion sweep finished", slog.Int("completed", n))
	}
}

// NewCron returns a runner that logs through log, recovers panicking jobs
// and skips a run while the previous one is still going.
func NewCron(log *slog.Logger) *cron.Cron {
	if log == nil {
		log = slog.Default()
	}
	logger := cronLogger{log: log.With(slog.String("component", "cron"))}
	return cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
}

// Register adds the sweep to c on the given cron spec.
func (s *CompletionSweeper) Register(c *cron.Cron, spec string) error {
	_, err := c.AddFunc(spec, s.run)
	return err
}

type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append([]any{slog.Any("err", err)}, keysAndValues...)...)
}
