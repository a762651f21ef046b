package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"

	"agenda/internal/catalog"
	"agenda/internal/config"
	"agenda/internal/events"
	"agenda/internal/service/booking"
	"agenda/internal/store"
	"agenda/internal/store/memory"
	"agenda/internal/store/postgres"
	grpcTransport "agenda/internal/transport/grpc"
	"agenda/internal/worker"
	"agenda/migrations"
)

const limiterIdle = 10 * time.Minute

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "agenda-server"),
	)
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("dotenv load failed", slog.Any("err", err))
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "agenda-server"),
	)
	slog.SetDefault(log)

	log.Info("starting",
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("log_level", cfg.LogLevel),
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("timezone", cfg.Timezone),
		slog.Int("granularity_minutes", cfg.GranularityMinutes),
		slog.Any("services", cfg.ServiceIDs()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var appts store.AppointmentStore
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("using in-memory store; appointments are lost on restart")
		appts = memory.New()
	default:
		log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
		db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
			log.Error("database connection failed", args...)
			os.Exit(1)
		}
		defer func() {
			if err := postgres.Close(db); err != nil {
				log.Warn("database close failed", slog.Any("err", err))
			}
		}()

		migrateCtx, cancel := context.WithTimeout(ctx, time.Minute)
		applied, err := postgres.Migrate(migrateCtx, db, migrations.FS)
		cancel()
		if err != nil {
			log.Error("database migration failed", slog.Any("err", err))
			os.Exit(1)
		}
		log.Info("database migrated", slog.Int("applied", applied))
		appts = postgres.NewAppointmentRepo(db)
	}

	cat, err := catalog.NewStatic(cfg.Services)
	if err != nil {
		log.Error("catalog load failed", slog.Any("err", err))
		os.Exit(1)
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.EventsEnabled {
		kp, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:      cfg.EventsBrokers,
			Topic:        cfg.EventsTopic,
			BatchTimeout: 50 * time.Millisecond,
			MaxAttempts:  3,
		}, log)
		if err != nil {
			log.Error("event publisher init failed", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := kp.Close(); err != nil {
				log.Warn("event publisher close failed", slog.Any("err", err))
			}
		}()
		publisher = kp
		log.Info("publishing booking events", slog.String("topic", cfg.EventsTopic), slog.Any("brokers", cfg.EventsBrokers))
	}

	svc := booking.NewService(cfg.Calendar, appts,
		booking.WithCatalog(cat),
		booking.WithPublisher(publisher),
		booking.WithLogger(log),
	)

	limiter := grpcTransport.NewBookRateLimiter(cfg.RateLimitBookPerMinute, cfg.RateLimitBurst)

	jobs := worker.NewCron(log)
	if _, err := jobs.AddFunc("@every 5m", func() { limiter.Prune(limiterIdle) }); err != nil {
		log.Error("cron setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	if cfg.CompletionEnabled {
		sweeper := worker.NewCompletionSweeper(appts, svc, worker.CompletionConfig{Grace: cfg.CompletionGrace}, log)
		if err := sweeper.Register(jobs, cfg.CompletionSchedule); err != nil {
			log.Error("completion sweeper setup failed", slog.Any("err", err), slog.String("schedule", cfg.CompletionSchedule))
			os.Exit(1)
		}
		log.Info("completion sweeper scheduled", slog.String("schedule", cfg.CompletionSchedule), slog.Duration("grace", cfg.CompletionGrace))
	}
	jobs.Start()
	defer func() {
		<-jobs.Stop().Done()
	}()

	interceptors := []grpc.UnaryServerInterceptor{grpcTransport.RequestTimeout(cfg.GRPCRequestTimeout)}
	if cfg.RateLimitBookPerMinute > 0 {
		interceptors = append(interceptors, limiter.Interceptor())
	}
	grpcServer := grpc.NewServer(
		grpc.ForceServerCodec(grpcTransport.Codec()),
		grpc.ChainUnaryInterceptor(interceptors...),
	)
	grpcTransport.RegisterBookingServiceServer(grpcServer, grpcTransport.NewBookingServer(svc, cfg.Calendar.Location(), log))

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()

	log.Info("grpc server started", slog.String("grpc_addr", cfg.GRPCAddr()))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdown(log, grpcServer, cfg.ShutdownTimeout)
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("grpc server stopped with error", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func shutdown(log *slog.Logger, s *grpc.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
