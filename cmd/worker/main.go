package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hrstream/employee-import/config"
	"github.com/hrstream/employee-import/internal/domain"
	"github.com/hrstream/employee-import/internal/health"
	"github.com/hrstream/employee-import/internal/importlock"
	"github.com/hrstream/employee-import/internal/infrastructure/postgres"
	"github.com/hrstream/employee-import/internal/infrastructure/redisclient"
	ctxlog "github.com/hrstream/employee-import/internal/log"
	"github.com/hrstream/employee-import/internal/metrics"
	"github.com/hrstream/employee-import/internal/notify"
	"github.com/hrstream/employee-import/internal/progress"
	"github.com/hrstream/employee-import/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	redisClient := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	metrics.Register()
	checker := health.NewChecker(pool, health.PingFunc(func(ctx context.Context) error {
		return redisclient.Ping(ctx, redisClient)
	}), logger, prometheus.DefaultRegisterer)

	jobRepo := postgres.NewJobRepository(pool)
	employeeRepo := postgres.NewEmployeeRepository(pool)
	ledgerRepo := postgres.NewLedgerRepository(pool)
	errorRepo := postgres.NewErrorRepository(pool)
	resumptionRepo := postgres.NewResumptionLogRepository(pool)

	sender := notify.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
	notifier := notify.NewNotifier(sender, cfg.NotifyEmail, logger)

	processor := worker.NewProcessor(worker.ProcessorConfig{
		Jobs:          jobRepo,
		Employees:     employeeRepo,
		Ledger:        ledgerRepo,
		Errors:        errorRepo,
		Resumptions:   resumptionRepo,
		Locks:         importlock.NewManager(redisClient, cfg.LockTTL()),
		Cache:         progress.NewCache(redisClient),
		Notifier:      notifier,
		Logger:        logger,
		CSVChunkSize:  cfg.CSVChunkSize,
		XLSXChunkSize: cfg.XLSXChunkSize,
		Timeout:       cfg.JobTimeout(),
	})

	w := worker.New(jobRepo, processor, logger, cfg.PollInterval(), map[domain.QueueClass]int{
		domain.QueueSmall:  cfg.SmallQueueWorkers,
		domain.QueueMedium: cfg.MediumQueueWorkers,
		domain.QueueLarge:  cfg.LargeQueueWorkers,
	})
	go w.Start(ctx)

	// heartbeat fires every 10s — 30s timeout means 3 missed beats before a job is stale
	reaper := worker.NewReaper(jobRepo, logger, 30*time.Second, 30*time.Second)
	go reaper.Start(ctx)

	sweeper := worker.NewSweeper(jobRepo, logger, cfg.CleanupSchedule, time.Duration(cfg.RetentionDays)*24*time.Hour)
	if err := sweeper.Start(ctx); err != nil {
		stop()
		log.Fatalf("sweeper: %v", err)
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("worker shut down")
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
