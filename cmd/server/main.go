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

	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hrstream/employee-import/config"
	"github.com/hrstream/employee-import/internal/health"
	"github.com/hrstream/employee-import/internal/infrastructure/postgres"
	"github.com/hrstream/employee-import/internal/infrastructure/redisclient"
	ctxlog "github.com/hrstream/employee-import/internal/log"
	"github.com/hrstream/employee-import/internal/metrics"
	"github.com/hrstream/employee-import/internal/progress"
	httptransport "github.com/hrstream/employee-import/internal/transport/http"
	"github.com/hrstream/employee-import/internal/transport/http/handler"
	"github.com/hrstream/employee-import/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	redisClient := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	jobRepo := postgres.NewJobRepository(pool)
	errorRepo := postgres.NewErrorRepository(pool)
	resumptionRepo := postgres.NewResumptionLogRepository(pool)

	uploadUsecase := usecase.NewUploadUsecase(jobRepo, logger, cfg.UploadDir, cfg.MaxUploadBytes, cfg.MaxUploadRows)
	statusUsecase := usecase.NewStatusUsecase(jobRepo, errorRepo, resumptionRepo, progress.NewCache(redisClient), logger)
	importHandler := handler.NewImportHandler(uploadUsecase, statusUsecase, logger)

	metrics.Register()
	checker := health.NewChecker(pool, health.PingFunc(func(ctx context.Context) error {
		return redisclient.Ping(ctx, redisClient)
	}), logger, prometheus.DefaultRegisterer)

	srv := http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httptransport.NewRouter(logger, importHandler, checker),
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
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
