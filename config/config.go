package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379" validate:"required"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	// Upload intake.
	UploadDir      string `env:"UPLOAD_DIR" envDefault:"/var/lib/employee-import/uploads"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"20971520" validate:"min=1"`
	MaxUploadRows  int    `env:"MAX_UPLOAD_ROWS" envDefault:"50000" validate:"min=1"`

	// Worker tuning. Concurrency is per size-class queue.
	PollIntervalSec    int `env:"POLL_INTERVAL_SEC" envDefault:"1" validate:"min=1,max=60"`
	SmallQueueWorkers  int `env:"SMALL_QUEUE_WORKERS" envDefault:"4" validate:"min=1,max=100"`
	MediumQueueWorkers int `env:"MEDIUM_QUEUE_WORKERS" envDefault:"2" validate:"min=1,max=100"`
	LargeQueueWorkers  int `env:"LARGE_QUEUE_WORKERS" envDefault:"1" validate:"min=1,max=100"`
	JobTimeoutSec      int `env:"JOB_TIMEOUT_SEC" envDefault:"3600" validate:"min=1"`

	LockTTLSec int `env:"LOCK_TTL_SEC" envDefault:"90" validate:"min=5"`

	CSVChunkSize  int `env:"CSV_CHUNK_SIZE" envDefault:"100" validate:"min=1"`
	XLSXChunkSize int `env:"XLSX_CHUNK_SIZE" envDefault:"50" validate:"min=1"`

	// Retention sweep for terminal jobs and their files.
	RetentionDays   int    `env:"RETENTION_DAYS" envDefault:"30" validate:"min=1"`
	CleanupSchedule string `env:"CLEANUP_SCHEDULE" envDefault:"0 3 * * *"`

	// Completion notifications. Empty NotifyEmail disables them.
	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom   string `env:"RESEND_FROM"    validate:"required_if=Env production,required_if=Env staging"`
	NotifyEmail  string `env:"NOTIFY_EMAIL"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSec) * time.Second
}

func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSec) * time.Second
}
