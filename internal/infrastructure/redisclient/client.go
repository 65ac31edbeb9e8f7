package redisclient

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// New builds a go-redis client with conservative timeouts; the lock
// manager and progress cache share it.
func New(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Ping verifies connectivity; used by the readiness check.
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}
