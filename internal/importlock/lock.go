package importlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hrstream/employee-import/internal/domain"
)

const keyPrefix = "import:lock:"

// Renewal and release must only act when the stored token still
// belongs to the caller, so both are compare-and-act scripts.
var (
	renewScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		end
		return 0`)

	releaseScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0`)
)

// Manager hands out per-job cooperative locks backed by Redis. A lock
// has a single owner token and expires after TTL unless renewed; a
// worker that stops renewing loses the job to the reaper.
type Manager struct {
	client *redis.Client
	ttl    time.Duration
}

func NewManager(client *redis.Client, ttl time.Duration) *Manager {
	return &Manager{client: client, ttl: ttl}
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Acquire takes the job lock atomically. Returns ErrLockNotAcquired
// when another owner holds it; the caller defers the job instead of
// waiting.
func (m *Manager) Acquire(ctx context.Context, jobID string) (string, error) {
	token := uuid.NewString()
	ok, err := m.client.SetNX(ctx, keyPrefix+jobID, token, m.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire lock for job %s: %w", jobID, err)
	}
	if !ok {
		return "", domain.ErrLockNotAcquired
	}
	return token, nil
}

// Renew extends the TTL iff the token still owns the lock. Callers
// must renew at least every TTL/2; ErrLockLost means the lock expired
// or was taken over and the attempt must stop committing.
func (m *Manager) Renew(ctx context.Context, jobID, token string) error {
	n, err := renewScript.Run(ctx, m.client, []string{keyPrefix + jobID}, token, m.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("renew lock for job %s: %w", jobID, err)
	}
	if n == 0 {
		return domain.ErrLockLost
	}
	return nil
}

// Release clears the lock iff the token matches. Releasing a lock that
// already expired is not an error.
func (m *Manager) Release(ctx context.Context, jobID, token string) error {
	_, err := releaseScript.Run(ctx, m.client, []string{keyPrefix + jobID}, token).Int()
	if err != nil {
		return fmt.Errorf("release lock for job %s: %w", jobID, err)
	}
	return nil
}
