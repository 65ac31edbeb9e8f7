package importlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hrstream/employee-import/internal/domain"
)

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewManager(client, 90*time.Second), mr
}

func TestAcquireIsExclusive(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	token, err := m.Acquire(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if token == "" {
		t.Fatal("empty token")
	}

	if _, err := m.Acquire(ctx, "job-1"); !errors.Is(err, domain.ErrLockNotAcquired) {
		t.Errorf("second acquire should fail, got %v", err)
	}

	if _, err := m.Acquire(ctx, "job-2"); err != nil {
		t.Errorf("different job should lock independently: %v", err)
	}
}

func TestRenewExtendsOwnLockOnly(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	token, err := m.Acquire(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Renew(ctx, "job-1", token); err != nil {
		t.Errorf("owner renew failed: %v", err)
	}
	if err := m.Renew(ctx, "job-1", "someone-else"); !errors.Is(err, domain.ErrLockLost) {
		t.Errorf("foreign token renew should report a lost lock, got %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if err := m.Renew(ctx, "job-1", token); !errors.Is(err, domain.ErrLockLost) {
		t.Errorf("expired lock renew should report a lost lock, got %v", err)
	}
}

func TestReleaseRequiresMatchingToken(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	token, err := m.Acquire(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Release(ctx, "job-1", "someone-else"); err != nil {
		t.Fatalf("foreign release should be a no-op, got %v", err)
	}
	if _, err := m.Acquire(ctx, "job-1"); !errors.Is(err, domain.ErrLockNotAcquired) {
		t.Fatal("lock should survive a foreign release")
	}

	if err := m.Release(ctx, "job-1", token); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Acquire(ctx, "job-1"); err != nil {
		t.Errorf("lock should be free after owner release: %v", err)
	}
}

func TestAcquireAfterExpiry(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Acquire(ctx, "job-1"); err != nil {
		t.Fatal(err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := m.Acquire(ctx, "job-1"); err != nil {
		t.Errorf("expired lock should be acquirable: %v", err)
	}
}
