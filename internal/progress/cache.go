package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hrstream/employee-import/internal/domain"
)

const (
	keyPrefix = "import:progress:"

	// Snapshots are advisory; the durable counters on the job row are
	// authoritative. The TTL bounds staleness if invalidation is missed.
	snapshotTTL = time.Hour
)

// Snapshot is the fast-read view of a job's counters, written right
// after each chunk commit.
type Snapshot struct {
	JobID            string     `json:"job_id"`
	Status           string     `json:"status"`
	TotalRows        int        `json:"total_rows"`
	ProcessedRows    int        `json:"processed_rows"`
	SuccessfulRows   int        `json:"successful_rows"`
	ErrorRows        int        `json:"error_rows"`
	LastProcessedRow int        `json:"last_processed_row"`
	Percentage       float64    `json:"percentage"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func FromJob(job *domain.ImportJob) *Snapshot {
	return &Snapshot{
		JobID:            job.ID,
		Status:           string(job.Status),
		TotalRows:        job.TotalRows,
		ProcessedRows:    job.ProcessedRows,
		SuccessfulRows:   job.SuccessfulRows,
		ErrorRows:        job.ErrorRows,
		LastProcessedRow: job.LastProcessedRow,
		Percentage:       job.Percentage(),
		StartedAt:        job.StartedAt,
		CompletedAt:      job.CompletedAt,
		UpdatedAt:        job.UpdatedAt,
	}
}

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Get returns the cached snapshot, or ok=false on a miss. Callers fall
// back to the durable store and repopulate with Set.
func (c *Cache) Get(ctx context.Context, jobID string) (*Snapshot, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+jobID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read progress snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, false, fmt.Errorf("decode progress snapshot: %w", err)
	}
	return &snap, true, nil
}

func (c *Cache) Set(ctx context.Context, snap *Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode progress snapshot: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+snap.JobID, raw, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("write progress snapshot: %w", err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, jobID string) error {
	if err := c.client.Del(ctx, keyPrefix+jobID).Err(); err != nil {
		return fmt.Errorf("invalidate progress snapshot: %w", err)
	}
	return nil
}
