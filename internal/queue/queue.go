// Package queue is the durable job queue backing the publishing workers.
// Redis holds three structures: a ready list, a scheduled zset keyed by the
// next delivery time, and an in-flight zset keyed by lease expiry. A job ID
// is its idempotency key; the lease discipline guarantees at most one
// in-flight attempt per key at a time.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

const (
	readyKey     = "publisher:jobs:ready"
	scheduledKey = "publisher:jobs:scheduled"
	inflightKey  = "publisher:jobs:inflight"
	dlqKey       = "publisher:jobs:dlq"

	defaultVisibility = 2 * time.Minute
)

// Queue wraps Redis operations for the publishing pipeline.
type Queue struct {
	rdb           *redis.Client
	visibilityTTL time.Duration
}

// New creates a queue client and verifies connectivity.
func New(cfg Config) (*Queue, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{rdb: rdb, visibilityTTL: defaultVisibility}, nil
}

// NewWithClient wraps an existing client (used in tests with miniredis).
func NewWithClient(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb, visibilityTTL: defaultVisibility}
}

// Close closes the Redis connection.
func (q *Queue) Close() error {
	return q.rdb.Close()
}

// Ping checks queue reachability.
func (q *Queue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

// Enqueue makes a job deliverable now.
func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	if err := q.rdb.RPush(ctx, readyKey, jobID).Err(); err != nil {
		return fmt.Errorf("rpush failed: %w", err)
	}
	return nil
}

// Schedule defers a job until runAt. Used both for initial scheduling and for
// retry backoff: the delay is enforced here, not by a busy wait in a worker.
func (q *Queue) Schedule(ctx context.Context, jobID string, runAt time.Time) error {
	err := q.rdb.ZAdd(ctx, scheduledKey, redis.Z{
		Score:  float64(runAt.UnixMilli()),
		Member: jobID,
	}).Err()
	if err != nil {
		return fmt.Errorf("zadd failed: %w", err)
	}
	return nil
}

// PromoteScheduled moves due scheduled jobs into the ready list. It returns
// how many were promoted.
func (q *Queue) PromoteScheduled(ctx context.Context, now time.Time, limit int64) (int, error) {
	ids, err := q.rdb.ZRangeByScore(ctx, scheduledKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore failed: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := q.rdb.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, scheduledKey, id)
		pipe.RPush(ctx, readyKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("promote failed: %w", err)
	}
	return len(ids), nil
}

// DequeueWithLease pops the next ready job and places it in-flight with a
// visibility timeout. Returns "" when the queue is empty.
func (q *Queue) DequeueWithLease(ctx context.Context) (string, error) {
	res, err := dequeueScript.Run(
		ctx, q.rdb,
		[]string{readyKey, inflightKey},
		time.Now().Add(q.visibilityTTL).UnixMilli(),
	).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("dequeue failed: %w", err)
	}
	jobID, ok := res.(string)
	if !ok {
		return "", fmt.Errorf("unexpected type from dequeue script: %T", res)
	}
	return jobID, nil
}

// ExtendLease pushes the visibility deadline forward for an in-flight job.
func (q *Queue) ExtendLease(ctx context.Context, jobID string, extension time.Duration) error {
	return q.rdb.ZAdd(ctx, inflightKey, redis.Z{
		Score:  float64(time.Now().Add(extension).UnixMilli()),
		Member: jobID,
	}).Err()
}

// Ack removes a job from in-flight tracking.
func (q *Queue) Ack(ctx context.Context, jobID string) error {
	return q.rdb.ZRem(ctx, inflightKey, jobID).Err()
}

// RequeueExpired reclaims leases that timed out (a worker died mid-job) and
// makes those jobs deliverable again.
func (q *Queue) RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	ids, err := q.rdb.ZRangeByScore(ctx, inflightKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := q.rdb.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, inflightKey, id)
		pipe.RPush(ctx, readyKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("requeue failed: %w", err)
	}
	return ids, nil
}

// DLQPush records a dead-lettered job ID for operational inspection. The job
// row itself stays in Postgres; this list is the fast path for tooling.
func (q *Queue) DLQPush(ctx context.Context, jobID string) error {
	return q.rdb.RPush(ctx, dlqKey, jobID).Err()
}

// DLQPeek reads the oldest dead-lettered job IDs.
func (q *Queue) DLQPeek(ctx context.Context, count int64) ([]string, error) {
	return q.rdb.LRange(ctx, dlqKey, 0, count-1).Result()
}

// ReadyDepth returns the number of jobs ready for delivery.
func (q *Queue) ReadyDepth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, readyKey).Result()
}

var dequeueScript = redis.NewScript(`
local job = redis.call('LPOP', KEYS[1])
if job then
  redis.call('ZADD', KEYS[2], ARGV[1], job)
  return job
end
return nil
`)
