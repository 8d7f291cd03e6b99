package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWithClient(rdb)
}

func TestEnqueueDequeue(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "job-1"); err != nil {
		t.Fatal(err)
	}

	id, err := q.DequeueWithLease(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id != "job-1" {
		t.Errorf("dequeued %q, want job-1", id)
	}

	// Ready queue is drained; in-flight holds the lease.
	if id, _ := q.DequeueWithLease(ctx); id != "" {
		t.Errorf("second dequeue returned %q, want empty", id)
	}
}

func TestScheduleAndPromote(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	runAt := time.Now().Add(50 * time.Millisecond)
	if err := q.Schedule(ctx, "job-1", runAt); err != nil {
		t.Fatal(err)
	}

	// Not due yet.
	n, err := q.PromoteScheduled(ctx, time.Now(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("promoted %d before due time, want 0", n)
	}

	n, err = q.PromoteScheduled(ctx, runAt.Add(time.Millisecond), 10)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("promoted %d, want 1", n)
	}

	id, err := q.DequeueWithLease(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id != "job-1" {
		t.Errorf("dequeued %q, want job-1", id)
	}
}

func TestAckRemovesLease(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "job-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := q.DequeueWithLease(ctx); err != nil {
		t.Fatal(err)
	}
	if err := q.Ack(ctx, "job-1"); err != nil {
		t.Fatal(err)
	}

	// Nothing to reclaim after ack, even far in the future.
	ids, err := q.RequeueExpired(ctx, time.Now().Add(time.Hour), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("reclaimed %v after ack, want none", ids)
	}
}

func TestRequeueExpiredLease(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "job-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := q.DequeueWithLease(ctx); err != nil {
		t.Fatal(err)
	}

	// Pretend the lease expired (worker died).
	ids, err := q.RequeueExpired(ctx, time.Now().Add(q.visibilityTTL+time.Second), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "job-1" {
		t.Fatalf("reclaimed %v, want [job-1]", ids)
	}

	id, err := q.DequeueWithLease(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id != "job-1" {
		t.Errorf("redelivered %q, want job-1", id)
	}
}

func TestDLQ(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if err := q.DLQPush(ctx, "job-1"); err != nil {
		t.Fatal(err)
	}
	if err := q.DLQPush(ctx, "job-2"); err != nil {
		t.Fatal(err)
	}

	ids, err := q.DLQPeek(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "job-1" {
		t.Errorf("DLQPeek = %v, want [job-1 job-2]", ids)
	}
}

func TestReadyDepth(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	depth, err := q.ReadyDepth(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if depth != 3 {
		t.Errorf("depth = %d, want 3", depth)
	}
}
