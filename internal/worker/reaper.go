package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/omnipost/publisher/internal/storage"
)

// secretGenerationsKept is how many append-only rows survive per secret key.
// The newest row is the live secret; older kept rows cover in-flight readers.
const secretGenerationsKept = 3

// Reaper deletes completed jobs past the retention window and prunes old
// secret generations. Failed jobs are never touched; they stay for
// dead-letter inspection.
type Reaper struct {
	jobs      storage.JobRepository
	secrets   storage.SecretRepository
	retention time.Duration
}

func NewReaper(jobs storage.JobRepository, secrets storage.SecretRepository, retention time.Duration) *Reaper {
	return &Reaper{jobs: jobs, secrets: secrets, retention: retention}
}

// Start runs the reaper loop until ctx is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	if r.retention <= 0 {
		return
	}

	interval := min(r.retention/10, time.Hour)
	interval = max(interval, time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.reap(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reap(ctx)
		}
	}
}

func (r *Reaper) reap(ctx context.Context) {
	cutoff := time.Now().Add(-r.retention)

	jobsDeleted, err := r.jobs.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		slog.Error("failed to reap completed jobs", "error", err)
	}

	secretsDeleted, err := r.secrets.DeleteOldGenerations(ctx, secretGenerationsKept)
	if err != nil {
		slog.Error("failed to reap secret generations", "error", err)
	}

	if jobsDeleted > 0 || secretsDeleted > 0 {
		slog.Info("retention reap complete", "jobs", jobsDeleted, "secrets", secretsDeleted)
	}
}
