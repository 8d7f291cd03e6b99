package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/omnipost/publisher/internal/core/domain"
)

// JobRepo implements storage.JobRepository using PostgreSQL.
type JobRepo struct {
	db *DB
}

func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

type jobRow struct {
	ID           string         `db:"id"`
	JobType      string         `db:"job_type"`
	TenantID     string         `db:"tenant_id"`
	ConnectionID string         `db:"connection_id"`
	Platform     string         `db:"platform"`
	AccountID    string         `db:"account_id"`
	Title        string         `db:"title"`
	Body         string         `db:"body"`
	MediaURLs    pq.StringArray `db:"media_urls"`
	Status       string         `db:"status"`
	Attempts     int            `db:"attempts"`
	MaxAttempts  int            `db:"max_attempts"`
	LastError    string         `db:"last_error"`
	CompletedAt  *time.Time     `db:"completed_at"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r jobRow) toDomain() *domain.PublishJob {
	return &domain.PublishJob{
		ID:           r.ID,
		Type:         domain.JobType(r.JobType),
		TenantID:     r.TenantID,
		ConnectionID: r.ConnectionID,
		Platform:     domain.Platform(r.Platform),
		AccountID:    r.AccountID,
		Title:        r.Title,
		Body:         r.Body,
		MediaURLs:    r.MediaURLs,
		Status:       domain.JobStatus(r.Status),
		Attempts:     r.Attempts,
		MaxAttempts:  r.MaxAttempts,
		LastError:    r.LastError,
		CompletedAt:  r.CompletedAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

const jobColumns = `id, job_type, tenant_id, connection_id, platform, account_id, title, body,
	media_urls, status, attempts, max_attempts, last_error, completed_at, created_at, updated_at`

// Create inserts a job keyed on its idempotency key. A conflicting insert is
// not an error: the existing job is returned with reused=true so the caller
// can skip enqueueing a duplicate delivery.
func (r *JobRepo) Create(ctx context.Context, job *domain.PublishJob) (*domain.PublishJob, bool, error) {
	query := `
		INSERT INTO publish_jobs (id, job_type, tenant_id, connection_id, platform, account_id, title, body, media_urls, status, max_attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		job.ID,
		string(job.Type),
		job.TenantID,
		job.ConnectionID,
		string(job.Platform),
		job.AccountID,
		job.Title,
		job.Body,
		pq.StringArray(job.MediaURLs),
		string(job.Status),
		job.MaxAttempts,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create job: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read insert result: %w", err)
	}
	if inserted > 0 {
		return job, false, nil
	}

	existing, err := r.Get(ctx, job.ID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("job %s vanished between insert and read", job.ID)
	}
	return existing, true, nil
}

func (r *JobRepo) Get(ctx context.Context, jobID string) (*domain.PublishJob, error) {
	query := `SELECT ` + jobColumns + ` FROM publish_jobs WHERE id = $1`

	var row jobRow
	err := r.db.GetContext(ctx, &row, query, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.toDomain(), nil
}

func (r *JobRepo) MarkInProgress(ctx context.Context, jobID string) error {
	return r.setStatus(ctx, jobID, domain.JobInProgress)
}

func (r *JobRepo) MarkCompleted(ctx context.Context, jobID string) error {
	query := `UPDATE publish_jobs SET status = 'completed', completed_at = now(), updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, jobID); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	return nil
}

func (r *JobRepo) MarkFailed(ctx context.Context, jobID string, lastError string) error {
	query := `UPDATE publish_jobs SET status = 'failed', last_error = $2, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, jobID, lastError); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

func (r *JobRepo) RecordAttempt(ctx context.Context, jobID string, attempts int, lastError string) error {
	query := `UPDATE publish_jobs SET attempts = $2, last_error = $3, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, jobID, attempts, lastError); err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

func (r *JobRepo) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM publish_jobs WHERE status = 'completed' AND completed_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete completed jobs: %w", err)
	}
	return res.RowsAffected()
}

func (r *JobRepo) setStatus(ctx context.Context, jobID string, status domain.JobStatus) error {
	query := `UPDATE publish_jobs SET status = $2, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, jobID, string(status)); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}
