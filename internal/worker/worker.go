// Package worker drains the job queue: it executes publishes and token
// refreshes, applies the retry policy on classified failures, and pauses
// connections whose failures require human intervention.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/omnipost/publisher/internal/connector"
	"github.com/omnipost/publisher/internal/core/domain"
	"github.com/omnipost/publisher/internal/infra/httpx"
	"github.com/omnipost/publisher/internal/metrics"
	"github.com/omnipost/publisher/internal/queue"
	"github.com/omnipost/publisher/internal/resilience/classify"
	"github.com/omnipost/publisher/internal/resilience/pause"
	"github.com/omnipost/publisher/internal/resilience/retry"
	"github.com/omnipost/publisher/internal/resilience/taxonomy"
	"github.com/omnipost/publisher/internal/storage"
	"github.com/omnipost/publisher/internal/vault"
)

const (
	defaultConcurrency  = 4
	defaultPollInterval = time.Second
	publishTimeout      = 30 * time.Second
	promoteBatch        = 100
	reclaimInterval     = 30 * time.Second
)

// Worker owns the dequeue loops. One Worker runs per process.
type Worker struct {
	queue       *queue.Queue
	jobs        storage.JobRepository
	connections storage.ConnectionRepository
	manager     *connector.Manager
	pauser      *pause.Manager
	vault       *vault.Vault

	concurrency  int
	pollInterval time.Duration

	wg sync.WaitGroup
}

func New(
	q *queue.Queue,
	jobs storage.JobRepository,
	connections storage.ConnectionRepository,
	manager *connector.Manager,
	pauser *pause.Manager,
	v *vault.Vault,
) *Worker {
	return &Worker{
		queue:        q,
		jobs:         jobs,
		connections:  connections,
		manager:      manager,
		pauser:       pauser,
		vault:        v,
		concurrency:  defaultConcurrency,
		pollInterval: defaultPollInterval,
	}
}

// Start launches the dequeue loops plus the scheduled-job promoter and the
// expired-lease reclaimer. It returns immediately; loops stop when ctx is
// cancelled and Wait returns once they have drained.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runLoop(ctx)
		}()
	}

	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.promoteLoop(ctx)
	}()
	go func() {
		defer w.wg.Done()
		w.reclaimLoop(ctx)
	}()

	slog.Info("worker started", "concurrency", w.concurrency)
}

// Wait blocks until all loops have exited.
func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobID, err := w.queue.DequeueWithLease(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("dequeue failed", "error", err)
			sleepCtx(ctx, w.pollInterval)
			continue
		}
		if jobID == "" {
			sleepCtx(ctx, w.pollInterval)
			continue
		}

		w.ProcessJob(ctx, jobID)
	}
}

func (w *Worker) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.queue.PromoteScheduled(ctx, time.Now(), promoteBatch); err != nil && ctx.Err() == nil {
				slog.Error("failed to promote scheduled jobs", "error", err)
			}
			if depth, err := w.queue.ReadyDepth(ctx); err == nil {
				metrics.QueueDepth.Set(float64(depth))
			}
		}
	}
}

func (w *Worker) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(reclaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := w.queue.RequeueExpired(ctx, time.Now(), promoteBatch)
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("failed to reclaim expired leases", "error", err)
				}
				continue
			}
			if len(ids) > 0 {
				slog.Warn("reclaimed expired job leases", "count", len(ids))
			}
		}
	}
}

// ProcessJob executes one leased job to a terminal or rescheduled state and
// releases the lease. Exported so tests can drive jobs synchronously.
func (w *Worker) ProcessJob(ctx context.Context, jobID string) {
	job, err := w.jobs.Get(ctx, jobID)
	if err != nil {
		slog.Error("failed to load job", "job", jobID, "error", err)
		// Leave the lease in place; the reclaimer will redeliver.
		return
	}
	if job == nil || job.Status == domain.JobCompleted || job.Status == domain.JobFailed {
		w.ack(ctx, jobID)
		return
	}

	if err := w.jobs.MarkInProgress(ctx, jobID); err != nil {
		slog.Error("failed to mark job in progress", "job", jobID, "error", err)
	}

	switch job.Type {
	case domain.JobTokenRefresh:
		w.processRefresh(ctx, job)
	default:
		w.processPublish(ctx, job)
	}
}

func (w *Worker) processPublish(ctx context.Context, job *domain.PublishJob) {
	conn, err := w.manager.GetConnector(job.TenantID, job.ConnectionID, job.Platform)
	if err != nil {
		w.terminate(ctx, job, domain.ErrInternal, err)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	start := time.Now()
	result, err := conn.Publish(callCtx, job.AccountID, job.Title, job.Body, job.MediaURLs, nil)
	latency := time.Since(start)
	cancel()

	w.manager.Quota().RecordRequest(job.Platform, latency)
	metrics.PublishLatency.WithLabelValues(string(job.Platform)).Observe(latency.Seconds())

	if err == nil {
		if err := w.jobs.MarkCompleted(ctx, job.ID); err != nil {
			slog.Error("failed to mark job completed", "job", job.ID, "error", err)
		}
		w.ack(ctx, job.ID)
		metrics.PublishesTotal.WithLabelValues(string(job.Platform), "success").Inc()
		slog.Info("publish completed",
			"job", job.ID,
			"platform", job.Platform,
			"post", result.PostID,
			"attempt", job.Attempts+1,
		)
		return
	}

	metrics.PublishesTotal.WithLabelValues(string(job.Platform), "failure").Inc()
	w.handleFailure(ctx, job, err)
}

func (w *Worker) processRefresh(ctx context.Context, job *domain.PublishJob) {
	conn, err := w.manager.GetConnector(job.TenantID, job.ConnectionID, job.Platform)
	if err != nil {
		w.terminate(ctx, job, domain.ErrInternal, err)
		return
	}

	// Prefer the stored refresh token; platforms without one (Meta) extend
	// the current access token instead.
	token, ok, err := w.vault.RetrieveSecret(ctx, job.TenantID, job.ConnectionID, domain.SecretRefreshToken)
	if err == nil && !ok {
		token, ok, err = w.vault.RetrieveSecret(ctx, job.TenantID, job.ConnectionID, domain.SecretAccessToken)
	}
	if err != nil {
		w.handleFailure(ctx, job, err)
		return
	}
	if !ok {
		w.handleFailure(ctx, job, connector.ErrNoToken)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	result, err := conn.RefreshToken(callCtx, token)
	cancel()

	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(string(job.Platform), "failure").Inc()
		w.handleFailure(ctx, job, err)
		return
	}

	if err := w.vault.StoreSecret(ctx, job.TenantID, job.ConnectionID, domain.SecretAccessToken, result.AccessToken); err != nil {
		w.handleFailure(ctx, job, err)
		return
	}
	if result.RefreshToken != "" {
		if err := w.vault.StoreSecret(ctx, job.TenantID, job.ConnectionID, domain.SecretRefreshToken, result.RefreshToken); err != nil {
			w.handleFailure(ctx, job, err)
			return
		}
	}

	expiresAt := time.Now().Add(time.Duration(result.ExpiresIn) * time.Second).UTC()
	if err := w.connections.UpdateTokenRefresh(ctx, job.TenantID, job.ConnectionID, expiresAt); err != nil {
		slog.Error("failed to stamp token refresh", "connection", job.ConnectionID, "error", err)
	}

	if err := w.jobs.MarkCompleted(ctx, job.ID); err != nil {
		slog.Error("failed to mark job completed", "job", job.ID, "error", err)
	}
	w.ack(ctx, job.ID)
	metrics.TokenRefreshesTotal.WithLabelValues(string(job.Platform), "success").Inc()
	slog.Info("token refreshed", "connection", job.ConnectionID, "platform", job.Platform, "expires_at", expiresAt)
}

// handleFailure classifies the failure and routes the job: pause the
// connection on credential-class codes (no further retries), reschedule with
// backoff while the retry budget holds, dead-letter otherwise.
func (w *Worker) handleFailure(ctx context.Context, job *domain.PublishJob, cause error) {
	attempt := job.Attempts + 1
	if err := w.jobs.RecordAttempt(ctx, job.ID, attempt, cause.Error()); err != nil {
		slog.Error("failed to record attempt", "job", job.ID, "error", err)
	}

	code, entry := w.classifyFailure(job, cause, attempt)
	metrics.ClassificationsTotal.WithLabelValues(string(job.Platform), string(code)).Inc()

	if entry.RequiresReauth || entry.PausesChannel {
		if _, err := w.pauser.AutoPauseConnection(ctx, job.TenantID, job.ConnectionID, code); err != nil {
			slog.Error("failed to auto-pause connection", "connection", job.ConnectionID, "error", err)
		}
		w.terminate(ctx, job, code, cause)
		return
	}

	policy := retry.FromEntry(entry)
	if policy.ShouldRetry(attempt) && attempt < job.MaxAttempts {
		delay := policy.NextDelay(attempt)
		if err := w.queue.Schedule(ctx, job.ID, time.Now().Add(delay)); err != nil {
			slog.Error("failed to reschedule job", "job", job.ID, "error", err)
			return
		}
		w.ack(ctx, job.ID)
		slog.Warn("publish attempt failed, retrying",
			"job", job.ID,
			"platform", job.Platform,
			"code", code,
			"attempt", attempt,
			"max_attempts", job.MaxAttempts,
			"delay", delay,
		)
		return
	}

	w.terminate(ctx, job, code, cause)
}

// classifyFailure picks the canonical code for the error: vendor-aware
// classification for API responses, transport-kind classification otherwise.
// A missing vault token means the connection cannot authenticate at all.
func (w *Worker) classifyFailure(job *domain.PublishJob, cause error, attempt int) (domain.ErrorCode, taxonomy.Entry) {
	var apiErr *httpx.APIError
	if errors.As(cause, &apiErr) {
		act := classify.ClassifyAndActionError(
			string(job.Platform), apiErr.StatusCode, apiErr.Body,
			job.TenantID, job.ConnectionID, attempt,
		)
		if act.Code == domain.ErrRateLimit {
			w.manager.Quota().RecordThrottle(job.Platform)
		}
		return act.Code, taxonomy.Get(act.Code)
	}

	if errors.Is(cause, connector.ErrNoToken) {
		return domain.ErrAuthInvalid, taxonomy.Get(domain.ErrAuthInvalid)
	}

	code := classify.ClassifySystemError(cause)
	return code, taxonomy.Get(code)
}

func (w *Worker) terminate(ctx context.Context, job *domain.PublishJob, code domain.ErrorCode, cause error) {
	msg := fmt.Sprintf("%s: %s", code, cause.Error())
	if err := w.jobs.MarkFailed(ctx, job.ID, msg); err != nil {
		slog.Error("failed to mark job failed", "job", job.ID, "error", err)
	}
	if err := w.queue.DLQPush(ctx, job.ID); err != nil {
		slog.Error("failed to dead-letter job", "job", job.ID, "error", err)
	}
	w.ack(ctx, job.ID)

	metrics.JobsDeadLetteredTotal.WithLabelValues(string(job.Type), string(code)).Inc()
	slog.Error("job failed terminally",
		"job", job.ID,
		"type", job.Type,
		"platform", job.Platform,
		"code", code,
		"error", cause,
	)
}

func (w *Worker) ack(ctx context.Context, jobID string) {
	if err := w.queue.Ack(ctx, jobID); err != nil {
		slog.Error("failed to ack job", "job", jobID, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
