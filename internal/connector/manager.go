package connector

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omnipost/publisher/internal/core/domain"
	"github.com/omnipost/publisher/internal/infra/httpx"
	"github.com/omnipost/publisher/internal/metrics"
	"github.com/omnipost/publisher/internal/queue"
	"github.com/omnipost/publisher/internal/storage"
	"github.com/omnipost/publisher/internal/vault"
)

// PublishAttempts is the fixed retry budget for queued publish jobs.
const PublishAttempts = 4

// refreshWindow is how far ahead of token expiry a refresh job is scheduled.
const refreshWindow = 24 * time.Hour

type cacheKey struct {
	platform     domain.Platform
	connectionID string
}

// Manager is the orchestration root: it caches connector instances, enqueues
// publish work with idempotency keys, schedules proactive token refreshes,
// and runs periodic health checks. It is constructed once per process and
// passed by reference; there are no package-level singletons.
type Manager struct {
	mu        sync.RWMutex
	cache     map[cacheKey]Connector
	factories map[domain.Platform]Factory

	client      *httpx.Client
	vault       *vault.Vault
	queue       *queue.Queue
	jobs        storage.JobRepository
	connections storage.ConnectionRepository
	healthLog   storage.HealthLogRepository
	quota       *QuotaMonitor
}

// NewManager wires the manager. Platform factories are injected so tests can
// register fakes and the manager never imports platform packages.
func NewManager(
	factories map[domain.Platform]Factory,
	client *httpx.Client,
	v *vault.Vault,
	q *queue.Queue,
	jobs storage.JobRepository,
	connections storage.ConnectionRepository,
	healthLog storage.HealthLogRepository,
) *Manager {
	return &Manager{
		cache:       make(map[cacheKey]Connector),
		factories:   factories,
		client:      client,
		vault:       v,
		queue:       q,
		jobs:        jobs,
		connections: connections,
		healthLog:   healthLog,
		quota:       NewQuotaMonitor(),
	}
}

// Quota exposes the per-platform request accounting.
func (m *Manager) Quota() *QuotaMonitor { return m.quota }

// GetConnector returns the cached connector for (platform, connectionID),
// constructing it on first access. Concurrent first accesses may race to
// construct duplicate instances; construction is side-effect free, so the
// last write simply wins.
func (m *Manager) GetConnector(
	tenantID, connectionID string,
	platform domain.Platform,
) (Connector, error) {
	key := cacheKey{platform: platform, connectionID: connectionID}

	m.mu.RLock()
	c, ok := m.cache[key]
	m.mu.RUnlock()
	if ok {
		return c, nil
	}

	factory, ok := m.factories[platform]
	if !ok {
		return nil, fmt.Errorf("no connector registered for platform %s", platform)
	}

	c = factory(Deps{
		TenantID:     tenantID,
		ConnectionID: connectionID,
		Client:       m.client,
		Tokens: &vaultTokenSource{
			vault:        m.vault,
			tenantID:     tenantID,
			connectionID: connectionID,
		},
	})

	m.mu.Lock()
	m.cache[key] = c
	m.mu.Unlock()
	return c, nil
}

// PublishRequest is the input to PublishViaQueue.
type PublishRequest struct {
	IdempotencyKey string
	TenantID       string
	ConnectionID   string
	Platform       domain.Platform
	AccountID      string
	Title          string
	Body           string
	MediaURLs      []string
}

// PublishViaQueue persists a publish job and makes it deliverable. The job ID
// is the idempotency key (generated when the caller didn't supply one);
// re-submitting the same key returns the existing job without enqueuing a
// second delivery. Failed jobs are retained for dead-letter inspection.
func (m *Manager) PublishViaQueue(ctx context.Context, req PublishRequest) (*domain.PublishJob, error) {
	key := req.IdempotencyKey
	if key == "" {
		key = uuid.New().String()
	}

	job := &domain.PublishJob{
		ID:           key,
		Type:         domain.JobPublish,
		TenantID:     req.TenantID,
		ConnectionID: req.ConnectionID,
		Platform:     req.Platform,
		AccountID:    req.AccountID,
		Title:        req.Title,
		Body:         req.Body,
		MediaURLs:    req.MediaURLs,
		Status:       domain.JobQueued,
		MaxAttempts:  PublishAttempts,
	}

	existing, reused, err := m.jobs.Create(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to create publish job: %w", err)
	}
	if reused {
		slog.Debug("publish job deduplicated by idempotency key", "job", key)
		return existing, nil
	}

	if err := m.queue.Enqueue(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to enqueue publish job: %w", err)
	}

	metrics.JobsQueuedTotal.WithLabelValues(string(domain.JobPublish)).Inc()
	slog.Info("publish job queued",
		"job", key,
		"tenant", req.TenantID,
		"connection", req.ConnectionID,
		"platform", req.Platform,
	)
	return job, nil
}

// ScheduleTokenRefreshes enqueues one refresh job per connection whose token
// expires within the rolling refresh window but has not yet expired. The job
// key is derived from the connection and its expiry, so repeated scheduler
// passes do not produce duplicate jobs.
func (m *Manager) ScheduleTokenRefreshes(ctx context.Context) (int, error) {
	deadline := time.Now().Add(refreshWindow)
	conns, err := m.connections.ListExpiringTokens(ctx, deadline)
	if err != nil {
		return 0, fmt.Errorf("failed to list expiring tokens: %w", err)
	}

	scheduled := 0
	for _, conn := range conns {
		key := fmt.Sprintf("token_refresh:%s:%d", conn.ID, conn.TokenExpiresAt.Unix())
		job := &domain.PublishJob{
			ID:           key,
			Type:         domain.JobTokenRefresh,
			TenantID:     conn.TenantID,
			ConnectionID: conn.ID,
			Platform:     conn.Platform,
			Status:       domain.JobQueued,
			MaxAttempts:  PublishAttempts,
		}

		_, reused, err := m.jobs.Create(ctx, job)
		if err != nil {
			slog.Error("failed to create refresh job", "connection", conn.ID, "error", err)
			continue
		}
		if reused {
			continue
		}
		if err := m.queue.Enqueue(ctx, key); err != nil {
			slog.Error("failed to enqueue refresh job", "connection", conn.ID, "error", err)
			continue
		}
		metrics.JobsQueuedTotal.WithLabelValues(string(domain.JobTokenRefresh)).Inc()
		scheduled++
	}

	if scheduled > 0 {
		slog.Info("scheduled token refreshes", "count", scheduled)
	}
	return scheduled, nil
}

// RunHealthChecks iterates active connections, invokes each connector's
// health check, persists the observation, and updates connection health.
// Critical health moves the connection into attention; a panicking or
// erroring check is treated the same as a critical result.
func (m *Manager) RunHealthChecks(ctx context.Context) error {
	conns, err := m.connections.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active connections: %w", err)
	}

	for _, conn := range conns {
		result := m.checkOne(ctx, conn)
		checkedAt := time.Now().UTC()

		rec := &domain.HealthCheckRecord{
			ConnectionID: conn.ID,
			TenantID:     conn.TenantID,
			Status:       result.Status,
			LatencyMs:    result.LatencyMs,
			Message:      result.Message,
			CheckedAt:    checkedAt,
		}
		if err := m.healthLog.Append(ctx, rec); err != nil {
			slog.Error("failed to persist health check", "connection", conn.ID, "error", err)
		}

		status := conn.Status
		checkErr := ""
		if result.Status == domain.HealthCritical {
			status = domain.ConnectionAttention
			checkErr = result.Message
		}
		if err := m.connections.UpdateHealth(ctx, conn.TenantID, conn.ID, result.Status, status, checkErr, checkedAt); err != nil {
			slog.Error("failed to update connection health", "connection", conn.ID, "error", err)
		}

		metrics.HealthChecksTotal.WithLabelValues(string(conn.Platform), string(result.Status)).Inc()
	}
	return nil
}

func (m *Manager) checkOne(ctx context.Context, conn *domain.Connection) (result domain.HealthCheckResult) {
	defer func() {
		if r := recover(); r != nil {
			result = domain.HealthCheckResult{
				Status:  domain.HealthCritical,
				Message: fmt.Sprintf("health check panicked: %v", r),
			}
		}
	}()

	c, err := m.GetConnector(conn.TenantID, conn.ID, conn.Platform)
	if err != nil {
		return domain.HealthCheckResult{Status: domain.HealthCritical, Message: err.Error()}
	}

	res, err := c.HealthCheck(ctx)
	if err != nil {
		return domain.HealthCheckResult{Status: domain.HealthCritical, Message: err.Error()}
	}
	return *res
}

// ManagerErrorCode buckets failures for legacy call sites that only have an
// error value in hand (health checks, ad-hoc refresh paths). New call sites
// should use the platform-aware classifier instead.
type ManagerErrorCode string

const (
	CodeRateLimited      ManagerErrorCode = "rate_limited"
	CodeServerError      ManagerErrorCode = "server_error"
	CodeTimeout          ManagerErrorCode = "timeout"
	CodeAuthFailed       ManagerErrorCode = "auth_failed"
	CodePermissionDenied ManagerErrorCode = "permission_denied"
	CodeValidationError  ManagerErrorCode = "validation_error"
	CodeUnknown          ManagerErrorCode = "unknown"
)

var statusPattern = regexp.MustCompile(`\b([1-5][0-9]{2})\b`)

// ClassifyError buckets an error by HTTP status, extracting a 3-digit status
// from the message when none is given explicitly.
func (m *Manager) ClassifyError(err error, status int) ManagerErrorCode {
	if err == nil && status == 0 {
		return CodeUnknown
	}

	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if status == 0 && msg != "" {
		if match := statusPattern.FindString(msg); match != "" {
			status, _ = strconv.Atoi(match)
		}
	}

	switch {
	case status == 429:
		return CodeRateLimited
	case status == 408 || status == 504:
		return CodeTimeout
	case status == 401:
		return CodeAuthFailed
	case status == 403:
		return CodePermissionDenied
	case status == 400 || status == 422:
		return CodeValidationError
	case status >= 500:
		return CodeServerError
	case strings.Contains(strings.ToLower(msg), "timeout"):
		return CodeTimeout
	default:
		return CodeUnknown
	}
}

// vaultTokenSource resolves the latest access token for a connection from the
// secret vault.
type vaultTokenSource struct {
	vault        *vault.Vault
	tenantID     string
	connectionID string
}

func (s *vaultTokenSource) Token(ctx context.Context) (string, error) {
	token, ok, err := s.vault.RetrieveSecret(ctx, s.tenantID, s.connectionID, domain.SecretAccessToken)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNoToken
	}
	return token, nil
}
