// Package storage defines the persistence boundaries of the engine.
package storage

import (
	"context"
	"time"

	"github.com/omnipost/publisher/internal/core/domain"
)

// ConnectionRepository handles connection record persistence.
type ConnectionRepository interface {
	// Save inserts a new connection record
	Save(ctx context.Context, conn *domain.Connection) error

	// Get retrieves a connection; returns (nil, nil) when absent
	Get(ctx context.Context, tenantID, connectionID string) (*domain.Connection, error)

	// ListActive retrieves all connections with status=active
	ListActive(ctx context.Context) ([]*domain.Connection, error)

	// ListExpiringTokens retrieves active connections whose token expires
	// before the deadline but has not expired yet
	ListExpiringTokens(ctx context.Context, deadline time.Time) ([]*domain.Connection, error)

	// ListPaused retrieves a tenant's connections in attention/paused/revoked,
	// most recently paused first
	ListPaused(ctx context.Context, tenantID string) ([]*domain.Connection, error)

	// SetPause writes the paused status, critical health, and pause fields
	SetPause(
		ctx context.Context,
		tenantID, connectionID string,
		status domain.ConnectionStatus,
		reason domain.PauseReason,
	) error

	// ClearPause restores active/healthy and clears all pause fields
	ClearPause(ctx context.Context, tenantID, connectionID string) error

	// UpdateHealth records a health-check outcome on the connection
	UpdateHealth(
		ctx context.Context,
		tenantID, connectionID string,
		health domain.HealthStatus,
		status domain.ConnectionStatus,
		checkErr string,
		checkedAt time.Time,
	) error

	// UpdateTokenRefresh stamps a successful token refresh
	UpdateTokenRefresh(ctx context.Context, tenantID, connectionID string, expiresAt time.Time) error
}

// SecretRepository is append-only: writers always insert, readers always take
// the most recent row for a key. That discipline is what makes concurrent
// token refreshes safe without locks.
type SecretRepository interface {
	// Insert appends a new secret row (never overwrites)
	Insert(ctx context.Context, rec *domain.SecretRecord) error

	// GetLatest retrieves the most recently written row for the key;
	// returns (nil, nil) when absent
	GetLatest(
		ctx context.Context,
		tenantID, connectionID string,
		typ domain.SecretType,
	) (*domain.SecretRecord, error)

	// DeleteOldGenerations removes rows older than the newest keep rows per
	// (tenant, connection, type) key, bounding append-only growth
	DeleteOldGenerations(ctx context.Context, keep int) (int64, error)
}

// AuditRepository records pause/resume transitions.
type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
	ListByConnection(ctx context.Context, connectionID string, limit int) ([]*domain.AuditEntry, error)
}

// JobRepository persists publish/refresh jobs for dead-letter inspection.
type JobRepository interface {
	// Create inserts a job; when a job with the same ID (idempotency key)
	// already exists it returns that job with reused=true
	Create(ctx context.Context, job *domain.PublishJob) (existing *domain.PublishJob, reused bool, err error)

	// Get retrieves a job; returns (nil, nil) when absent
	Get(ctx context.Context, jobID string) (*domain.PublishJob, error)

	MarkInProgress(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, lastError string) error

	// RecordAttempt bumps the attempt counter and stores the failure
	RecordAttempt(ctx context.Context, jobID string, attempts int, lastError string) error

	// DeleteCompletedBefore prunes completed jobs past the retention window.
	// Failed jobs are never pruned here; they are kept for inspection.
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// HealthLogRepository persists per-connection health-check observations.
type HealthLogRepository interface {
	Append(ctx context.Context, rec *domain.HealthCheckRecord) error
}
