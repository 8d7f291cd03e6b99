package domain

import (
	"time"
)

// Connection represents one tenant's link to one external platform account.
// Created on successful OAuth/API-key authentication; mutated by health
// checks, publish failures (via auto-pause), and token refresh. Never
// hard-deleted here; deletion belongs to account management.
type Connection struct {
	ID               string
	TenantID         string
	Platform         Platform
	Status           ConnectionStatus
	HealthStatus     HealthStatus
	LastHealthCheck  *time.Time
	HealthCheckError string
	PauseReason      *ErrorCode
	PauseDescription string
	PausedAt         *time.Time
	TokenExpiresAt   *time.Time
	LastTokenRefresh *time.Time
	Scopes           []string
	Metadata         map[string]string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type ConnectionStatus string

const (
	ConnectionActive    ConnectionStatus = "active"
	ConnectionAttention ConnectionStatus = "attention"
	ConnectionPaused    ConnectionStatus = "paused"
	ConnectionRevoked   ConnectionStatus = "revoked"
	ConnectionInactive  ConnectionStatus = "inactive"
)

type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// HealthCheckRecord is one persisted health-check observation.
type HealthCheckRecord struct {
	ConnectionID string
	TenantID     string
	Status       HealthStatus
	LatencyMs    int64
	Message      string
	CheckedAt    time.Time
}
