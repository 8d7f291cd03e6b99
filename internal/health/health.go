// Package health provides system health monitoring and status reporting.
package health

import (
	"github.com/omnipost/publisher/internal/core/domain"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ComponentHealth is the state of one infrastructure dependency.
type ComponentHealth struct {
	Name   string       `json:"name"`
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// PlatformHealth summarizes outbound traffic against one platform.
type PlatformHealth struct {
	Platform         domain.Platform `json:"platform"`
	Status           string          `json:"status"`
	AvgLatencyMs     int64           `json:"avg_latency_ms"`
	RequestsLastHour int             `json:"requests_last_hour"`
	ThrottleCount    int             `json:"throttle_count"`
}

// Report is the full system health report.
type Report struct {
	SystemStatus SystemStatus               `json:"system_status"`
	Components   map[string]ComponentHealth `json:"components"`
	Platforms    map[string]PlatformHealth  `json:"platforms"`
	QueueDepth   int64                      `json:"queue_depth"`
	DeadLetters  int                        `json:"dead_letters"`
}
