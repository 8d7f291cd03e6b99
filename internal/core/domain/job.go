package domain

import (
	"time"
)

// JobType distinguishes work executed by the queue workers.
type JobType string

const (
	JobPublish      JobType = "publish"
	JobTokenRefresh JobType = "token_refresh"
)

// JobStatus enumerates job lifecycle states persisted in Postgres.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// PublishJob is one unit of queued work. The ID doubles as the idempotency
// key: redelivery of the same key never executes a second publish.
type PublishJob struct {
	ID           string // idempotency key
	Type         JobType
	TenantID     string
	ConnectionID string
	Platform     Platform
	AccountID    string
	Title        string
	Body         string
	MediaURLs    []string
	Status       JobStatus
	Attempts     int
	MaxAttempts  int
	LastError    string
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
