package domain

import (
	"time"
)

// PauseReason is the user-facing explanation derived from a canonical error
// code when a connection is auto-paused. It is written into the connection's
// pause fields and the audit trail, not retained as its own entity.
type PauseReason struct {
	Code            ErrorCode
	Description     string
	RecoveryAction  string
	Timestamp       time.Time
	RequiresReauth  bool
	SuggestedScopes []string
}

type AuditAction string

const (
	AuditAutoPause AuditAction = "auto_pause"
	AuditResume    AuditAction = "resume"
)

// AuditEntry records a pause/resume transition for later inspection.
type AuditEntry struct {
	ConnectionID string
	TenantID     string
	Action       AuditAction
	Details      string
	Timestamp    time.Time
}
