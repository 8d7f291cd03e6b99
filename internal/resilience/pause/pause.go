// Package pause implements the auto-pause state machine over connection
// status: active → attention (reauth required) or active → paused, and back
// to active only via an explicit resume.
package pause

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/omnipost/publisher/internal/core/domain"
	"github.com/omnipost/publisher/internal/metrics"
	"github.com/omnipost/publisher/internal/resilience/taxonomy"
	"github.com/omnipost/publisher/internal/storage"
)

// Manager transitions connections between operational states and keeps the
// audit trail.
type Manager struct {
	connections storage.ConnectionRepository
	audits      storage.AuditRepository
}

func NewManager(connections storage.ConnectionRepository, audits storage.AuditRepository) *Manager {
	return &Manager{connections: connections, audits: audits}
}

// AutoPauseConnection halts further operations on a connection because of a
// canonical error code: status moves to attention when the code requires
// reauthentication, otherwise to paused; health drops to critical; the pause
// fields are stamped and an audit row is written.
func (m *Manager) AutoPauseConnection(
	ctx context.Context,
	tenantID, connectionID string,
	code domain.ErrorCode,
) (domain.PauseReason, error) {
	reason := BuildPauseReason(code)

	status := domain.ConnectionPaused
	if reason.RequiresReauth {
		status = domain.ConnectionAttention
	}

	if err := m.connections.SetPause(ctx, tenantID, connectionID, status, reason); err != nil {
		return reason, fmt.Errorf("failed to pause connection: %w", err)
	}

	entry := &domain.AuditEntry{
		ConnectionID: connectionID,
		TenantID:     tenantID,
		Action:       domain.AuditAutoPause,
		Details:      fmt.Sprintf("code=%s description=%q action=%q", code, reason.Description, reason.RecoveryAction),
		Timestamp:    reason.Timestamp,
	}
	if err := m.audits.Append(ctx, entry); err != nil {
		return reason, fmt.Errorf("failed to write audit entry: %w", err)
	}

	metrics.ConnectionPausesTotal.WithLabelValues(string(code), string(status)).Inc()
	slog.Warn("auto-paused connection",
		"tenant", tenantID,
		"connection", connectionID,
		"code", code,
		"status", status,
		"requires_reauth", reason.RequiresReauth,
	)

	return reason, nil
}

// ResumeConnection restores active/healthy, clears all pause fields, and
// writes the corresponding audit row.
func (m *Manager) ResumeConnection(ctx context.Context, tenantID, connectionID string) error {
	if err := m.connections.ClearPause(ctx, tenantID, connectionID); err != nil {
		return fmt.Errorf("failed to resume connection: %w", err)
	}

	entry := &domain.AuditEntry{
		ConnectionID: connectionID,
		TenantID:     tenantID,
		Action:       domain.AuditResume,
		Details:      "connection resumed",
		Timestamp:    time.Now().UTC(),
	}
	if err := m.audits.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	metrics.ConnectionResumesTotal.Inc()
	slog.Info("resumed connection", "tenant", tenantID, "connection", connectionID)
	return nil
}

// PausedConnections returns a tenant's connections currently needing action,
// most recently paused first.
func (m *Manager) PausedConnections(ctx context.Context, tenantID string) ([]*domain.Connection, error) {
	return m.connections.ListPaused(ctx, tenantID)
}

// BuildPauseReason is a pure mapping from a canonical error code to the
// user-facing description and a single concrete recovery action. Codes
// outside the auth/permission/app family get a generic reason.
func BuildPauseReason(code domain.ErrorCode) domain.PauseReason {
	reason := domain.PauseReason{
		Code:           code,
		Timestamp:      time.Now().UTC(),
		RequiresReauth: taxonomy.RequiresReauth(code),
	}

	switch code {
	case domain.ErrAuthExpired:
		reason.Description = "Your login session for this platform has expired."
		reason.RecoveryAction = "Click Reconnect to refresh your credentials."
	case domain.ErrAuthInvalid:
		reason.Description = "The platform no longer accepts our credentials for this account."
		reason.RecoveryAction = "Click Reconnect to refresh your credentials."
	case domain.ErrAuthRevoked:
		reason.Description = "Access to this account was revoked on the platform side."
		reason.RecoveryAction = "Click Reconnect to grant access again."
	case domain.ErrPermissionInsufficient, domain.ErrPermissionChanged:
		reason.Description = "We no longer have permission to publish to this account."
		reason.RecoveryAction = "Click Reconnect and grant publishing access."
	case domain.ErrScopeMissing:
		reason.Description = "A permission required for publishing was not granted."
		reason.RecoveryAction = "Click Reconnect and approve all requested permissions."
		reason.SuggestedScopes = []string{"publish_content"}
	case domain.ErrAppDeauthorized:
		reason.Description = "The platform has deauthorized our publishing application."
		reason.RecoveryAction = "Our team has been notified; no action is needed from you."
	case domain.ErrAppSuspended:
		reason.Description = "The platform has suspended our publishing application."
		reason.RecoveryAction = "Our team has been notified; no action is needed from you."
	default:
		reason.Description = "Publishing to this account was paused after repeated failures."
		reason.RecoveryAction = "Contact support if this persists."
	}

	return reason
}
