package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/omnipost/publisher/internal/core/domain"
)

// AuditRepo implements storage.AuditRepository using PostgreSQL.
type AuditRepo struct {
	db *DB
}

func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

type auditRow struct {
	ConnectionID string    `db:"connection_id"`
	TenantID     string    `db:"tenant_id"`
	Action       string    `db:"action"`
	Details      string    `db:"details"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r *AuditRepo) Append(ctx context.Context, entry *domain.AuditEntry) error {
	query := `
		INSERT INTO audit_log (connection_id, tenant_id, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ConnectionID,
		entry.TenantID,
		string(entry.Action),
		entry.Details,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepo) ListByConnection(ctx context.Context, connectionID string, limit int) ([]*domain.AuditEntry, error) {
	query := `
		SELECT connection_id, tenant_id, action, details, created_at
		FROM audit_log
		WHERE connection_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, query, connectionID, limit); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}

	entries := make([]*domain.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, &domain.AuditEntry{
			ConnectionID: row.ConnectionID,
			TenantID:     row.TenantID,
			Action:       domain.AuditAction(row.Action),
			Details:      row.Details,
			Timestamp:    row.CreatedAt,
		})
	}
	return entries, nil
}
