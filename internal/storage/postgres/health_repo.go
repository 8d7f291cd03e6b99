package postgres

import (
	"context"
	"fmt"

	"github.com/omnipost/publisher/internal/core/domain"
)

// HealthLogRepo implements storage.HealthLogRepository using PostgreSQL.
type HealthLogRepo struct {
	db *DB
}

func NewHealthLogRepo(db *DB) *HealthLogRepo {
	return &HealthLogRepo{db: db}
}

func (r *HealthLogRepo) Append(ctx context.Context, rec *domain.HealthCheckRecord) error {
	query := `
		INSERT INTO health_checks (connection_id, tenant_id, status, latency_ms, message, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ConnectionID,
		rec.TenantID,
		string(rec.Status),
		rec.LatencyMs,
		rec.Message,
		rec.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append health check: %w", err)
	}
	return nil
}
