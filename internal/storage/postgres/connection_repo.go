package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/omnipost/publisher/internal/core/domain"
)

// ConnectionRepo implements storage.ConnectionRepository using PostgreSQL.
type ConnectionRepo struct {
	db *DB
}

func NewConnectionRepo(db *DB) *ConnectionRepo {
	return &ConnectionRepo{db: db}
}

type connectionRow struct {
	ID               string         `db:"id"`
	TenantID         string         `db:"tenant_id"`
	Platform         string         `db:"platform"`
	Status           string         `db:"status"`
	HealthStatus     string         `db:"health_status"`
	LastHealthCheck  *time.Time     `db:"last_health_check"`
	HealthCheckError string         `db:"health_check_error"`
	PauseReason      *string        `db:"pause_reason"`
	PauseDescription string         `db:"pause_description"`
	PausedAt         *time.Time     `db:"paused_at"`
	TokenExpiresAt   *time.Time     `db:"token_expires_at"`
	LastTokenRefresh *time.Time     `db:"last_token_refresh"`
	Scopes           pq.StringArray `db:"scopes"`
	Metadata         []byte         `db:"metadata"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r connectionRow) toDomain() (*domain.Connection, error) {
	conn := &domain.Connection{
		ID:               r.ID,
		TenantID:         r.TenantID,
		Platform:         domain.Platform(r.Platform),
		Status:           domain.ConnectionStatus(r.Status),
		HealthStatus:     domain.HealthStatus(r.HealthStatus),
		LastHealthCheck:  r.LastHealthCheck,
		HealthCheckError: r.HealthCheckError,
		PauseDescription: r.PauseDescription,
		PausedAt:         r.PausedAt,
		TokenExpiresAt:   r.TokenExpiresAt,
		LastTokenRefresh: r.LastTokenRefresh,
		Scopes:           r.Scopes,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.PauseReason != nil {
		code := domain.ErrorCode(*r.PauseReason)
		conn.PauseReason = &code
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &conn.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode connection metadata: %w", err)
		}
	}
	return conn, nil
}

const connectionColumns = `id, tenant_id, platform, status, health_status, last_health_check,
	health_check_error, pause_reason, pause_description, paused_at, token_expires_at,
	last_token_refresh, scopes, metadata, created_at, updated_at`

func (r *ConnectionRepo) Save(ctx context.Context, conn *domain.Connection) error {
	metadata, err := json.Marshal(conn.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode connection metadata: %w", err)
	}
	if conn.Metadata == nil {
		metadata = []byte("{}")
	}

	query := `
		INSERT INTO connections (id, tenant_id, platform, status, health_status, scopes, metadata, token_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.ExecContext(ctx, query,
		conn.ID,
		conn.TenantID,
		string(conn.Platform),
		string(conn.Status),
		string(conn.HealthStatus),
		pq.StringArray(conn.Scopes),
		metadata,
		conn.TokenExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}
	return nil
}

func (r *ConnectionRepo) Get(ctx context.Context, tenantID, connectionID string) (*domain.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE tenant_id = $1 AND id = $2`

	var row connectionRow
	err := r.db.GetContext(ctx, &row, query, tenantID, connectionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return row.toDomain()
}

func (r *ConnectionRepo) ListActive(ctx context.Context) ([]*domain.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE status = 'active' ORDER BY created_at`
	return r.list(ctx, query)
}

func (r *ConnectionRepo) ListExpiringTokens(ctx context.Context, deadline time.Time) ([]*domain.Connection, error) {
	query := `
		SELECT ` + connectionColumns + ` FROM connections
		WHERE status = 'active'
		  AND token_expires_at IS NOT NULL
		  AND token_expires_at > now()
		  AND token_expires_at <= $1
		ORDER BY token_expires_at
	`
	return r.list(ctx, query, deadline)
}

func (r *ConnectionRepo) ListPaused(ctx context.Context, tenantID string) ([]*domain.Connection, error) {
	query := `
		SELECT ` + connectionColumns + ` FROM connections
		WHERE tenant_id = $1 AND status IN ('attention', 'paused', 'revoked')
		ORDER BY paused_at DESC NULLS LAST
	`
	return r.list(ctx, query, tenantID)
}

func (r *ConnectionRepo) list(ctx context.Context, query string, args ...any) ([]*domain.Connection, error) {
	var rows []connectionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	conns := make([]*domain.Connection, 0, len(rows))
	for _, row := range rows {
		conn, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

func (r *ConnectionRepo) SetPause(
	ctx context.Context,
	tenantID, connectionID string,
	status domain.ConnectionStatus,
	reason domain.PauseReason,
) error {
	query := `
		UPDATE connections SET
			status = $3,
			health_status = 'critical',
			pause_reason = $4,
			pause_description = $5,
			paused_at = $6,
			updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`
	_, err := r.db.ExecContext(ctx, query,
		tenantID, connectionID,
		string(status),
		string(reason.Code),
		reason.Description,
		reason.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to pause connection: %w", err)
	}
	return nil
}

func (r *ConnectionRepo) ClearPause(ctx context.Context, tenantID, connectionID string) error {
	query := `
		UPDATE connections SET
			status = 'active',
			health_status = 'healthy',
			health_check_error = '',
			pause_reason = NULL,
			pause_description = '',
			paused_at = NULL,
			updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`
	if _, err := r.db.ExecContext(ctx, query, tenantID, connectionID); err != nil {
		return fmt.Errorf("failed to clear pause: %w", err)
	}
	return nil
}

func (r *ConnectionRepo) UpdateHealth(
	ctx context.Context,
	tenantID, connectionID string,
	health domain.HealthStatus,
	status domain.ConnectionStatus,
	checkErr string,
	checkedAt time.Time,
) error {
	query := `
		UPDATE connections SET
			health_status = $3,
			status = $4,
			health_check_error = $5,
			last_health_check = $6,
			updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`
	_, err := r.db.ExecContext(ctx, query,
		tenantID, connectionID,
		string(health), string(status), checkErr, checkedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update connection health: %w", err)
	}
	return nil
}

func (r *ConnectionRepo) UpdateTokenRefresh(ctx context.Context, tenantID, connectionID string, expiresAt time.Time) error {
	query := `
		UPDATE connections SET
			token_expires_at = $3,
			last_token_refresh = now(),
			updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`
	if _, err := r.db.ExecContext(ctx, query, tenantID, connectionID, expiresAt); err != nil {
		return fmt.Errorf("failed to stamp token refresh: %w", err)
	}
	return nil
}
