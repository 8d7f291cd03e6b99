package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/omnipost/publisher/internal/core/domain"
)

// SecretRepo implements storage.SecretRepository using PostgreSQL. Rows are
// append-only; the newest row per (tenant, connection, type) wins.
type SecretRepo struct {
	db *DB
}

func NewSecretRepo(db *DB) *SecretRepo {
	return &SecretRepo{db: db}
}

type secretRow struct {
	ID           uint64    `db:"id"`
	TenantID     string    `db:"tenant_id"`
	ConnectionID string    `db:"connection_id"`
	SecretType   string    `db:"secret_type"`
	Name         string    `db:"name"`
	Ciphertext   string    `db:"ciphertext"`
	IV           string    `db:"iv"`
	AuthTag      string    `db:"auth_tag"`
	Algorithm    string    `db:"algorithm"`
	KeyID        string    `db:"key_id"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r secretRow) toDomain() *domain.SecretRecord {
	return &domain.SecretRecord{
		ID:           r.ID,
		TenantID:     r.TenantID,
		ConnectionID: r.ConnectionID,
		Type:         domain.SecretType(r.SecretType),
		Name:         r.Name,
		Encrypted: domain.EncryptedSecret{
			Ciphertext: r.Ciphertext,
			IV:         r.IV,
			AuthTag:    r.AuthTag,
			Algorithm:  r.Algorithm,
			KeyID:      r.KeyID,
			Timestamp:  r.CreatedAt,
		},
		CreatedAt: r.CreatedAt,
	}
}

func (r *SecretRepo) Insert(ctx context.Context, rec *domain.SecretRecord) error {
	query := `
		INSERT INTO secrets (tenant_id, connection_id, secret_type, name, ciphertext, iv, auth_tag, algorithm, key_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.TenantID,
		rec.ConnectionID,
		string(rec.Type),
		rec.Name,
		rec.Encrypted.Ciphertext,
		rec.Encrypted.IV,
		rec.Encrypted.AuthTag,
		rec.Encrypted.Algorithm,
		rec.Encrypted.KeyID,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert secret: %w", err)
	}
	return nil
}

func (r *SecretRepo) GetLatest(
	ctx context.Context,
	tenantID, connectionID string,
	typ domain.SecretType,
) (*domain.SecretRecord, error) {
	query := `
		SELECT id, tenant_id, connection_id, secret_type, name, ciphertext, iv, auth_tag, algorithm, key_id, created_at
		FROM secrets
		WHERE tenant_id = $1 AND connection_id = $2 AND secret_type = $3
		ORDER BY id DESC
		LIMIT 1
	`
	var row secretRow
	err := r.db.GetContext(ctx, &row, query, tenantID, connectionID, string(typ))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}
	return row.toDomain(), nil
}

func (r *SecretRepo) DeleteOldGenerations(ctx context.Context, keep int) (int64, error) {
	query := `
		DELETE FROM secrets WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY tenant_id, connection_id, secret_type
					ORDER BY id DESC
				) AS rn
				FROM secrets
			) ranked
			WHERE rn > $1
		)
	`
	res, err := r.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old secret generations: %w", err)
	}
	return res.RowsAffected()
}
