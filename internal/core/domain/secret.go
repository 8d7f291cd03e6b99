package domain

import (
	"time"
)

// SecretType distinguishes the credential kinds stored per connection.
type SecretType string

const (
	SecretAccessToken   SecretType = "access_token"
	SecretRefreshToken  SecretType = "refresh_token"
	SecretAPIKey        SecretType = "api_key"
	SecretWebhookSecret SecretType = "webhook_secret"
)

// EncryptedSecret is the AEAD envelope produced by the vault. Decrypting with
// a mismatched auth tag must fail closed.
type EncryptedSecret struct {
	Ciphertext string // base64
	IV         string // hex
	AuthTag    string // hex
	Algorithm  string
	KeyID      string
	Timestamp  time.Time
}

// SecretRecord is one append-only row in secret storage. Retrieval always
// selects the most recently written row for a (tenant, connection, type) key,
// which is what makes lock-free key rotation safe.
type SecretRecord struct {
	ID           uint64
	TenantID     string
	ConnectionID string
	Type         SecretType
	Name         string
	Encrypted    EncryptedSecret
	RotatedAt    *time.Time
	CreatedAt    time.Time
}
