// Package vault protects credential material with authenticated encryption.
// Rows are append-only and reads always take the latest row, so key rotation
// needs no locking: the latest successful write wins.
package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/omnipost/publisher/internal/core/domain"
	"github.com/omnipost/publisher/internal/metrics"
	"github.com/omnipost/publisher/internal/storage"
)

const (
	// Algorithm is fixed for the life of every stored record.
	Algorithm = "aes-256-gcm"

	kdfIterations = 100_000
	kdfKeyLen     = 32
	kdfSalt       = "omnipost-vault-kdf-v1"
)

var (
	ErrAlgorithmMismatch = errors.New("vault: secret algorithm does not match configured cipher")
	ErrDecryptFailed     = errors.New("vault: decryption failed")
)

// Vault encrypts, decrypts, and stores credential secrets.
type Vault struct {
	aead    cipher.AEAD
	keyID   string
	secrets storage.SecretRepository
}

// New derives the symmetric key from the master secret via PBKDF2 and builds
// the AEAD cipher once. The key is never derived from the plaintext.
func New(masterSecret, keyID string, secrets storage.SecretRepository) (*Vault, error) {
	if masterSecret == "" {
		return nil, errors.New("vault: master secret is required")
	}
	if keyID == "" {
		keyID = "v1"
	}

	key := pbkdf2.Key([]byte(masterSecret), []byte(kdfSalt), kdfIterations, kdfKeyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to init GCM: %w", err)
	}

	return &Vault{aead: aead, keyID: keyID, secrets: secrets}, nil
}

// Encrypt seals plaintext with a fresh random IV (never reused) and captures
// the authentication tag alongside ciphertext, IV, algorithm, and key id.
func (v *Vault) Encrypt(plaintext string) (domain.EncryptedSecret, error) {
	iv := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		metrics.VaultOperationsTotal.WithLabelValues("encrypt", "error").Inc()
		return domain.EncryptedSecret{}, fmt.Errorf("vault: failed to generate IV: %w", err)
	}

	sealed := v.aead.Seal(nil, iv, []byte(plaintext), nil)
	tagStart := len(sealed) - v.aead.Overhead()

	metrics.VaultOperationsTotal.WithLabelValues("encrypt", "ok").Inc()
	return domain.EncryptedSecret{
		Ciphertext: base64.StdEncoding.EncodeToString(sealed[:tagStart]),
		IV:         hex.EncodeToString(iv),
		AuthTag:    hex.EncodeToString(sealed[tagStart:]),
		Algorithm:  Algorithm,
		KeyID:      v.keyID,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// Decrypt opens a sealed secret. Decryption and tag verification happen in
// the same operation: any tag mismatch fails closed, never returning partial
// or unauthenticated plaintext.
func (v *Vault) Decrypt(sec domain.EncryptedSecret) (string, error) {
	if sec.Algorithm != Algorithm {
		metrics.VaultOperationsTotal.WithLabelValues("decrypt", "error").Inc()
		return "", ErrAlgorithmMismatch
	}

	ciphertext, err := base64.StdEncoding.DecodeString(sec.Ciphertext)
	if err != nil {
		metrics.VaultOperationsTotal.WithLabelValues("decrypt", "error").Inc()
		return "", fmt.Errorf("vault: invalid ciphertext encoding: %w", err)
	}
	iv, err := hex.DecodeString(sec.IV)
	if err != nil {
		metrics.VaultOperationsTotal.WithLabelValues("decrypt", "error").Inc()
		return "", fmt.Errorf("vault: invalid IV encoding: %w", err)
	}
	if len(iv) != v.aead.NonceSize() {
		metrics.VaultOperationsTotal.WithLabelValues("decrypt", "error").Inc()
		return "", fmt.Errorf("vault: invalid IV length %d", len(iv))
	}
	tag, err := hex.DecodeString(sec.AuthTag)
	if err != nil {
		metrics.VaultOperationsTotal.WithLabelValues("decrypt", "error").Inc()
		return "", fmt.Errorf("vault: invalid auth tag encoding: %w", err)
	}

	plaintext, err := v.aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		metrics.VaultOperationsTotal.WithLabelValues("decrypt", "error").Inc()
		return "", ErrDecryptFailed
	}

	metrics.VaultOperationsTotal.WithLabelValues("decrypt", "ok").Inc()
	return string(plaintext), nil
}

// StoreSecret encrypts value and appends a new row. Existing rows are never
// overwritten in place; retrieval selects the most recent row for the key.
func (v *Vault) StoreSecret(
	ctx context.Context,
	tenantID, connectionID string,
	typ domain.SecretType,
	value string,
) error {
	enc, err := v.Encrypt(value)
	if err != nil {
		return err
	}

	rec := &domain.SecretRecord{
		TenantID:     tenantID,
		ConnectionID: connectionID,
		Type:         typ,
		Name:         string(typ),
		Encrypted:    enc,
		CreatedAt:    enc.Timestamp,
	}
	if err := v.secrets.Insert(ctx, rec); err != nil {
		return fmt.Errorf("vault: failed to store secret: %w", err)
	}
	return nil
}

// RetrieveSecret returns the latest secret for the key. Absence is not an
// error: ok=false tells the caller the connection cannot currently
// authenticate, which should drive the reauthentication flow. Decryption
// failures (corrupt or rotated-away rows) are logged and reported the same
// way rather than crashing the caller.
func (v *Vault) RetrieveSecret(
	ctx context.Context,
	tenantID, connectionID string,
	typ domain.SecretType,
) (string, bool, error) {
	rec, err := v.secrets.GetLatest(ctx, tenantID, connectionID, typ)
	if err != nil {
		return "", false, fmt.Errorf("vault: failed to load secret: %w", err)
	}
	if rec == nil {
		return "", false, nil
	}

	plaintext, err := v.Decrypt(rec.Encrypted)
	if err != nil {
		slog.Warn("vault: failed to decrypt stored secret",
			"tenant", tenantID,
			"connection", connectionID,
			"type", typ,
			"key_id", rec.Encrypted.KeyID,
			"error", err,
		)
		return "", false, nil
	}
	return plaintext, true, nil
}

// HealthCheck round-trips a synthetic value through encrypt and decrypt.
func (v *Vault) HealthCheck() error {
	const probe = "vault-health-probe"
	enc, err := v.Encrypt(probe)
	if err != nil {
		return err
	}
	dec, err := v.Decrypt(enc)
	if err != nil {
		return err
	}
	if dec != probe {
		return errors.New("vault: round-trip mismatch")
	}
	return nil
}
