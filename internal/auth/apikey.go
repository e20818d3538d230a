// Package auth provides bearer API-key authentication for the HTTP API.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	apiKeyBytes  = 32 // 256-bit keys
	apiKeyPrefix = "vs_"
)

// ErrKeyNotFound is returned when deleting an unknown key.
var ErrKeyNotFound = errors.New("auth: key not found")

// APIKey is the stored representation of an API key (no raw key).
type APIKey struct {
	ID         int64      `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	Owner      string     `db:"owner" json:"owner"`
	KeyPrefix  string     `db:"key_prefix" json:"key_prefix"` // first 8 chars for identification
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
}

// APIKeyStore manages API keys.
type APIKeyStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewAPIKeyStore creates an API key store.
func NewAPIKeyStore(db *sqlx.DB) *APIKeyStore {
	return &APIKeyStore{db: db, now: time.Now}
}

// Create generates a new API key with the given name for owner.
// Returns the raw key (shown once to user) and the stored record.
func (s *APIKeyStore) Create(ctx context.Context, name, owner string) (string, *APIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, fmt.Errorf("key name is required")
	}

	raw, err := generateAPIKey()
	if err != nil {
		return "", nil, fmt.Errorf("generating key: %w", err)
	}

	key := &APIKey{
		Name:      name,
		Owner:     strings.TrimSpace(owner),
		KeyPrefix: raw[:8],
		CreatedAt: s.now().UTC().Truncate(time.Second),
	}

	err = s.db.QueryRowxContext(ctx, s.db.Rebind(
		"INSERT INTO api_keys (name, owner, key_prefix, key_hash, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id"),
		key.Name, key.Owner, key.KeyPrefix, hashAPIKey(raw), key.CreatedAt,
	).Scan(&key.ID)
	if err != nil {
		return "", nil, fmt.Errorf("storing key: %w", err)
	}

	return raw, key, nil
}

// List returns all API keys (without the raw key), newest first.
func (s *APIKeyStore) List(ctx context.Context) ([]APIKey, error) {
	var keys []APIKey
	err := s.db.SelectContext(ctx, &keys,
		"SELECT id, name, owner, key_prefix, created_at, last_used_at FROM api_keys ORDER BY created_at DESC, id DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("querying keys: %w", err)
	}
	return keys, nil
}

// Delete removes an API key by ID.
func (s *APIKeyStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM api_keys WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("deleting key: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("key %d: %w", id, ErrKeyNotFound)
	}

	return nil
}

// Validate checks a raw API key against stored hashes and updates
// last_used_at. It returns the key owner, or "" when the key is unknown.
func (s *APIKeyStore) Validate(ctx context.Context, rawKey string) (string, error) {
	var owner string
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(
		"UPDATE api_keys SET last_used_at = ? WHERE key_hash = ? RETURNING owner"),
		s.now().UTC(), hashAPIKey(rawKey),
	).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("validating key: %w", err)
	}
	if owner == "" {
		owner = "anonymous"
	}
	return owner, nil
}

func generateAPIKey() (string, error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(b), nil
}

func hashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
