package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/addongate/addongate/internal/config"
	"github.com/addongate/addongate/internal/model"
)

var (
	// ErrKeyNotFound is returned when the referenced key does not exist or
	// is already revoked (rotation of a dead key is rejected).
	ErrKeyNotFound = errors.New("api key not found")
	// ErrInvalidKey is returned when no stored record matches the candidate.
	ErrInvalidKey = errors.New("invalid api key")
)

const keyPrefix = "agk_"

// KeyStore owns the API key lifecycle: generation, verification, rotation
// with grace overlap, and revocation. All state lives in the config store so
// it survives restarts; plaintext key material is returned exactly once from
// Generate and Rotate and never persisted.
type KeyStore struct {
	store *config.Store
	now   func() time.Time
}

// NewKeyStore creates a KeyStore backed by the given store.
func NewKeyStore(store *config.Store) *KeyStore {
	return &KeyStore{store: store, now: time.Now}
}

// Generate creates a new active key with 256 bits of entropy, rendered as a
// URL-safe string. Only the salted hash is stored; the returned plaintext
// cannot be recovered later.
func (s *KeyStore) Generate(ctx context.Context, name, description string) (string, *model.APIKey, error) {
	plaintext, key, err := newKeyRecord(name, description, "")
	if err != nil {
		return "", nil, err
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return "", nil, fmt.Errorf("store api key: %w", err)
	}
	return plaintext, key, nil
}

// newKeyRecord builds a fresh active key record without persisting it.
func newKeyRecord(name, description, rotatedFrom string) (string, *model.APIKey, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("generate key material: %w", err)
	}
	plaintext := keyPrefix + base64.RawURLEncoding.EncodeToString(raw)

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", nil, fmt.Errorf("generate salt: %w", err)
	}

	key := &model.APIKey{
		ID:          KeyID(plaintext),
		SecretHash:  hashKey(hex.EncodeToString(salt), plaintext),
		Salt:        hex.EncodeToString(salt),
		Name:        name,
		Description: description,
		Status:      model.KeyStatusActive,
		RotatedFrom: rotatedFrom,
	}
	return plaintext, key, nil
}

// Verify checks the candidate plaintext against every non-revoked record and
// returns the matching record (active or grace) or ErrInvalidKey. Expired
// grace records are swept to revoked before matching, so grace expiry is
// enforced without a background timer. Comparison runs over the full record
// set in constant time per record, without short-circuiting on mismatch.
func (s *KeyStore) Verify(ctx context.Context, candidate string) (*model.APIKey, error) {
	if _, err := s.store.SweepExpiredGrace(ctx, s.now()); err != nil {
		return nil, err
	}

	keys, err := s.store.ListVerifiableAPIKeys(ctx)
	if err != nil {
		return nil, err
	}

	var matched *model.APIKey
	for i := range keys {
		computed := hashKey(keys[i].Salt, candidate)
		if subtle.ConstantTimeCompare([]byte(computed), []byte(keys[i].SecretHash)) == 1 && matched == nil {
			matched = &keys[i]
		}
	}
	if matched == nil {
		return nil, ErrInvalidKey
	}

	// Usage bookkeeping must not add latency to the request path.
	go s.store.TouchAPIKey(context.Background(), matched.ID) //nolint:errcheck

	return matched, nil
}

// Rotate marks the old key as grace until now+graceHours and returns a fresh
// active key. Zero grace hours revokes the old key immediately. Rotating an
// unknown or revoked key returns ErrKeyNotFound. The demotion and the
// successor insert commit in one transaction, so a failure never strands a
// demoted key without its replacement.
func (s *KeyStore) Rotate(ctx context.Context, oldID string, graceHours int) (string, *model.APIKey, error) {
	old, err := s.store.GetAPIKey(ctx, oldID)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return "", nil, ErrKeyNotFound
		}
		return "", nil, err
	}
	if old.Revoked() {
		return "", nil, ErrKeyNotFound
	}

	plaintext, key, err := newKeyRecord(old.Name, fmt.Sprintf("Rotated from %s", oldID), oldID)
	if err != nil {
		return "", nil, err
	}

	var graceExpires *time.Time
	if graceHours > 0 {
		t := s.now().Add(time.Duration(graceHours) * time.Hour)
		graceExpires = &t
	}
	if err := s.store.RotateAPIKey(ctx, oldID, graceExpires, key); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return "", nil, ErrKeyNotFound
		}
		return "", nil, err
	}
	return plaintext, key, nil
}

// Revoke marks a key revoked unconditionally. Idempotent: revoking an
// already-revoked key succeeds. Unknown IDs return ErrKeyNotFound.
func (s *KeyStore) Revoke(ctx context.Context, id string) error {
	if err := s.store.RevokeAPIKey(ctx, id); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return ErrKeyNotFound
		}
		return err
	}
	return nil
}

// List returns all key records, newest first. Hashes and salts are stripped;
// callers never see secret material.
func (s *KeyStore) List(ctx context.Context) ([]model.APIKey, error) {
	keys, err := s.store.ListAPIKeys(ctx)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i].SecretHash = ""
		keys[i].Salt = ""
	}
	return keys, nil
}

// CountByStatus returns the number of keys per status.
func (s *KeyStore) CountByStatus(ctx context.Context) (map[string]int, error) {
	return s.store.CountAPIKeysByStatus(ctx)
}

// KeyID derives the opaque record identifier from the key material. It is a
// truncated unsalted hash, so the same plaintext always maps to the same ID,
// and the ID reveals nothing about the plaintext.
func KeyID(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])[:16]
}

func hashKey(salt, plaintext string) string {
	h := sha256.Sum256([]byte(salt + plaintext))
	return hex.EncodeToString(h[:])
}
