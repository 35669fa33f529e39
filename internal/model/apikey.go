package model

import "time"

// Key status lifecycle: active keys verify normally, grace keys are
// rotated-out predecessors that keep working until their grace window ends,
// revoked keys never verify again but are retained for audit.
const (
	KeyStatusActive  = "active"
	KeyStatusGrace   = "grace"
	KeyStatusRevoked = "revoked"
)

// APIKey represents a gateway API key. The raw key is never stored; only a
// salted SHA-256 hash is persisted, plus a short hash-derived ID used to
// reference the key in management operations.
type APIKey struct {
	ID             string     `json:"id" db:"id"`
	SecretHash     string     `json:"-" db:"secret_hash"` // salted SHA-256, never expose
	Salt           string     `json:"-" db:"salt"`
	Name           string     `json:"name" db:"name"`
	Description    string     `json:"description" db:"description"`
	Status         string     `json:"status" db:"status"`
	RotatedFrom    string     `json:"rotated_from,omitempty" db:"rotated_from"`
	UsageCount     int64      `json:"usage_count" db:"usage_count"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	GraceExpiresAt *time.Time `json:"grace_expires_at,omitempty" db:"grace_expires_at"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// Revoked reports whether the key is permanently unusable.
func (k *APIKey) Revoked() bool {
	return k.Status == KeyStatusRevoked
}
