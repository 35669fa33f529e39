package config

import (
	"context"
	"testing"
	"time"

	"github.com/addongate/addongate/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("") // in-memory
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertKey(t *testing.T, s *Store, id, status string) *model.APIKey {
	t.Helper()
	key := &model.APIKey{
		ID:         id,
		SecretHash: "hash-" + id,
		Salt:       "salt-" + id,
		Name:       "key " + id,
		Status:     status,
	}
	if err := s.CreateAPIKey(context.Background(), key); err != nil {
		t.Fatalf("CreateAPIKey %s: %v", id, err)
	}
	return key
}

func TestAPIKeyCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key := insertKey(t, s, "abc123", model.KeyStatusActive)
	if key.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be populated on insert")
	}

	// GetAPIKey
	got, err := s.GetAPIKey(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if got.Name != "key abc123" {
		t.Errorf("got name %q, want %q", got.Name, "key abc123")
	}
	if got.Status != model.KeyStatusActive {
		t.Errorf("got status %q, want active", got.Status)
	}

	// Unknown ID
	if _, err := s.GetAPIKey(ctx, "nope"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// ListAPIKeys
	list, err := s.ListAPIKeys(ctx)
	if err != nil {
		t.Fatalf("ListAPIKeys: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("got %d keys, want 1", len(list))
	}

	// TouchAPIKey
	if err := s.TouchAPIKey(ctx, "abc123"); err != nil {
		t.Fatalf("TouchAPIKey: %v", err)
	}
	got, _ = s.GetAPIKey(ctx, "abc123")
	if got.UsageCount != 1 {
		t.Errorf("got usage count %d, want 1", got.UsageCount)
	}
	if got.LastUsedAt == nil {
		t.Error("expected last_used_at to be set")
	}

	// Revoke
	if err := s.RevokeAPIKey(ctx, "abc123"); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	got, _ = s.GetAPIKey(ctx, "abc123")
	if got.Status != model.KeyStatusRevoked {
		t.Errorf("got status %q, want revoked", got.Status)
	}

	// Revoking again is idempotent, unknown IDs are not
	if err := s.RevokeAPIKey(ctx, "abc123"); err != nil {
		t.Errorf("second revoke: %v", err)
	}
	if err := s.RevokeAPIKey(ctx, "nope"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for unknown ID, got %v", err)
	}
}

func TestListVerifiableAPIKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertKey(t, s, "active1", model.KeyStatusActive)
	insertKey(t, s, "grace1", model.KeyStatusGrace)
	insertKey(t, s, "revoked1", model.KeyStatusRevoked)

	keys, err := s.ListVerifiableAPIKeys(ctx)
	if err != nil {
		t.Fatalf("ListVerifiableAPIKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("got %d verifiable keys, want 2", len(keys))
	}
	for _, k := range keys {
		if k.Status == model.KeyStatusRevoked {
			t.Errorf("revoked key %s returned as verifiable", k.ID)
		}
	}
}

func TestMarkAPIKeyGrace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertKey(t, s, "rotating", model.KeyStatusActive)

	expiry := time.Now().Add(24 * time.Hour).UTC()
	if err := s.MarkAPIKeyGrace(ctx, "rotating", expiry); err != nil {
		t.Fatalf("MarkAPIKeyGrace: %v", err)
	}

	got, err := s.GetAPIKey(ctx, "rotating")
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if got.Status != model.KeyStatusGrace {
		t.Errorf("got status %q, want grace", got.Status)
	}
	if got.GraceExpiresAt == nil {
		t.Fatal("expected grace_expires_at to be set")
	}

	if err := s.MarkAPIKeyGrace(ctx, "nope", expiry); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for unknown ID, got %v", err)
	}
}

func TestRotateAPIKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertKey(t, s, "old1", model.KeyStatusActive)
	expiry := time.Now().Add(24 * time.Hour).UTC()
	successor := &model.APIKey{
		ID:          "new1",
		SecretHash:  "hash-new1",
		Salt:        "salt-new1",
		Name:        "key old1",
		Status:      model.KeyStatusActive,
		RotatedFrom: "old1",
	}
	if err := s.RotateAPIKey(ctx, "old1", &expiry, successor); err != nil {
		t.Fatalf("RotateAPIKey: %v", err)
	}

	old, err := s.GetAPIKey(ctx, "old1")
	if err != nil {
		t.Fatalf("GetAPIKey old1: %v", err)
	}
	if old.Status != model.KeyStatusGrace {
		t.Errorf("old key status %q, want grace", old.Status)
	}
	if old.GraceExpiresAt == nil {
		t.Error("expected grace_expires_at set on old key")
	}
	if _, err := s.GetAPIKey(ctx, "new1"); err != nil {
		t.Fatalf("GetAPIKey new1: %v", err)
	}

	// Nil expiry revokes the old key outright.
	insertKey(t, s, "old2", model.KeyStatusActive)
	successor2 := &model.APIKey{
		ID: "new2", SecretHash: "h", Salt: "s",
		Status: model.KeyStatusActive, RotatedFrom: "old2",
	}
	if err := s.RotateAPIKey(ctx, "old2", nil, successor2); err != nil {
		t.Fatalf("RotateAPIKey zero grace: %v", err)
	}
	old, _ = s.GetAPIKey(ctx, "old2")
	if old.Status != model.KeyStatusRevoked {
		t.Errorf("old key status %q, want revoked", old.Status)
	}
}

func TestRotateAPIKeyAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// An unknown old ID fails the demotion, and the transaction must also
	// discard the successor insert: a rotation never half-applies.
	successor := &model.APIKey{
		ID: "orphan", SecretHash: "h", Salt: "s",
		Status: model.KeyStatusActive, RotatedFrom: "nope",
	}
	expiry := time.Now().Add(time.Hour).UTC()
	if err := s.RotateAPIKey(ctx, "nope", &expiry, successor); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetAPIKey(ctx, "orphan"); err != ErrNotFound {
		t.Errorf("successor survived a failed rotation: %v", err)
	}
}

func TestSweepExpiredGrace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	insertKey(t, s, "expired", model.KeyStatusGrace)
	insertKey(t, s, "pending", model.KeyStatusGrace)
	insertKey(t, s, "live", model.KeyStatusActive)

	if err := s.MarkAPIKeyGrace(ctx, "expired", now.Add(-time.Minute)); err != nil {
		t.Fatalf("MarkAPIKeyGrace expired: %v", err)
	}
	if err := s.MarkAPIKeyGrace(ctx, "pending", now.Add(time.Hour)); err != nil {
		t.Fatalf("MarkAPIKeyGrace pending: %v", err)
	}

	n, err := s.SweepExpiredGrace(ctx, now)
	if err != nil {
		t.Fatalf("SweepExpiredGrace: %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d keys, want 1", n)
	}

	got, _ := s.GetAPIKey(ctx, "expired")
	if got.Status != model.KeyStatusRevoked {
		t.Errorf("expired key status %q, want revoked", got.Status)
	}
	if got.GraceExpiresAt != nil {
		t.Error("expected grace_expires_at cleared on sweep")
	}

	got, _ = s.GetAPIKey(ctx, "pending")
	if got.Status != model.KeyStatusGrace {
		t.Errorf("pending key status %q, want grace", got.Status)
	}
	got, _ = s.GetAPIKey(ctx, "live")
	if got.Status != model.KeyStatusActive {
		t.Errorf("live key status %q, want active", got.Status)
	}
}

func TestCountAPIKeysByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertKey(t, s, "a1", model.KeyStatusActive)
	insertKey(t, s, "a2", model.KeyStatusActive)
	insertKey(t, s, "g1", model.KeyStatusGrace)

	counts, err := s.CountAPIKeysByStatus(ctx)
	if err != nil {
		t.Fatalf("CountAPIKeysByStatus: %v", err)
	}
	if counts[model.KeyStatusActive] != 2 {
		t.Errorf("active count %d, want 2", counts[model.KeyStatusActive])
	}
	if counts[model.KeyStatusGrace] != 1 {
		t.Errorf("grace count %d, want 1", counts[model.KeyStatusGrace])
	}
	if counts[model.KeyStatusRevoked] != 0 {
		t.Errorf("revoked count %d, want 0", counts[model.KeyStatusRevoked])
	}
}

func TestSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSetting(ctx, "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.SetSetting(ctx, "emergency_disable", "true"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	v, err := s.GetSetting(ctx, "emergency_disable")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if v != "true" {
		t.Errorf("got %q, want %q", v, "true")
	}

	// Upsert overwrites
	if err := s.SetSetting(ctx, "emergency_disable", "false"); err != nil {
		t.Fatalf("SetSetting upsert: %v", err)
	}
	v, _ = s.GetSetting(ctx, "emergency_disable")
	if v != "false" {
		t.Errorf("got %q after upsert, want %q", v, "false")
	}
}
