package config

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/addongate/addongate/internal/model"
)

// Store manages the gateway's persistent state backed by SQLite: the API key
// record set and the settings table (which holds the emergency-disable flag).
// Both must survive process restarts.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new store. Pass empty string for in-memory (tests).
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "addongate.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open gateway database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate gateway database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// API key records
// ---------------------------------------------------------------------------

const insertAPIKeyQuery = `INSERT INTO api_keys
	(id, secret_hash, salt, name, description, status, rotated_from, usage_count, created_at, grace_expires_at)
	VALUES
	(:id, :secret_hash, :salt, :name, :description, :status, :rotated_from, :usage_count, :created_at, :grace_expires_at)`

// CreateAPIKey inserts a new API key record. ID, SecretHash, and Salt must
// already be set. CreatedAt is populated on insert.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	key.CreatedAt = time.Now().UTC()

	if _, err := s.db.NamedExecContext(ctx, insertAPIKeyQuery, key); err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetAPIKey returns a key record by its ID.
func (s *Store) GetAPIKey(ctx context.Context, id string) (*model.APIKey, error) {
	var key model.APIKey
	if err := s.db.GetContext(ctx, &key, "SELECT * FROM api_keys WHERE id = ?", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &key, nil
}

// ListAPIKeys returns all key records, newest first.
func (s *Store) ListAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	var keys []model.APIKey
	if err := s.db.SelectContext(ctx, &keys, "SELECT * FROM api_keys ORDER BY created_at DESC, id"); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// ListVerifiableAPIKeys returns every record that may still match during
// verification, i.e. active and grace keys. Revoked records are excluded.
func (s *Store) ListVerifiableAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	var keys []model.APIKey
	err := s.db.SelectContext(ctx, &keys,
		"SELECT * FROM api_keys WHERE status IN (?, ?) ORDER BY created_at DESC, id",
		model.KeyStatusActive, model.KeyStatusGrace)
	if err != nil {
		return nil, fmt.Errorf("list verifiable api keys: %w", err)
	}
	return keys, nil
}

// MarkAPIKeyGrace transitions a key to grace status with the given expiry.
func (s *Store) MarkAPIKeyGrace(ctx context.Context, id string, graceExpiresAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET status = ?, grace_expires_at = ? WHERE id = ?",
		model.KeyStatusGrace, graceExpiresAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("mark api key grace: %w", err)
	}
	return checkAffected(result)
}

// RevokeAPIKey marks a key revoked. Revoking an already-revoked key is not an
// error; the operation is idempotent. The grace expiry is cleared because it
// is only meaningful for grace records.
func (s *Store) RevokeAPIKey(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET status = ?, grace_expires_at = NULL WHERE id = ?",
		model.KeyStatusRevoked, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	return checkAffected(result)
}

// RotateAPIKey demotes the old key and inserts its successor in a single
// transaction: a grace expiry demotes to grace status, nil revokes outright.
// Either both mutations commit or neither does, so a failed insert never
// leaves a demoted key without a successor. Returns ErrNotFound when the old
// key does not exist.
func (s *Store) RotateAPIKey(ctx context.Context, oldID string, graceExpiresAt *time.Time, newKey *model.APIKey) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rotation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var result sql.Result
	if graceExpiresAt == nil {
		result, err = tx.ExecContext(ctx,
			"UPDATE api_keys SET status = ?, grace_expires_at = NULL WHERE id = ?",
			model.KeyStatusRevoked, oldID)
	} else {
		result, err = tx.ExecContext(ctx,
			"UPDATE api_keys SET status = ?, grace_expires_at = ? WHERE id = ?",
			model.KeyStatusGrace, graceExpiresAt.UTC(), oldID)
	}
	if err != nil {
		return fmt.Errorf("demote rotated api key: %w", err)
	}
	if err := checkAffected(result); err != nil {
		return err
	}

	newKey.CreatedAt = time.Now().UTC()
	if _, err := tx.NamedExecContext(ctx, insertAPIKeyQuery, newKey); err != nil {
		return fmt.Errorf("insert rotated api key: %w", err)
	}
	return tx.Commit()
}

// SweepExpiredGrace revokes every grace record whose window has elapsed.
// Returns the number of keys revoked.
func (s *Store) SweepExpiredGrace(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET status = ?, grace_expires_at = NULL WHERE status = ? AND grace_expires_at <= ?",
		model.KeyStatusRevoked, model.KeyStatusGrace, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep expired grace keys: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep rows affected: %w", err)
	}
	return n, nil
}

// TouchAPIKey records a successful use: bumps the usage counter and sets the
// last_used_at timestamp.
func (s *Store) TouchAPIKey(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET usage_count = usage_count + 1, last_used_at = ? WHERE id = ?",
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return checkAffected(result)
}

// CountAPIKeysByStatus returns the number of keys per status.
func (s *Store) CountAPIKeysByStatus(ctx context.Context) (map[string]int, error) {
	rows := []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}{}
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT status, COUNT(*) AS n FROM api_keys GROUP BY status"); err != nil {
		return nil, fmt.Errorf("count api keys: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSetting returns a settings value, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	if err := s.db.GetContext(ctx, &value, "SELECT value FROM settings WHERE key = ?", key); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting upserts a settings value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

func checkAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
