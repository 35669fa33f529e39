package gate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/addongate/addongate/internal/model"
)

// AuditLog records every terminal gating decision: exactly one entry per
// request, including short-circuit paths. Entries are append-only and never
// mutated or reordered after write. Each entry is also emitted as a
// structured log line; the in-memory buffer retains the most recent entries
// for the management API's chronological scan.
type AuditLog struct {
	mu      sync.Mutex
	entries []model.AuditEntry
	max     int
	logger  *slog.Logger
	now     func() time.Time
}

// NewAuditLog creates an audit log retaining up to max entries in memory.
func NewAuditLog(max int, logger *slog.Logger) *AuditLog {
	return &AuditLog{
		max:    max,
		logger: logger,
		now:    time.Now,
	}
}

// Record appends one decision. The timestamp is assigned here so entries are
// stored in write order.
func (a *AuditLog) Record(entry model.AuditEntry) {
	entry.Timestamp = a.now().UTC()

	a.mu.Lock()
	a.entries = append(a.entries, entry)
	if len(a.entries) > a.max {
		a.entries = a.entries[len(a.entries)-a.max:]
	}
	a.mu.Unlock()

	level := slog.LevelInfo
	switch entry.Outcome {
	case model.OutcomeSuccess:
	case model.OutcomeAuthFailed, model.OutcomeRateLimited:
		level = slog.LevelWarn
	default:
		level = slog.LevelError
	}
	a.logger.Log(context.Background(), level, "gate decision",
		"outcome", entry.Outcome,
		"method", entry.Method,
		"endpoint", entry.Endpoint,
		"client_ip", entry.ClientIP,
		"identity", entry.Identity,
		"message", entry.Message,
	)
}

// Recent returns up to n of the most recent entries in chronological order.
// The returned slice is a copy; callers cannot mutate the log.
func (a *AuditLog) Recent(n int) []model.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n <= 0 || n > len(a.entries) {
		n = len(a.entries)
	}
	out := make([]model.AuditEntry, n)
	copy(out, a.entries[len(a.entries)-n:])
	return out
}
