package model

import "time"

// Audit outcomes. Exactly one outcome is recorded per request; the first
// gating stage that fails determines it.
const (
	OutcomeSuccess        = "success"
	OutcomeAuthFailed     = "auth_failed"
	OutcomeIPDenied       = "ip_denied"
	OutcomeRateLimited    = "rate_limited"
	OutcomeDisabled       = "disabled"
	OutcomeEndpointDenied = "endpoint_denied"
)

// AuditEntry is one append-only record of a gating decision. Entries are
// never mutated after being written.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Endpoint  string    `json:"endpoint"`
	Method    string    `json:"method"`
	ClientIP  string    `json:"client_ip"`
	Identity  string    `json:"identity,omitempty"` // key ID, empty for keyless auth
	Outcome   string    `json:"outcome"`
	Message   string    `json:"message,omitempty"`
}
