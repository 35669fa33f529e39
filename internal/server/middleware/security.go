package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/addongate/addongate/internal/gate"
	"github.com/addongate/addongate/internal/metrics"
	"github.com/addongate/addongate/internal/model"
	"github.com/addongate/addongate/internal/service"
)

// GatewayKeyHeader carries the secondary static secret, independent of the
// rotating primary credential.
const GatewayKeyHeader = "X-Gateway-Key"

type routeKey struct{}

// MatchedRoute is the policy-matched route stored in the request context for
// the forwarding handler.
type MatchedRoute struct {
	Route  gate.Route
	Params map[string]string
}

// GetMatchedRoute extracts the policy match from the context.
func GetMatchedRoute(r *http.Request) (MatchedRoute, bool) {
	m, ok := r.Context().Value(routeKey{}).(MatchedRoute)
	return m, ok
}

// GateDeps bundles the gating stages composed by Secure. Everything is
// injected so tests can construct a fresh chain per case.
type GateDeps struct {
	Emergency  *gate.EmergencySwitch
	AllowList  *gate.IPAllowList
	Verifier   *service.Verifier
	GatewayKey string // empty = secondary check not configured
	Limiter    *gate.RateLimiter
	Policy     *gate.EndpointPolicy
	Audit      *gate.AuditLog
}

// GateOptions selects which stages apply to a route group. The emergency
// switch, credential check, and rate limiter always run; exemptions beyond
// these flags are expressed by not wrapping the route at all.
type GateOptions struct {
	SkipAllowList  bool
	SkipGatewayKey bool
	SkipPolicy     bool
}

// Secure returns the gating middleware: the ordered decision pipeline run
// identically for every wrapped route. Stages run in a fixed order; the
// first non-passing stage determines the response and the audit outcome, and
// exactly one audit entry is recorded per request.
func Secure(deps GateDeps, opts GateOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := GetClientIP(r)

			deny := func(status int, outcome, body, detail, identity string) {
				deps.Audit.Record(model.AuditEntry{
					Endpoint: r.URL.Path,
					Method:   r.Method,
					ClientIP: ip.Address,
					Identity: identity,
					Outcome:  outcome,
					Message:  detail,
				})
				metrics.Decisions.WithLabelValues(outcome).Inc()
				writeJSONError(w, status, body)
			}

			// 1. Emergency kill switch.
			if deps.Emergency.Disabled() {
				deny(http.StatusServiceUnavailable, model.OutcomeDisabled,
					"Service temporarily disabled", "emergency disable active", "")
				return
			}

			// 2. IP allow-list.
			if !opts.SkipAllowList && !deps.AllowList.Matches(ip.Address) {
				deny(http.StatusForbidden, model.OutcomeIPDenied,
					"Access denied: IP not whitelisted", "ip not in allow-list", "")
				return
			}

			// 3. Primary credential.
			key, err := deps.Verifier.Verify(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				if errors.Is(err, service.ErrMissingCredential) ||
					errors.Is(err, service.ErrInvalidCredential) ||
					errors.Is(err, service.ErrInvalidKey) {
					deny(http.StatusUnauthorized, model.OutcomeAuthFailed,
						deps.Verifier.FailureMessage(err), err.Error(), "")
					return
				}
				deny(http.StatusInternalServerError, model.OutcomeAuthFailed,
					"Internal server error", "credential check failed: "+err.Error(), "")
				return
			}

			// Identity for rate limiting and audit: key ID when a local key
			// authenticated, resolved client IP for keyless auth.
			identity := ip.Address
			auditIdentity := ""
			if key != nil {
				identity = key.ID
				auditIdentity = key.ID
			}

			// 4. Secondary gateway key, mandatory when configured.
			if !opts.SkipGatewayKey && deps.GatewayKey != "" {
				provided := r.Header.Get(GatewayKeyHeader)
				if subtle.ConstantTimeCompare([]byte(provided), []byte(deps.GatewayKey)) != 1 {
					deny(http.StatusUnauthorized, model.OutcomeAuthFailed,
						"Invalid gateway key", "gateway key missing or mismatched", auditIdentity)
					return
				}
			}

			// 5. Rate limit: minute window first, then hour.
			if allowed, window, limit := deps.Limiter.Check(identity); !allowed {
				msg := fmt.Sprintf("Rate limit exceeded: %d requests per %s", limit, window)
				deny(http.StatusTooManyRequests, model.OutcomeRateLimited, msg, msg, auditIdentity)
				return
			}

			// 6. Endpoint policy: unmatched operations are denied, never
			// silently forwarded.
			if !opts.SkipPolicy {
				route, params, ok := deps.Policy.Match(r.Method, r.URL.Path)
				if !ok {
					deny(http.StatusForbidden, model.OutcomeEndpointDenied,
						"Endpoint not allowed", "not in the endpoint allow-list", auditIdentity)
					return
				}
				ctx := context.WithValue(r.Context(), routeKey{}, MatchedRoute{Route: route, Params: params})
				r = r.WithContext(ctx)
			}

			// All stages passed: audit success, then hand off.
			deps.Audit.Record(model.AuditEntry{
				Endpoint: r.URL.Path,
				Method:   r.Method,
				ClientIP: ip.Address,
				Identity: auditIdentity,
				Outcome:  model.OutcomeSuccess,
			})
			metrics.Decisions.WithLabelValues(model.OutcomeSuccess).Inc()

			next.ServeHTTP(w, r)
		})
	}
}

// RequireGatewayKey guards the management surface. Management operations
// always use the gateway key, never the rotating API keys; when no gateway
// key is configured the surface is unavailable rather than open.
func RequireGatewayKey(gatewayKey string, audit *gate.AuditLog) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gatewayKey == "" {
				writeJSONError(w, http.StatusServiceUnavailable,
					"Gateway key not configured")
				return
			}
			provided := r.Header.Get(GatewayKeyHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(gatewayKey)) != 1 {
				ip := GetClientIP(r)
				audit.Record(model.AuditEntry{
					Endpoint: r.URL.Path,
					Method:   r.Method,
					ClientIP: ip.Address,
					Outcome:  model.OutcomeAuthFailed,
					Message:  "management gateway key missing or mismatched",
				})
				metrics.Decisions.WithLabelValues(model.OutcomeAuthFailed).Inc()
				writeJSONError(w, http.StatusUnauthorized, "Invalid gateway key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{Error: msg}) //nolint:errcheck
}
