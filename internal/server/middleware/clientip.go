package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKeyIP string

// ClientIPKey is the context key for the resolved client address.
const ClientIPKey contextKeyIP = "client_ip"

// ClientIP holds the resolved client address and the header it came from.
// The gateway normally sits behind a relay, so the transport peer is the
// relay itself; the first X-Forwarded-For hop is treated as authoritative.
// That hop is client-supplied and spoofable — a documented trust boundary
// owned by the deployment, not something the gateway hardens away.
type ClientIP struct {
	Address string
	Source  string // "x-forwarded-for", "x-real-ip", or "remote-addr"
}

// ResolveClientIP is an HTTP middleware that resolves the real client IP
// from proxy headers and attaches it to the request context for the gating
// chain and the audit log.
func ResolveClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := resolve(r)
		ctx := context.WithValue(r.Context(), ClientIPKey, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClientIP extracts the resolved client address from the context. Falls
// back to the transport peer when the middleware did not run.
func GetClientIP(r *http.Request) ClientIP {
	if ip, ok := r.Context().Value(ClientIPKey).(ClientIP); ok {
		return ip
	}
	return resolve(r)
}

func resolve(r *http.Request) ClientIP {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return ClientIP{Address: first, Source: "x-forwarded-for"}
		}
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return ClientIP{Address: strings.TrimSpace(real), Source: "x-real-ip"}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return ClientIP{Address: host, Source: "remote-addr"}
}
