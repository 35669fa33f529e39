package server

import (
	"net/http"
	"time"

	"github.com/addongate/addongate/internal/metrics"
	"github.com/addongate/addongate/internal/server/middleware"
)

// handleProxy forwards a policy-admitted request to the upstream control API
// and relays status and payload verbatim. Upstream failures surface as a
// generic 502; the original error stays in the logs and never reaches the
// client.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	matched, ok := middleware.GetMatchedRoute(r)
	if !ok {
		// The gating chain always runs the policy stage for this surface.
		writeError(w, http.StatusForbidden, "Endpoint not allowed")
		return
	}

	route := matched.Route
	start := time.Now()

	resp, err := s.deps.Upstream.Forward(r.Context(), route.Method, route.Upstream(matched.Params), r.Body, route.Timeout)
	metrics.UpstreamDuration.WithLabelValues(route.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues(route.Name).Inc()
		s.deps.Logger.Error("upstream request failed",
			"route", route.Name,
			"method", route.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusBadGateway, "Upstream request failed")
		return
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.Status)
	w.Write(resp.Body) //nolint:errcheck
}
