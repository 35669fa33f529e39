package gate

import (
	"strings"
	"time"
)

// Route describes one proxyable upstream operation: the inbound method and
// path template, the upstream path it maps to, and the forwarding timeout.
// The whole proxy surface is this table; both the endpoint policy and the
// forwarder read from it, so an operation absent here cannot be reached.
type Route struct {
	Name         string
	Method       string
	Pattern      string // e.g. /addons/{slug}/start
	UpstreamPath string // e.g. /addons/{slug}/start
	Timeout      time.Duration
}

// DefaultRoutes is the fixed allow-list of addon lifecycle operations exposed
// through the gateway. Install and uninstall are deliberately absent: the
// gateway must never be able to introduce or remove software units, only
// operate the ones already present.
func DefaultRoutes() []Route {
	return []Route{
		{Name: "list-addons", Method: "GET", Pattern: "/addons", UpstreamPath: "/addons", Timeout: 10 * time.Second},
		{Name: "get-addon", Method: "GET", Pattern: "/addons/{slug}", UpstreamPath: "/addons/{slug}/info", Timeout: 10 * time.Second},
		{Name: "start-addon", Method: "POST", Pattern: "/addons/{slug}/start", UpstreamPath: "/addons/{slug}/start", Timeout: 60 * time.Second},
		{Name: "stop-addon", Method: "POST", Pattern: "/addons/{slug}/stop", UpstreamPath: "/addons/{slug}/stop", Timeout: 60 * time.Second},
		{Name: "restart-addon", Method: "POST", Pattern: "/addons/{slug}/restart", UpstreamPath: "/addons/{slug}/restart", Timeout: 60 * time.Second},
		{Name: "update-addon", Method: "POST", Pattern: "/addons/{slug}/update", UpstreamPath: "/addons/{slug}/update", Timeout: 300 * time.Second},
	}
}

// EndpointPolicy matches inbound requests against the route table. Unmatched
// requests are denied, never forwarded.
type EndpointPolicy struct {
	routes []Route
}

// NewEndpointPolicy compiles the route table into a policy.
func NewEndpointPolicy(routes []Route) *EndpointPolicy {
	return &EndpointPolicy{routes: routes}
}

// Routes returns the compiled route table.
func (p *EndpointPolicy) Routes() []Route {
	return p.routes
}

// Match returns the route for (method, path) and the values bound to the
// pattern's path parameters, or ok=false when no route matches.
func (p *EndpointPolicy) Match(method, path string) (route Route, params map[string]string, ok bool) {
	segments := splitPath(path)
	for _, r := range p.routes {
		if r.Method != method {
			continue
		}
		if params, ok := matchPattern(splitPath(r.Pattern), segments); ok {
			return r, params, true
		}
	}
	return Route{}, nil, false
}

// UpstreamPath substitutes the bound parameters into the route's upstream
// path template.
func (r Route) Upstream(params map[string]string) string {
	out := r.UpstreamPath
	for name, value := range params {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func matchPattern(pattern, segments []string) (map[string]string, bool) {
	if len(pattern) != len(segments) {
		return nil, false
	}
	var params map[string]string
	for i, p := range pattern {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			if segments[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string, 1)
			}
			params[p[1:len(p)-1]] = segments[i]
			continue
		}
		if p != segments[i] {
			return nil, false
		}
	}
	return params, true
}
