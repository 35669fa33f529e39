package gate

import (
	"testing"
	"time"
)

func TestEndpointPolicyMatch(t *testing.T) {
	p := NewEndpointPolicy(DefaultRoutes())

	tests := []struct {
		method   string
		path     string
		wantName string
		wantOK   bool
	}{
		{"GET", "/addons", "list-addons", true},
		{"GET", "/addons/", "list-addons", true}, // trailing slash
		{"GET", "/addons/my_addon", "get-addon", true},
		{"POST", "/addons/my_addon/start", "start-addon", true},
		{"POST", "/addons/my_addon/stop", "stop-addon", true},
		{"POST", "/addons/my_addon/restart", "restart-addon", true},
		{"POST", "/addons/my_addon/update", "update-addon", true},

		// Method matters.
		{"POST", "/addons", "", false},
		{"DELETE", "/addons/my_addon", "", false},
		{"GET", "/addons/my_addon/start", "", false},

		// Off the table entirely.
		{"POST", "/addons/my_addon/install", "", false},
		{"POST", "/addons/my_addon/uninstall", "", false},
		{"GET", "/supervisor/info", "", false},
		{"GET", "/", "", false},
		{"GET", "/addons/my_addon/start/extra", "", false},
	}

	for _, tt := range tests {
		route, _, ok := p.Match(tt.method, tt.path)
		if ok != tt.wantOK {
			t.Errorf("Match(%s %s) ok = %v, want %v", tt.method, tt.path, ok, tt.wantOK)
			continue
		}
		if ok && route.Name != tt.wantName {
			t.Errorf("Match(%s %s) route = %q, want %q", tt.method, tt.path, route.Name, tt.wantName)
		}
	}
}

func TestEndpointPolicyParams(t *testing.T) {
	p := NewEndpointPolicy(DefaultRoutes())

	route, params, ok := p.Match("GET", "/addons/core_ssh")
	if !ok {
		t.Fatal("expected match")
	}
	if params["slug"] != "core_ssh" {
		t.Errorf("params[slug] = %q, want core_ssh", params["slug"])
	}

	// get-addon rewrites to the upstream info path.
	if got := route.Upstream(params); got != "/addons/core_ssh/info" {
		t.Errorf("Upstream = %q, want /addons/core_ssh/info", got)
	}
}

func TestRouteUpstreamSubstitution(t *testing.T) {
	r := Route{
		Name:         "custom",
		Method:       "POST",
		Pattern:      "/addons/{slug}/restart",
		UpstreamPath: "/addons/{slug}/restart",
		Timeout:      time.Minute,
	}
	got := r.Upstream(map[string]string{"slug": "my_addon"})
	if got != "/addons/my_addon/restart" {
		t.Errorf("Upstream = %q, want /addons/my_addon/restart", got)
	}
}

func TestDefaultRoutesTimeouts(t *testing.T) {
	p := NewEndpointPolicy(DefaultRoutes())

	route, _, ok := p.Match("POST", "/addons/x/update")
	if !ok {
		t.Fatal("expected match for update")
	}
	if route.Timeout != 300*time.Second {
		t.Errorf("update timeout = %v, want 5m", route.Timeout)
	}

	route, _, ok = p.Match("POST", "/addons/x/start")
	if !ok {
		t.Fatal("expected match for start")
	}
	if route.Timeout != 60*time.Second {
		t.Errorf("start timeout = %v, want 1m", route.Timeout)
	}
}
