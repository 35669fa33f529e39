package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "addongate.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadYAMLConfig(t *testing.T) {
	path := writeTempConfig(t, `
server:
  port: 9000
auth:
  mode: both
security:
  ip_allowlist:
    - 10.0.0.0/8
  rate_limit_per_minute: 10
  rate_limit_per_hour: 100
`)

	cfg, err := LoadYAMLConfig(path)
	if err != nil {
		t.Fatalf("LoadYAMLConfig: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host = %q, want default 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Auth.Mode != AuthModeBoth {
		t.Errorf("mode = %q, want both", cfg.Auth.Mode)
	}
	if len(cfg.Security.IPAllowList) != 1 {
		t.Errorf("allowlist size = %d, want 1", len(cfg.Security.IPAllowList))
	}
	if cfg.Security.RateLimitPerMinute != 10 || cfg.Security.RateLimitPerHour != 100 {
		t.Errorf("limits = %d/%d, want 10/100",
			cfg.Security.RateLimitPerMinute, cfg.Security.RateLimitPerHour)
	}
}

func TestLoadYAMLConfigEnvExpansion(t *testing.T) {
	t.Setenv("TEST_GATEWAY_KEY", "secret-from-env")

	path := writeTempConfig(t, `
auth:
  mode: api_key
  gateway_key: ${TEST_GATEWAY_KEY}
`)

	cfg, err := LoadYAMLConfig(path)
	if err != nil {
		t.Fatalf("LoadYAMLConfig: %v", err)
	}
	if cfg.Auth.GatewayKey != "secret-from-env" {
		t.Errorf("gateway_key = %q, want expanded env value", cfg.Auth.GatewayKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*YAMLConfig)
		wantErr bool
	}{
		{"defaults", func(c *YAMLConfig) {}, false},
		{"bad mode", func(c *YAMLConfig) { c.Auth.Mode = "jwt" }, true},
		{"zero minute limit", func(c *YAMLConfig) { c.Security.RateLimitPerMinute = 0 }, true},
		{"negative hour limit", func(c *YAMLConfig) { c.Security.RateLimitPerHour = -1 }, true},
		{"missing upstream", func(c *YAMLConfig) { c.Upstream.URL = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultYAMLConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
