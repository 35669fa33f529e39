package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Auth modes accepted in the gateway configuration.
const (
	AuthModeAPIKey        = "api_key"
	AuthModeExternalToken = "external_token"
	AuthModeBoth          = "both"
)

// YAMLConfig represents the top-level addongate configuration file.
type YAMLConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Auth     AuthConfig     `yaml:"auth"`
	Security SecurityConfig `yaml:"security"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
	CORSOrigins     []string `yaml:"cors_origins"`
}

// UpstreamConfig points the gateway at the privileged control API it fronts.
type UpstreamConfig struct {
	// URL is the base URL of the control API (addon lifecycle operations).
	URL string `yaml:"url"`
	// CoreURL is the base URL of the external identity endpoint used to
	// validate bearer tokens in external_token and both modes.
	CoreURL string `yaml:"core_url"`
	// Token authenticates the gateway itself against the control API. When
	// empty, the SUPERVISOR_TOKEN environment variable and the token file
	// are consulted in that order.
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
}

// AuthConfig controls how inbound requests are authenticated.
type AuthConfig struct {
	// Mode is one of api_key, external_token, both.
	Mode string `yaml:"mode"`
	// GatewayKey, when set, is a second static secret required on every
	// protected request (X-Gateway-Key header) in addition to the primary
	// credential, and is always required for management operations.
	GatewayKey string `yaml:"gateway_key"`
}

// SecurityConfig controls the gating stages.
type SecurityConfig struct {
	// IPAllowList holds literal IPs and CIDR ranges. Empty means allow all.
	IPAllowList        []string `yaml:"ip_allowlist"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
	RateLimitPerHour   int      `yaml:"rate_limit_per_hour"`
	// EmergencyDisable blocks every protected request when true. The flag is
	// also runtime-mutable through the management API; the persisted value
	// in the store wins over this file on startup.
	EmergencyDisable bool `yaml:"emergency_disable"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before parsing.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	cfg := DefaultYAMLConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that must be rejected at startup. Malformed
// allow-list entries are caught later by the allow-list constructor; this
// catches everything cheap to check here.
func (c *YAMLConfig) Validate() error {
	switch c.Auth.Mode {
	case AuthModeAPIKey, AuthModeExternalToken, AuthModeBoth:
	default:
		return fmt.Errorf("invalid auth.mode %q (want api_key, external_token, or both)", c.Auth.Mode)
	}
	if c.Security.RateLimitPerMinute <= 0 {
		return fmt.Errorf("security.rate_limit_per_minute must be positive, got %d", c.Security.RateLimitPerMinute)
	}
	if c.Security.RateLimitPerHour <= 0 {
		return fmt.Errorf("security.rate_limit_per_hour must be positive, got %d", c.Security.RateLimitPerHour)
	}
	if c.Upstream.URL == "" {
		return fmt.Errorf("upstream.url is required")
	}
	return nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8099,
			ShutdownTimeout: "30s",
			CORSOrigins:     []string{"*"},
		},
		Upstream: UpstreamConfig{
			URL:       "http://supervisor",
			CoreURL:   "http://supervisor/core",
			TokenFile: "/run/secrets/SUPERVISOR_TOKEN",
		},
		Auth: AuthConfig{
			Mode: AuthModeAPIKey,
		},
		Security: SecurityConfig{
			IPAllowList:        []string{},
			RateLimitPerMinute: 30,
			RateLimitPerHour:   500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteConfig writes the configuration to a YAML file.
func WriteConfig(cfg *YAMLConfig, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
