package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/addongate/addongate/internal/config"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from the --data-dir flag,
// ADDONGATE_DATA_DIR env var, or ~/.addongate as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("ADDONGATE_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.addongate"
}

// openConfigStore opens the SQLite key store, defaulting to ~/.addongate
// if no data dir was specified.
func openConfigStore() (*config.Store, error) {
	return config.NewStore(resolveDataDir())
}

// loadGatewayConfig loads the YAML configuration: the --config flag first,
// then ./addongate.yaml if present, then compiled-in defaults.
func loadGatewayConfig() (*config.YAMLConfig, error) {
	if cfgFile != "" {
		return config.LoadYAMLConfig(cfgFile)
	}
	if _, err := os.Stat("addongate.yaml"); err == nil {
		return config.LoadYAMLConfig("addongate.yaml")
	}
	cfg := config.DefaultYAMLConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("default config: %w", err)
	}
	return cfg, nil
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
