package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/addongate/addongate/internal/config"
	"github.com/addongate/addongate/internal/gate"
	"github.com/addongate/addongate/internal/server"
	"github.com/addongate/addongate/internal/service"
	"github.com/addongate/addongate/internal/upstream"
)

const banner = `
    _    ____  ____   ___  _   _  ____    _  _____ _____
   / \  |  _ \|  _ \ / _ \| \ | |/ ___|  / \|_   _| ____|
  / _ \ | | | | | | | | | |  \| | |  _  / _ \ | | |  _|
 / ___ \| |_| | |_| | |_| | |\  | |_| |/ ___ \| | | |___
/_/   \_\____/|____/ \___/|_| \_|\____/_/   \_\_| |_____|
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Long:  "Start the HTTP server that gates and forwards requests to the addon control API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP listen port (overrides config)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP listen host (overrides config)")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(cmd *cobra.Command, host string, port int, dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	ctx := context.Background()

	// 1. Load configuration
	cfg, err := loadGatewayConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = host
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}

	logger := newLogger(cfg.Logging, dev)

	// 2. Open the key store (SQLite)
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("init key store: %w", err)
	}
	defer store.Close()
	logger.Info("key store initialized", "path", resolveDataDir())

	// 3. Resolve the emergency flag. A value persisted through the management
	// API wins over the config file, so a kill switch thrown before a restart
	// stays thrown after it.
	emergencyDisabled := cfg.Security.EmergencyDisable
	if v, err := store.GetSetting(ctx, server.SettingEmergencyDisable); err == nil {
		if b, perr := strconv.ParseBool(v); perr == nil {
			emergencyDisabled = b
		}
	}
	emergency := gate.NewEmergencySwitch(emergencyDisabled)

	// 4. Build the gating stages. A malformed allow-list entry is fatal:
	// serving with a partially parsed list would silently widen access.
	allowList, err := gate.NewIPAllowList(cfg.Security.IPAllowList)
	if err != nil {
		return fmt.Errorf("ip allow-list: %w", err)
	}
	limiter := gate.NewRateLimiter(cfg.Security.RateLimitPerMinute, cfg.Security.RateLimitPerHour)
	policy := gate.NewEndpointPolicy(gate.DefaultRoutes())

	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Server.Host
	srvCfg.Port = cfg.Server.Port
	srvCfg.Version = appVersion
	srvCfg.CORSOrigins = cfg.Server.CORSOrigins
	if d, err := time.ParseDuration(cfg.Server.ShutdownTimeout); err == nil && d > 0 {
		srvCfg.ShutdownTimeout = d
	}

	audit := gate.NewAuditLog(srvCfg.AuditRetention, logger)

	// 5. Authentication: local keys, external tokens, or both
	keys := service.NewKeyStore(store)
	var tokens service.TokenValidator
	if cfg.Auth.Mode != config.AuthModeAPIKey {
		tokens = upstream.NewTokenValidator(cfg.Upstream.CoreURL)
	}
	verifier := service.NewVerifier(cfg.Auth.Mode, keys, tokens)

	// 6. Upstream forwarding client
	token := upstream.ResolveToken(cfg.Upstream.Token, cfg.Upstream.TokenFile)
	if token == "" {
		logger.Warn("no upstream token found - forwarded requests will be rejected upstream",
			"token_file", cfg.Upstream.TokenFile)
	}
	client := upstream.NewClient(cfg.Upstream.URL, token, logger)

	// 7. Startup security summary
	counts, err := keys.CountByStatus(ctx)
	if err != nil {
		logger.Warn("failed to count api keys", "error", err)
	}
	logger.Info("security posture",
		"auth_mode", cfg.Auth.Mode,
		"keys_active", counts["active"],
		"keys_grace", counts["grace"],
		"keys_revoked", counts["revoked"],
		"allowlist_entries", len(cfg.Security.IPAllowList),
		"rate_limit_minute", cfg.Security.RateLimitPerMinute,
		"rate_limit_hour", cfg.Security.RateLimitPerHour,
		"gateway_key_set", cfg.Auth.GatewayKey != "",
		"emergency_disabled", emergencyDisabled,
	)
	if cfg.Auth.GatewayKey == "" {
		logger.Warn("no gateway key configured - management endpoints are unavailable; run 'addongate config init'")
	}
	if allowList.Empty() {
		logger.Warn("ip allow-list is empty - all source addresses admitted")
	}
	if emergencyDisabled {
		logger.Error("EMERGENCY DISABLE is active - all protected requests will be blocked")
	}
	if counts["active"] == 0 && cfg.Auth.Mode != config.AuthModeExternalToken {
		logger.Warn("no active api keys - create one with 'addongate key create'")
	}

	// 8. Build and start the HTTP server
	srv := server.New(srvCfg, server.Deps{
		Store:      store,
		Keys:       keys,
		Verifier:   verifier,
		Upstream:   client,
		AllowList:  allowList,
		Limiter:    limiter,
		Policy:     policy,
		Audit:      audit,
		Emergency:  emergency,
		GatewayKey: cfg.Auth.GatewayKey,
		Logger:     logger,
	})

	fmt.Printf("→ Addongate %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Upstream:   %s\n", cfg.Upstream.URL)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Health:     http://%s:%d/health\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()

	return srv.ListenAndServe()
}

func newLogger(cfg config.LoggingConfig, dev bool) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if dev {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
