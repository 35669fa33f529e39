package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/addongate/addongate/internal/config"
	"github.com/addongate/addongate/internal/gate"
	"github.com/addongate/addongate/internal/metrics"
	"github.com/addongate/addongate/internal/openapi"
	"github.com/addongate/addongate/internal/server/middleware"
	"github.com/addongate/addongate/internal/service"
	"github.com/addongate/addongate/internal/upstream"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	Version         string
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	// ManageRatePerMinute is a coarse per-IP pre-limit on the management
	// surface, damping gateway-key brute forcing before the key check runs.
	ManageRatePerMinute int
	// AuditRetention caps the in-memory audit buffer served by /manage/audit.
	AuditRetention int
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		Host:                "0.0.0.0",
		Port:                8099,
		Version:             "dev",
		ShutdownTimeout:     30 * time.Second,
		CORSOrigins:         []string{"*"},
		ManageRatePerMinute: 30,
		AuditRetention:      1000,
	}
}

// Deps are the collaborators the server composes into the request pipeline.
type Deps struct {
	Store      *config.Store
	Keys       *service.KeyStore
	Verifier   *service.Verifier
	Upstream   *upstream.Client
	AllowList  *gate.IPAllowList
	Limiter    *gate.RateLimiter
	Policy     *gate.EndpointPolicy
	Audit      *gate.AuditLog
	Emergency  *gate.EmergencySwitch
	GatewayKey string
	Logger     *slog.Logger
}

// Server is the gateway's HTTP front. It owns the router and composes the
// gating chain once at startup; every protected route goes through the same
// ordered pipeline.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	spec       []byte
}

// New creates a Server with all routes and middleware wired.
func New(cfg Config, deps Deps) *Server {
	s := &Server{cfg: cfg, deps: deps}
	s.spec = openapi.MarshalSpec(cfg.Version, deps.Policy.Routes())
	s.setupRouter()
	return s
}

func (s *Server) gateDeps() middleware.GateDeps {
	return middleware.GateDeps{
		Emergency:  s.deps.Emergency,
		AllowList:  s.deps.AllowList,
		Verifier:   s.deps.Verifier,
		GatewayKey: s.deps.GatewayKey,
		Limiter:    s.deps.Limiter,
		Policy:     s.deps.Policy,
		Audit:      s.deps.Audit,
	}
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.ResolveClientIP)
	r.Use(middleware.Logger(s.deps.Logger))
	r.Use(chimw.Recoverer)

	// --- Unprotected surface ---
	// Health is exempt from every gating stage, including the emergency
	// switch: liveness must stay observable while the gateway is locked down.
	r.Get("/health", s.handleHealth)
	r.Get("/openapi.json", s.handleOpenAPI)
	r.Handle("/metrics", promhttp.Handler())

	// --- IP echo ---
	// Skips the allow-list (callers use it to learn which IP to allow) and
	// the secondary gateway key, but still requires the primary credential,
	// counts against the rate limit, and honors the emergency switch.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Secure(s.gateDeps(), middleware.GateOptions{
			SkipAllowList:  true,
			SkipGatewayKey: true,
			SkipPolicy:     true,
		}))
		r.Get("/my-ip", s.handleMyIP)
	})

	// --- Management surface ---
	// Gateway key only; the rotating API keys never grant management access.
	r.Route("/manage", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", middleware.GatewayKeyHeader},
			MaxAge:         300,
		}))
		// Keyed by the resolved client address, not the transport peer:
		// behind the relay every client shares one RemoteAddr.
		r.Use(httprate.Limit(s.cfg.ManageRatePerMinute, time.Minute,
			httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
				return middleware.GetClientIP(r).Address, nil
			}),
		))
		r.Use(middleware.RequireGatewayKey(s.deps.GatewayKey, s.deps.Audit))

		r.Get("/keys", s.handleListKeys)
		r.Post("/keys", s.handleGenerateKey)
		r.Post("/keys/rotate", s.handleRotateKey)
		r.Delete("/keys/{id}", s.handleRevokeKey)
		r.Get("/audit", s.handleAudit)
		r.Get("/emergency", s.handleGetEmergency)
		r.Post("/emergency", s.handleSetEmergency)
	})

	// --- Proxy surface ---
	// Full gating chain in front of a catch-all: the endpoint policy stage
	// decides what is forwardable, so nothing outside the route table is
	// ever reachable.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Secure(s.gateDeps(), middleware.GateOptions{}))
		r.Handle("/*", http.HandlerFunc(s.handleProxy))
	})

	s.router = r
}

// handleHealth is a liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active := 0
	if counts, err := s.deps.Keys.CountByStatus(r.Context()); err == nil {
		active = counts["active"]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"service":     "addongate",
		"version":     s.cfg.Version,
		"keys_active": active,
	})
}

// handleOpenAPI serves the spec generated from the endpoint policy table.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(s.spec) //nolint:errcheck
}

// handleMyIP echoes the resolved client address and the header it came from,
// so operators can discover which IP to put on the allow-list.
func (s *Server) handleMyIP(w http.ResponseWriter, r *http.Request) {
	ip := middleware.GetClientIP(r)

	resp := map[string]interface{}{
		"your_ip": ip.Address,
		"source":  ip.Source,
		"headers": map[string]string{
			"X-Forwarded-For": r.Header.Get("X-Forwarded-For"),
			"X-Real-IP":       r.Header.Get("X-Real-IP"),
			"Remote-Addr":     r.RemoteAddr,
		},
		"help": "Add this IP to security.ip_allowlist in the gateway configuration",
	}
	if addr, err := netip.ParseAddr(ip.Address); err == nil {
		if addr.IsPrivate() || addr.IsLoopback() {
			resp["warning"] = "Private IP detected: you are accessing from an internal network. " +
				"Reach the gateway through its public relay to see the external IP to allow-list."
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListenAndServe starts the HTTP server and blocks until SIGINT or SIGTERM,
// then drains in-flight requests. It also runs the periodic housekeeping
// loop: rate-limit counter pruning and key-count gauge refresh.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 320 * time.Second, // addon updates can take minutes
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go s.housekeeping(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.deps.Logger.Info("shutdown signal received, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.deps.Logger.Info("server stopped")
	return nil
}

func (s *Server) housekeeping(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.deps.Limiter.Cleanup()
			if counts, err := s.deps.Keys.CountByStatus(ctx); err == nil {
				for status, n := range counts {
					metrics.ActiveKeys.WithLabelValues(status).Set(float64(n))
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the underlying router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
