// Package api provides the local HTTP API of hnmigrate.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/omniaweb/hnmigrate/internal/api/handlers"
	"github.com/omniaweb/hnmigrate/internal/api/middleware"
	"github.com/omniaweb/hnmigrate/internal/config"
	"github.com/omniaweb/hnmigrate/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Config holds configuration for the API router.
type Config struct {
	Environment config.Environment
	// AllowedOrigins for CORS. Empty means all origins allowed outside production.
	AllowedOrigins []string
	// RateLimitRequests is the number of requests allowed per period.
	RateLimitRequests int64
	RateLimitPeriod   time.Duration
	MaxBodyBytes      int64
	// ProxyTimeout bounds one /__proxy round trip.
	ProxyTimeout time.Duration
	// GatewayClient reaches gateways for proxying and imports. Nil uses
	// http.DefaultClient.
	GatewayClient *http.Client
	// Version information for the version endpoint.
	Version   string
	Commit    string
	BuildDate string
}

// DefaultConfig returns a Config with sensible defaults for development.
func DefaultConfig() Config {
	return Config{
		Environment:       config.EnvDevelopment,
		AllowedOrigins:    []string{},
		RateLimitRequests: 120,
		RateLimitPeriod:   time.Minute,
		MaxBodyBytes:      32 << 20,
		ProxyTimeout:      2 * time.Minute,
		Version:           "dev",
		Commit:            "unknown",
		BuildDate:         "unknown",
	}
}

// ConfigFromServer maps environment-loaded server settings onto a router
// Config.
func ConfigFromServer(s config.ServerConfig) Config {
	cfg := DefaultConfig()
	cfg.Environment = s.Environment
	cfg.AllowedOrigins = s.CORSOrigins
	cfg.RateLimitRequests = s.RateLimit
	cfg.RateLimitPeriod = s.RatePeriod
	cfg.MaxBodyBytes = s.MaxBodyBytes
	cfg.ProxyTimeout = s.ProxyTimeout
	return cfg
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router. history may be nil when no import log is
// kept. Metrics are registered on reg and served from it.
func NewRouter(
	cfg Config,
	history handlers.HistoryStore,
	reg *prometheus.Registry,
	logger zerolog.Logger,
) (*Router, error) {
	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	m, err := metrics.NewPrometheusMetrics(reg)
	if err != nil {
		return nil, err
	}

	cors, err := middleware.CORS(cfg.AllowedOrigins, cfg.Environment, logger)
	if err != nil {
		return nil, err
	}

	// Global middleware
	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestID())
	r.Engine.Use(middleware.RequestLogger(logger))
	r.Engine.Use(middleware.RequestMetrics(m))
	r.Engine.Use(middleware.SecurityHeaders())
	r.Engine.Use(cors)

	// Rate limiting
	rateLimiter, err := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitPeriod)
	if err != nil {
		return nil, err
	}
	r.Engine.Use(rateLimiter)
	r.Engine.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

	var pinger handlers.Pinger
	if history != nil {
		pinger = history
	}
	handlers.NewHealthHandler(pinger, logger).RegisterPublicRoutes(r.Engine)
	handlers.RegisterMetricsRoute(r.Engine, reg)
	handlers.RegisterVersionRoute(r.Engine, handlers.VersionInfo{
		Version:   cfg.Version,
		Commit:    cfg.Commit,
		BuildDate: cfg.BuildDate,
	})

	gatewayClient := cfg.GatewayClient
	if gatewayClient == nil {
		gatewayClient = http.DefaultClient
	}
	handlers.NewProxyHandler(gatewayClient.Transport, cfg.ProxyTimeout, m, logger).RegisterPublicRoutes(r.Engine)

	apiV1 := r.Engine.Group("/api/v1")
	handlers.NewMigrationHandler(m, logger).RegisterRoutes(apiV1)
	handlers.NewImportHandler(handlers.GatewayImporters(gatewayClient, logger), history, m, logger).RegisterRoutes(apiV1)

	r.logger.Info().
		Str("environment", string(cfg.Environment)).
		Int("origins", len(cfg.AllowedOrigins)).
		Msg("router initialized")
	return r, nil
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.Engine.ServeHTTP(w, req)
}
