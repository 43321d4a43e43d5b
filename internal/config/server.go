package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local environment.
	EnvDevelopment Environment = "development"
	// EnvProduction switches gin to release mode and JSON logs.
	EnvProduction Environment = "production"
)

// ServerConfig holds settings of the local API server, loaded from environment variables.
type ServerConfig struct {
	Environment  Environment
	ListenAddr   string        // default: 127.0.0.1:8787
	RateLimit    int64         // requests per RatePeriod per client (default: 120)
	RatePeriod   time.Duration // default: 1m
	MaxBodyBytes int64         // request body limit (default: 32 MiB)
	// ProxyTimeout bounds a single /__proxy round trip (default: 2m).
	ProxyTimeout time.Duration
	// CORSOrigins lists browser origins allowed to call the server. Empty
	// allows any origin outside production.
	CORSOrigins []string
}

// LoadServerConfig reads server configuration from environment variables.
func LoadServerConfig() ServerConfig {
	env := Environment(os.Getenv("HNMIGRATE_ENV"))
	switch env {
	case EnvDevelopment, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	listen := strings.TrimSpace(os.Getenv("HNMIGRATE_LISTEN"))
	if listen == "" {
		listen = "127.0.0.1:8787"
	}

	rateLimit := getEnvInt("HNMIGRATE_RATE_LIMIT", 120)
	if rateLimit <= 0 {
		rateLimit = 120
	}

	ratePeriod := getEnvDuration("HNMIGRATE_RATE_PERIOD", time.Minute)
	if ratePeriod <= 0 {
		ratePeriod = time.Minute
	}

	maxBody := getEnvInt("HNMIGRATE_MAX_BODY_BYTES", 32<<20)
	if maxBody <= 0 {
		maxBody = 32 << 20
	}

	proxyTimeout := getEnvDuration("HNMIGRATE_PROXY_TIMEOUT", 2*time.Minute)
	if proxyTimeout <= 0 {
		proxyTimeout = 2 * time.Minute
	}

	var origins []string
	for _, o := range strings.Split(os.Getenv("HNMIGRATE_CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return ServerConfig{
		Environment:  env,
		ListenAddr:   listen,
		RateLimit:    int64(rateLimit),
		RatePeriod:   ratePeriod,
		MaxBodyBytes: int64(maxBody),
		ProxyTimeout: proxyTimeout,
		CORSOrigins:  origins,
	}
}

// IsProduction reports whether the server runs in production mode.
func (c ServerConfig) IsProduction() bool {
	return c.Environment == EnvProduction
}

// getEnvInt reads an integer from an environment variable, returning the default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvDuration reads a duration such as "30s" from an environment variable,
// returning the default if unset or invalid.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
