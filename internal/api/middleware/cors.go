package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/omniaweb/hnmigrate/internal/config"
	"github.com/rs/zerolog"
)

// allowedHeaders includes the proxy routing headers so a browser UI can use
// /__proxy directly.
const allowedHeaders = "Content-Type, Authorization, X-Requested-With, X-Request-ID, X-Proxy-Target, X-Proxy-Path, X-Reset-Secret"

// CORS returns a middleware that handles Cross-Origin Resource Sharing.
// Outside production an empty allowedOrigins allows every origin; in
// production it is an error.
func CORS(allowedOrigins []string, env config.Environment, logger zerolog.Logger) (gin.HandlerFunc, error) {
	if len(allowedOrigins) == 0 {
		if env == config.EnvProduction {
			return nil, errors.New("HNMIGRATE_CORS_ORIGINS must be set in production")
		}
		logger.Warn().Msg("HNMIGRATE_CORS_ORIGINS is empty, all origins are allowed")
	}

	allowAll := len(allowedOrigins) == 0

	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		originSet[strings.ToLower(origin)] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := allowAll
		if !allowed && origin != "" {
			_, allowed = originSet[strings.ToLower(origin)]
		}

		if allowed && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Headers", allowedHeaders)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Expose-Headers", RequestIDHeader)
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}, nil
}
