package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// cspAPI is a strict Content-Security-Policy for JSON and metrics responses.
const cspAPI = "default-src 'none'; frame-ancestors 'none'"

// SecurityHeaders returns a middleware that sets security-related HTTP
// response headers. Proxied responses keep the upstream's own headers.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isProxyRoute(c.Request.URL.Path) {
			c.Next()
			return
		}

		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Content-Security-Policy", cspAPI)

		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

func isProxyRoute(path string) bool {
	return path == "/__proxy" || strings.HasPrefix(path, "/__proxy/")
}
