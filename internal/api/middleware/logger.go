package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// sensitiveParams lists query parameter names whose values must be redacted from logs.
var sensitiveParams = map[string]bool{
	"token":        true,
	"access_token": true,
	"key":          true,
	"secret":       true,
	"password":     true,
}

// sensitiveHeaders are never logged, even at debug level.
var sensitiveHeaders = map[string]bool{
	"authorization":  true,
	"x-reset-secret": true,
	"cookie":         true,
}

// redactQueryString replaces values of known sensitive query parameters with [REDACTED].
func redactQueryString(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}

	redacted := false
	for name, values := range params {
		if sensitiveParams[strings.ToLower(name)] {
			for i := range values {
				values[i] = "[REDACTED]"
			}
			redacted = true
		}
	}

	if !redacted {
		return rawQuery
	}
	return params.Encode()
}

// RequestID assigns each request an ID, reusing a well-formed incoming one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// proxyTargetHeader names the gateway a /__proxy request is forwarded to.
const proxyTargetHeader = "X-Proxy-Target"

// RequestLogger logs one line per request. Proxied requests also carry the
// gateway they were sent to; secrets never reach the log.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "http").Logger()

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := redactQueryString(c.Request.URL.RawQuery)
		target := c.GetHeader(proxyTargetHeader)

		c.Next()

		status := c.Writer.Status()
		requestID := c.GetString("request_id")

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		default:
			event = log.Info()
		}

		if debug := log.Debug(); debug.Enabled() {
			headers := zerolog.Dict()
			for name, vals := range c.Request.Header {
				if !sensitiveHeaders[strings.ToLower(name)] {
					headers.Str(name, strings.Join(vals, ", "))
				}
			}
			debug.Str("request_id", requestID).Dict("headers", headers).Msg("request headers")
		}

		event = event.
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("route", c.FullPath())
		if query != "" {
			event = event.Str("query", query)
		}
		if target != "" {
			event = event.Str("proxy_target", target)
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			event = event.Str("error", errs.String())
		}
		event.
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("body_size", c.Writer.Size()).
			Msg("request")
	}
}
