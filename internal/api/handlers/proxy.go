package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/omniaweb/hnmigrate/internal/metrics"
	"github.com/rs/zerolog"
)

// Proxy control headers. They are never forwarded.
const (
	HeaderProxyTarget = "X-Proxy-Target"
	HeaderProxyPath   = "X-Proxy-Path"
	proxyHeaderPrefix = "X-Proxy-"
	proxyRoute        = "/__proxy"
)

// DefaultProxyTarget is used when a request names no target.
const DefaultProxyTarget = "http://localhost"

// ProxyHandler forwards browser requests to the gateway named in the
// X-Proxy-Target header, so a UI served from another origin can reach it.
type ProxyHandler struct {
	transport http.RoundTripper
	timeout   time.Duration
	metrics   *metrics.PrometheusMetrics
	logger    zerolog.Logger
}

// NewProxyHandler creates a new ProxyHandler. A nil transport uses
// http.DefaultTransport; a non-positive timeout disables the deadline.
func NewProxyHandler(transport http.RoundTripper, timeout time.Duration, m *metrics.PrometheusMetrics, logger zerolog.Logger) *ProxyHandler {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &ProxyHandler{
		transport: transport,
		timeout:   timeout,
		metrics:   m,
		logger:    logger.With().Str("component", "proxy_handler").Logger(),
	}
}

// RegisterPublicRoutes registers the proxy routes for every method.
func (h *ProxyHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.Any(proxyRoute, h.Forward)
	r.Any(proxyRoute+"/*path", h.Forward)
}

// Forward proxies one request.
// ANY /__proxy/*path
func (h *ProxyHandler) Forward(c *gin.Context) {
	target, err := parseProxyTarget(c.GetHeader(HeaderProxyTarget))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	path, rawQuery := proxyPath(c.Request)

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.URL.Path = strings.TrimSuffix(target.Path, "/") + path
			pr.Out.URL.RawPath = ""
			pr.Out.URL.RawQuery = rawQuery
			for name := range pr.Out.Header {
				if strings.HasPrefix(name, proxyHeaderPrefix) {
					pr.Out.Header.Del(name)
				}
			}
		},
		Transport: h.transport,
		ModifyResponse: func(resp *http.Response) error {
			h.metrics.RecordProxy(resp.StatusCode)
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			h.metrics.RecordProxy(0)
			status := http.StatusBadGateway
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(r.Context().Err(), context.DeadlineExceeded) {
				status = http.StatusGatewayTimeout
			}
			h.logger.Warn().Err(err).
				Str("target", target.Redacted()).
				Str("path", path).
				Msg("proxy request failed")
			c.JSON(status, gin.H{"error": "upstream request failed"})
		},
	}

	h.logger.Debug().
		Str("method", c.Request.Method).
		Str("target", target.Redacted()).
		Str("path", path).
		Msg("proxying request")

	rp.ServeHTTP(c.Writer, c.Request.WithContext(ctx))
}

func parseProxyTarget(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = DefaultProxyTarget
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy target: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid proxy target %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid proxy target %q: missing host", raw)
	}
	return u, nil
}

// proxyPath returns the upstream path and query: X-Proxy-Path verbatim when
// set, otherwise the request path without the proxy prefix.
func proxyPath(r *http.Request) (string, string) {
	if p := r.Header.Get(HeaderProxyPath); p != "" {
		path, query, _ := strings.Cut(p, "?")
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return path, query
	}
	path := strings.TrimPrefix(r.URL.Path, proxyRoute)
	if path == "" {
		path = "/"
	}
	return path, r.URL.RawQuery
}
