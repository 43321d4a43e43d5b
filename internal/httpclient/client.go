// Package httpclient builds the HTTP clients used to reach gateways, with
// optional proxying.
package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/omniaweb/hnmigrate/internal/config"
	"golang.org/x/net/proxy"
)

// DefaultTimeout is the default HTTP client timeout.
const DefaultTimeout = 30 * time.Second

// UserAgent is sent on every request made through a client from this package.
const UserAgent = "hnmigrate"

// Options configures the HTTP client.
type Options struct {
	// Timeout for whole requests (default: 30s). Negative disables it, for
	// streaming downloads bounded by a context instead.
	Timeout time.Duration
	// Proxy contains proxy settings.
	Proxy *config.ProxyConfig
	// InsecureSkipVerify accepts self-signed gateway certificates.
	InsecureSkipVerify bool
}

// New creates a new HTTP client with optional proxy support.
func New(opts Options) (*http.Client, error) {
	timeout := opts.Timeout
	switch {
	case timeout == 0:
		timeout = DefaultTimeout
	case timeout < 0:
		timeout = 0
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in
	}

	if opts.Proxy.HasProxy() {
		if err := configureProxy(transport, opts.Proxy); err != nil {
			return nil, fmt.Errorf("configure proxy: %w", err)
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{next: transport},
	}, nil
}

// NewForProfile creates a client using the proxy settings of a profile.
func NewForProfile(cfg *config.Profile, timeout time.Duration) (*http.Client, error) {
	var p *config.ProxyConfig
	if cfg != nil {
		p = cfg.GetProxyConfig()
	}
	return New(Options{Timeout: timeout, Proxy: p})
}

type userAgentTransport struct {
	next http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", UserAgent)
	}
	return t.next.RoundTrip(req)
}

// configureProxy sets up proxy configuration on the transport.
func configureProxy(transport *http.Transport, cfg *config.ProxyConfig) error {
	// SOCKS5 takes precedence
	if cfg.SOCKS5Proxy != "" {
		return configureSocks5Proxy(transport, cfg.SOCKS5Proxy)
	}

	transport.Proxy = func(req *http.Request) (*url.URL, error) {
		return proxyFunc(req, cfg)
	}
	return nil
}

func configureSocks5Proxy(transport *http.Transport, socks5URL string) error {
	proxyURL, err := url.Parse(socks5URL)
	if err != nil {
		return fmt.Errorf("parse SOCKS5 proxy URL: %w", err)
	}
	if proxyURL.Host == "" {
		return fmt.Errorf("SOCKS5 proxy URL %q has no host", maskProxyURL(socks5URL))
	}

	var auth *proxy.Auth
	if proxyURL.User != nil {
		password, _ := proxyURL.User.Password()
		auth = &proxy.Auth{
			User:     proxyURL.User.Username(),
			Password: password,
		}
	}

	dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, proxy.Direct)
	if err != nil {
		return fmt.Errorf("create SOCKS5 dialer: %w", err)
	}

	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
		return nil
	}
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}
	return nil
}

// proxyFunc returns the proxy URL for the given request.
func proxyFunc(req *http.Request, cfg *config.ProxyConfig) (*url.URL, error) {
	if shouldBypassProxy(req.URL.Host, cfg.NoProxy) {
		return nil, nil
	}

	var proxyURLStr string
	if req.URL.Scheme == "https" && cfg.HTTPSProxy != "" {
		proxyURLStr = cfg.HTTPSProxy
	} else if cfg.HTTPProxy != "" {
		proxyURLStr = cfg.HTTPProxy
	}

	if proxyURLStr == "" {
		return nil, nil
	}
	return url.Parse(proxyURLStr)
}

// shouldBypassProxy checks a host against a comma separated no_proxy list.
func shouldBypassProxy(host string, noProxy string) bool {
	if noProxy == "" {
		return false
	}

	hostOnly, _, err := net.SplitHostPort(host)
	if err != nil {
		hostOnly = host
	}
	hostOnly = strings.ToLower(hostOnly)

	for _, pattern := range strings.Split(noProxy, ",") {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		switch {
		case pattern == "":
			continue
		case pattern == "*":
			return true
		case hostOnly == pattern:
			return true
		case strings.HasPrefix(pattern, ".") && strings.HasSuffix(hostOnly, pattern):
			return true
		case strings.HasSuffix(hostOnly, "."+pattern):
			return true
		}
	}
	return false
}

// ProxyInfo returns a description of the configured proxy with credentials masked.
func ProxyInfo(cfg *config.ProxyConfig) string {
	if !cfg.HasProxy() {
		return "No proxy configured"
	}

	var parts []string
	if cfg.SOCKS5Proxy != "" {
		parts = append(parts, fmt.Sprintf("SOCKS5: %s", maskProxyURL(cfg.SOCKS5Proxy)))
	}
	if cfg.HTTPProxy != "" {
		parts = append(parts, fmt.Sprintf("HTTP: %s", maskProxyURL(cfg.HTTPProxy)))
	}
	if cfg.HTTPSProxy != "" {
		parts = append(parts, fmt.Sprintf("HTTPS: %s", maskProxyURL(cfg.HTTPSProxy)))
	}
	if cfg.NoProxy != "" {
		parts = append(parts, fmt.Sprintf("NoProxy: %s", cfg.NoProxy))
	}
	return strings.Join(parts, ", ")
}

func maskProxyURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if u.User != nil {
		username := u.User.Username()
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(username, "****")
		}
	}
	return u.String()
}
