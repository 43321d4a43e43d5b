// Package gateway provides an HTTP client for the /api/v2 surface of a
// Hypernode gateway.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/omniaweb/hnmigrate/internal/document"
	"github.com/rs/zerolog"
)

// APIPrefix is prepended to every endpoint path.
const APIPrefix = "/api/v2"

// maxErrorBody bounds how much of a failed response is kept in a StatusError.
const maxErrorBody = 64 << 10

var (
	// ErrNoAccessToken is returned when a login response carries no token.
	ErrNoAccessToken = errors.New("access token not found in login response")
	// ErrNotAuthenticated is returned by authenticated calls made without a token.
	ErrNotAuthenticated = errors.New("not logged in")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

// Client talks to one gateway.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a client for baseURL. A nil httpClient uses
// http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    NormalizeBaseURL(baseURL),
		httpClient: httpClient,
		logger:     logger.With().Str("component", "gateway_client").Logger(),
	}
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken sets the bearer token used by authenticated calls.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	return c.token
}

// AuthServices lists the authentication services a user can log in with.
// The endpoint needs no token.
func (c *Client) AuthServices(ctx context.Context) ([]AuthService, error) {
	doc, err := c.getDocument(ctx, "/server/auth-services", false)
	if err != nil {
		return nil, fmt.Errorf("get auth services: %w", err)
	}
	return NormalizeAuthServices(doc), nil
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	AuthServiceGUID string `json:"authServiceGuid"`
}

// Login authenticates and stores the returned token on the client.
func (c *Client) Login(ctx context.Context, req LoginRequest) (string, error) {
	body := document.NewObject()
	body.Set("username", document.String(req.Username))
	body.Set("password", document.String(req.Password))
	body.Set("authServiceGuid", document.String(req.AuthServiceGUID))

	resp, err := c.do(ctx, http.MethodPost, "/login", body, false, nil)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("login: read response: %w", err)
	}
	if err := checkStatus(resp, data); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}

	doc, _ := document.Parse(data, document.FormatJSON)
	token := AccessToken(doc)
	if token == "" {
		return "", ErrNoAccessToken
	}
	c.token = token
	c.logger.Info().Str("username", req.Username).Msg("logged in")
	return token, nil
}

// Export streams the gateway's configuration export archive. The caller
// closes the returned reader.
func (c *Client) Export(ctx context.Context) (io.ReadCloser, error) {
	rc, err := c.stream(ctx, "/export")
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return rc, nil
}

// Mapping fetches the gateway's current service mapping.
func (c *Client) Mapping(ctx context.Context) (*document.Value, error) {
	doc, err := c.getDocument(ctx, "/mapping", true)
	if err != nil {
		return nil, fmt.Errorf("get mapping: %w", err)
	}
	return doc, nil
}

// Import submits an import body. When the gateway answers with an error
// status but a JSON body, both the decoded response and a *StatusError are
// returned.
func (c *Client) Import(ctx context.Context, body *document.Value) (*Response, error) {
	resp, err := c.submit(ctx, "/import", body, nil)
	if err != nil {
		return resp, fmt.Errorf("import: %w", err)
	}
	return resp, nil
}

// Reset wipes the gateway configuration. It needs the server's reset secret.
func (c *Client) Reset(ctx context.Context, secret string) (*Response, error) {
	if secret == "" {
		return nil, errors.New("reset: secret is required")
	}
	resp, err := c.submit(ctx, "/reset", nil, http.Header{"X-Reset-Secret": {secret}})
	if err != nil {
		return resp, fmt.Errorf("reset: %w", err)
	}
	return resp, nil
}

// Backups lists the server-side configuration backups.
func (c *Client) Backups(ctx context.Context) ([]Backup, error) {
	doc, err := c.getDocument(ctx, "/backups", true)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	return NormalizeBackups(doc), nil
}

// DownloadBackup streams one backup archive. The caller closes the returned
// reader.
func (c *Client) DownloadBackup(ctx context.Context, timestamp string) (io.ReadCloser, error) {
	if strings.TrimSpace(timestamp) == "" {
		return nil, errors.New("download backup: empty timestamp")
	}
	rc, err := c.stream(ctx, "/backups/"+url.PathEscape(timestamp))
	if err != nil {
		return nil, fmt.Errorf("download backup %s: %w", timestamp, err)
	}
	return rc, nil
}

func (c *Client) getDocument(ctx context.Context, path string, auth bool) (*document.Value, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, auth, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkStatus(resp, data); err != nil {
		return nil, err
	}

	doc, err := document.Parse(data, document.FormatJSON)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return doc, nil
}

// submit posts body and decodes the gateway's result envelope, keeping it on
// error statuses.
func (c *Client) submit(ctx context.Context, path string, body *document.Value, header http.Header) (*Response, error) {
	resp, err := c.do(ctx, http.MethodPost, path, body, true, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var result *Response
	if doc, perr := document.Parse(data, document.FormatJSON); perr == nil {
		result = ParseResponse(doc)
	}
	if err := checkStatus(resp, data); err != nil {
		return result, err
	}
	return result, nil
}

func (c *Client) stream(ctx context.Context, path string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, true, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return resp.Body, nil
}

func (c *Client) do(ctx context.Context, method, path string, body *document.Value, auth bool, header http.Header) (*http.Response, error) {
	if c.baseURL == "" {
		return nil, errors.New("base URL is not set")
	}
	if auth && c.token == "" {
		return nil, ErrNotAuthenticated
	}

	var reader io.Reader
	if body != nil {
		data, err := body.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+APIPrefix+path, reader)
	if err != nil {
		return nil, err
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug().Str("method", method).Str("path", APIPrefix+path).Msg("gateway request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func checkStatus(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return &StatusError{Code: resp.StatusCode, Body: text}
}
