// Package config provides configuration management for hnmigrate.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the backups poller.
const (
	DefaultBackupsRefreshInterval = 60 * time.Second
	DefaultBackupsRequestTimeout  = 8 * time.Second
)

// DefaultConfigDir returns the default config directory (~/.hnmigrate).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".hnmigrate"), nil
}

// DefaultConfigPath returns the default config file path (~/.hnmigrate/config.yml).
func DefaultConfigPath() (string, error) {
	return defaultFile("config.yml")
}

// DefaultHistoryPath returns the default import history database path.
func DefaultHistoryPath() (string, error) {
	return defaultFile("history.db")
}

// DefaultSessionPath returns the default migration session path.
func DefaultSessionPath() (string, error) {
	return defaultFile("session.json")
}

func defaultFile(name string) (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ProxyConfig holds outbound proxy settings.
type ProxyConfig struct {
	HTTPProxy   string `yaml:"http_proxy,omitempty"`
	HTTPSProxy  string `yaml:"https_proxy,omitempty"`
	SOCKS5Proxy string `yaml:"socks5_proxy,omitempty"`
	NoProxy     string `yaml:"no_proxy,omitempty"`
}

// HasProxy reports whether any proxy is configured.
func (p *ProxyConfig) HasProxy() bool {
	return p != nil && (p.HTTPProxy != "" || p.HTTPSProxy != "" || p.SOCKS5Proxy != "")
}

// ArchiveConfig selects where exports and downloaded backups are stored.
type ArchiveConfig struct {
	// Dir is a local directory. Used when Bucket is empty.
	Dir string `yaml:"dir,omitempty"`

	Bucket          string `yaml:"bucket,omitempty"`
	Prefix          string `yaml:"prefix,omitempty"`
	Region          string `yaml:"region,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	UsePathStyle    bool   `yaml:"use_path_style,omitempty"`
}

// IsS3 reports whether the archive targets a bucket.
func (a ArchiveConfig) IsS3() bool {
	return a.Bucket != ""
}

// Profile holds the CLI's connection to a gateway.
type Profile struct {
	BaseURL         string `yaml:"base_url,omitempty"`
	Username        string `yaml:"username,omitempty"`
	AuthServiceGUID string `yaml:"auth_service_guid,omitempty"`
	AccessToken     string `yaml:"access_token,omitempty"`
	ResetSecret     string `yaml:"reset_secret,omitempty"`

	Proxy   ProxyConfig   `yaml:"proxy,omitempty"`
	Archive ArchiveConfig `yaml:"archive,omitempty"`

	BackupsRefreshInterval time.Duration `yaml:"backups_refresh_interval,omitempty"`
	BackupsRequestTimeout  time.Duration `yaml:"backups_request_timeout,omitempty"`
}

// Validate checks that the profile can reach a gateway.
func (c *Profile) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url %q is not an absolute URL", c.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url scheme %q is not supported", u.Scheme)
	}
	if c.BackupsRefreshInterval < 0 || c.BackupsRequestTimeout < 0 {
		return errors.New("backups intervals must not be negative")
	}
	return nil
}

// IsAuthenticated returns true if the profile holds a token for a gateway.
func (c *Profile) IsAuthenticated() bool {
	return c.BaseURL != "" && c.AccessToken != ""
}

// GetProxyConfig returns the proxy settings, or nil when none are set.
func (c *Profile) GetProxyConfig() *ProxyConfig {
	if !c.Proxy.HasProxy() {
		return nil
	}
	p := c.Proxy
	return &p
}

// RefreshInterval returns the backups auto refresh interval.
func (c *Profile) RefreshInterval() time.Duration {
	if c.BackupsRefreshInterval > 0 {
		return c.BackupsRefreshInterval
	}
	return DefaultBackupsRefreshInterval
}

// RequestTimeout returns the backups request timeout.
func (c *Profile) RequestTimeout() time.Duration {
	if c.BackupsRequestTimeout > 0 {
		return c.BackupsRequestTimeout
	}
	return DefaultBackupsRequestTimeout
}

// ResolveResetSecret returns the reset secret from HNMIGRATE_RESET_SECRET,
// falling back to the profile.
func (c *Profile) ResolveResetSecret() string {
	if v := strings.TrimSpace(os.Getenv("HNMIGRATE_RESET_SECRET")); v != "" {
		return v
	}
	return c.ResetSecret
}

// Load reads the profile from the given path.
// If the file does not exist, an empty profile is returned.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Profile{}, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Profile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return &cfg, nil
}

// LoadDefault loads the profile from the default path.
func LoadDefault() (*Profile, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Save writes the profile to the given path, creating directories as needed.
func (c *Profile) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// Tokens and the reset secret live here.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}
