// Package main is the entrypoint for the hnmigrate CLI.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/omniaweb/hnmigrate/internal/config"
	"github.com/omniaweb/hnmigrate/internal/gateway"
	"github.com/omniaweb/hnmigrate/internal/httpclient"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	verbose    bool
	jsonLogs   bool
	insecure   bool
	timeout    time.Duration

	stdin  io.Reader
	stdout io.Writer
	in     *bufio.Reader
}

func newRootCmd() *cobra.Command {
	return newRootCmdWithOptions(&globalOptions{stdin: os.Stdin, stdout: os.Stdout})
}

func newRootCmdWithOptions(opts *globalOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hnmigrate",
		Short: "Move Hypernode gateway configuration between gateways",
		Long: `hnmigrate exports the configuration of a Hypernode gateway, re-associates
its service identifiers with those of another gateway and imports it there.

Run 'hnmigrate config set-server <url>' and 'hnmigrate login' to begin.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ~/.hnmigrate/config.yml)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVar(&opts.jsonLogs, "json-logs", false, "write logs as JSON")
	flags.BoolVar(&opts.insecure, "insecure", false, "accept self-signed gateway certificates")
	flags.DurationVar(&opts.timeout, "timeout", httpclient.DefaultTimeout, "gateway request timeout")

	rootCmd.AddCommand(
		newVersionCmd(opts),
		newConfigCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newExportCmd(opts),
		newMappingCmd(opts),
		newBackupsCmd(opts),
		newResetCmd(opts),
		newPlanCmd(opts),
		newAssociateCmd(opts),
		newSectionsCmd(opts),
		newRewriteCmd(opts),
		newImportCmd(opts),
		newHistoryCmd(opts),
		newServeCmd(opts),
	)

	return rootCmd
}

func newVersionCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := opts.stdout
			fmt.Fprintf(out, "hnmigrate %s\n", Version)
			fmt.Fprintf(out, "  Commit:     %s\n", Commit)
			fmt.Fprintf(out, "  Built:      %s\n", BuildDate)
			fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// logger builds the CLI logger: human-readable on stderr unless JSON logs
// were asked for.
func (o *globalOptions) logger() zerolog.Logger {
	level := zerolog.InfoLevel
	if o.verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	if !o.jsonLogs {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return logger
}

func (o *globalOptions) path() (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	return config.DefaultConfigPath()
}

func (o *globalOptions) loadProfile() (*config.Profile, error) {
	path, err := o.path()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (o *globalOptions) saveProfile(cfg *config.Profile) error {
	path, err := o.path()
	if err != nil {
		return err
	}
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

func (o *globalOptions) httpClient(cfg *config.Profile, timeout time.Duration) (*http.Client, error) {
	return httpclient.New(httpclient.Options{
		Timeout:            timeout,
		Proxy:              cfg.GetProxyConfig(),
		InsecureSkipVerify: o.insecure,
	})
}

// gatewayClient returns a client for the configured gateway. With
// authenticated set, the profile must hold an access token.
func (o *globalOptions) gatewayClient(cfg *config.Profile, timeout time.Duration, authenticated bool) (*gateway.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w (run 'hnmigrate config set-server <url>')", err)
	}
	if authenticated && !cfg.IsAuthenticated() {
		return nil, errors.New("not logged in (run 'hnmigrate login')")
	}

	hc, err := o.httpClient(cfg, timeout)
	if err != nil {
		return nil, err
	}
	c := gateway.NewClient(cfg.BaseURL, hc, o.logger())
	c.SetToken(cfg.AccessToken)
	return c, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// prompt reads one trimmed line from the options' stdin.
func (o *globalOptions) prompt(label string) (string, error) {
	if o.in == nil {
		o.in = bufio.NewReader(o.stdin)
	}
	fmt.Fprint(o.stdout, label)
	line, err := o.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimSpace(line), nil
}

func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
