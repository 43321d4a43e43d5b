package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/omniaweb/hnmigrate/internal/archive"
	"github.com/omniaweb/hnmigrate/internal/backups"
	"github.com/omniaweb/hnmigrate/internal/config"
	"github.com/omniaweb/hnmigrate/internal/gateway"
	"github.com/omniaweb/hnmigrate/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newLoginCmd(opts *globalOptions) *cobra.Command {
	var (
		username    string
		password    string
		authService string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the configured gateway",
		Long: `Log in to the configured gateway and store the access token.

When the gateway offers a single auth service it is used automatically.
Otherwise pass --auth-service, or set one with 'hnmigrate config set-user'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadProfile()
			if err != nil {
				return err
			}
			client, err := opts.gatewayClient(cfg, opts.timeout, false)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			if username == "" {
				username = cfg.Username
			}
			if username == "" {
				if username, err = opts.prompt("Username: "); err != nil {
					return err
				}
			}
			if username == "" {
				return errors.New("username cannot be empty")
			}

			if authService == "" {
				authService = cfg.AuthServiceGUID
			}
			services, err := client.AuthServices(ctx)
			if err != nil {
				return err
			}
			guid, err := chooseAuthService(services, authService)
			if err != nil {
				return err
			}

			if password == "" {
				password = os.Getenv("HNMIGRATE_PASSWORD")
			}
			if password == "" {
				if password, err = opts.prompt("Password: "); err != nil {
					return err
				}
			}

			token, err := client.Login(ctx, gateway.LoginRequest{
				Username:        username,
				Password:        password,
				AuthServiceGUID: guid,
			})
			if err != nil {
				return err
			}

			cfg.Username = username
			cfg.AuthServiceGUID = guid
			cfg.AccessToken = token
			if err := opts.saveProfile(cfg); err != nil {
				return err
			}
			fmt.Fprintf(opts.stdout, "Logged in to %s as %s\n", cfg.BaseURL, username)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "username (default from config)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (default $HNMIGRATE_PASSWORD, else prompt)")
	cmd.Flags().StringVar(&authService, "auth-service", "", "auth service GUID")
	return cmd
}

// chooseAuthService picks want when the gateway offers it, or the only
// service when there is exactly one.
func chooseAuthService(services []gateway.AuthService, want string) (string, error) {
	if want != "" {
		for _, s := range services {
			if s.GUID == want {
				return want, nil
			}
		}
		return "", fmt.Errorf("auth service %s is not offered by the gateway", want)
	}

	switch len(services) {
	case 0:
		return "", errors.New("the gateway offers no auth service")
	case 1:
		return services[0].GUID, nil
	}

	labels := make([]string, 0, len(services))
	for _, s := range services {
		labels = append(labels, "  "+s.Label())
	}
	return "", fmt.Errorf("choose an auth service with --auth-service:\n%s", strings.Join(labels, "\n"))
}

func newLogoutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadProfile()
			if err != nil {
				return err
			}
			cfg.AccessToken = ""
			if err := opts.saveProfile(cfg); err != nil {
				return err
			}
			fmt.Fprintln(opts.stdout, "Logged out")
			return nil
		},
	}
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the gateway configuration export",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadProfile()
			if err != nil {
				return err
			}
			// Archives can be large; the signal context bounds the download.
			client, err := opts.gatewayClient(cfg, -1, true)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			target, err := archive.New(ctx, archiveConfig(cfg, outputDir), ".", opts.logger())
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}

			rc, err := client.Export(ctx)
			if err != nil {
				return err
			}
			defer rc.Close()

			location, err := target.Store(ctx, gateway.ExportFilename(time.Now()), rc)
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.stdout, "Export saved to %s\n", location)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "local directory (overrides the configured archive)")
	return cmd
}

// archiveConfig returns the configured archive, or a local one in dir when
// dir is set.
func archiveConfig(cfg *config.Profile, dir string) config.ArchiveConfig {
	if dir != "" {
		return config.ArchiveConfig{Dir: dir}
	}
	return cfg.Archive
}

func newMappingCmd(opts *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "mapping",
		Short: "Print the gateway's service mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadProfile()
			if err != nil {
				return err
			}
			client, err := opts.gatewayClient(cfg, opts.timeout, true)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			mapping, err := client.Mapping(ctx)
			if err != nil {
				return err
			}
			if output == "" {
				return mapping.Encode(opts.stdout, "  ")
			}
			return writeDocument(output, mapping)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newResetCmd(opts *globalOptions) *cobra.Command {
	var (
		secret string
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Wipe the gateway configuration",
		Long: `Wipe the gateway configuration. The gateway's reset secret is read from
--secret, $HNMIGRATE_RESET_SECRET or the config file, in that order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadProfile()
			if err != nil {
				return err
			}
			client, err := opts.gatewayClient(cfg, opts.timeout, true)
			if err != nil {
				return err
			}
			if secret == "" {
				secret = cfg.ResolveResetSecret()
			}
			if secret == "" {
				return errors.New("no reset secret configured")
			}

			if !yes {
				answer, err := opts.prompt(fmt.Sprintf("Reset the configuration of %s? Type 'yes' to confirm: ", cfg.BaseURL))
				if err != nil {
					return err
				}
				if answer != "yes" {
					return errors.New("reset cancelled")
				}
			}

			ctx, cancel := signalContext()
			defer cancel()

			resp, err := client.Reset(ctx, secret)
			if resp != nil {
				fmt.Fprintln(opts.stdout, resp.FormatReset())
			}
			return err
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "reset secret")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newBackupsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List, download and watch server-side configuration backups",
	}

	cmd.AddCommand(
		newBackupsListCmd(opts),
		newBackupsDownloadCmd(opts),
		newBackupsWatchCmd(opts),
	)
	return cmd
}

func newBackupsListCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadProfile()
			if err != nil {
				return err
			}
			client, err := opts.gatewayClient(cfg, opts.timeout, true)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout())
			defer cancel()

			list, err := client.Backups(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(opts.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			printBackups(opts, list, time.Now())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printBackups(opts *globalOptions, list []gateway.Backup, now time.Time) {
	if len(list) == 0 {
		fmt.Fprintln(opts.stdout, "No backups")
		return
	}
	for _, b := range list {
		fmt.Fprintf(opts.stdout, "%-28s %s\n", b.Timestamp, b.Describe(now))
	}
}

func newBackupsDownloadCmd(opts *globalOptions) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "download <timestamp>",
		Short: "Download one backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadProfile()
			if err != nil {
				return err
			}
			client, err := opts.gatewayClient(cfg, -1, true)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			backup := gateway.Backup{Timestamp: args[0]}
			listCtx, listCancel := context.WithTimeout(ctx, cfg.RequestTimeout())
			list, err := client.Backups(listCtx)
			listCancel()
			if err != nil {
				logger := opts.logger()
				logger.Debug().Err(err).Msg("backup list unavailable, using timestamp as name")
			}
			for _, b := range list {
				if b.Timestamp == args[0] {
					backup = b
					break
				}
			}

			target, err := archive.New(ctx, archiveConfig(cfg, outputDir), ".", opts.logger())
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}

			rc, err := client.DownloadBackup(ctx, backup.Timestamp)
			if err != nil {
				return err
			}
			defer rc.Close()

			location, err := target.Store(ctx, backup.Filename(), rc)
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.stdout, "Backup saved to %s\n", location)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "local directory (overrides the configured archive)")
	return cmd
}

func newBackupsWatchCmd(opts *globalOptions) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the backup list refreshed until interrupted",
		Long: `Keep the backup list refreshed until interrupted. A request that times out
stops automatic refresh; press Enter to refresh by hand and resume it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadProfile()
			if err != nil {
				return err
			}
			client, err := opts.gatewayClient(cfg, opts.timeout, true)
			if err != nil {
				return err
			}
			logger := opts.logger()

			reg := prometheus.NewRegistry()
			m, err := metrics.NewPrometheusMetrics(reg)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			if metricsAddr != "" {
				srv := &http.Server{
					Addr:              metricsAddr,
					Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
					ReadHeaderTimeout: 10 * time.Second,
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Error().Err(err).Msg("metrics server error")
					}
				}()
				defer srv.Close()
				logger.Info().Str("addr", metricsAddr).Msg("serving metrics")
			}

			poller := backups.NewPoller(client, backups.Config{
				Interval: cfg.RefreshInterval(),
				Timeout:  cfg.RequestTimeout(),
			}, func(s backups.Snapshot) {
				m.RecordBackupFetch(fetchOutcome(s.Err))
				printSnapshot(opts, s)
			}, logger)

			if err := poller.Start(ctx); err != nil {
				return err
			}
			defer func() { <-poller.Stop().Done() }()

			lines := make(chan struct{})
			go func() {
				for {
					if _, err := opts.prompt(""); err != nil {
						return
					}
					select {
					case lines <- struct{}{}:
					case <-ctx.Done():
						return
					}
				}
			}()

			for {
				select {
				case <-ctx.Done():
					fmt.Fprintln(opts.stdout, "\nStopping...")
					return nil
				case <-lines:
					poller.Refresh(ctx)
				}
			}
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func fetchOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeTimeout
	default:
		return metrics.OutcomeError
	}
}

func printSnapshot(opts *globalOptions, s backups.Snapshot) {
	fmt.Fprintf(opts.stdout, "\n[%s] ", s.FetchedAt.Format("15:04:05"))
	switch {
	case s.Err == nil:
		fmt.Fprintf(opts.stdout, "%d backups\n", len(s.Backups))
	case errors.Is(s.Err, context.DeadlineExceeded):
		fmt.Fprintln(opts.stdout, "request timed out, auto refresh paused (press Enter to retry)")
	default:
		fmt.Fprintf(opts.stdout, "refresh failed: %v\n", s.Err)
	}
	printBackups(opts, s.Backups, s.FetchedAt)
}
