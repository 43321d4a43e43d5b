package main

import (
	"fmt"

	"github.com/omniaweb/hnmigrate/internal/archive"
	"github.com/omniaweb/hnmigrate/internal/config"
	"github.com/omniaweb/hnmigrate/internal/gateway"
	"github.com/omniaweb/hnmigrate/internal/httpclient"
	"github.com/spf13/cobra"
)

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the gateway profile",
	}

	cmd.AddCommand(
		newConfigShowCmd(opts),
		newConfigSetServerCmd(opts),
		newConfigSetUserCmd(opts),
		newConfigSetArchiveCmd(opts),
	)

	return cmd
}

func newConfigShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadProfile()
			if err != nil {
				return err
			}
			path, _ := opts.path()
			out := opts.stdout

			fmt.Fprintf(out, "Config file:   %s\n\n", path)
			if cfg.BaseURL == "" {
				fmt.Fprintln(out, "No gateway configured. Run 'hnmigrate config set-server <url>' to set one up.")
				return nil
			}

			fmt.Fprintf(out, "Gateway:       %s\n", cfg.BaseURL)
			fmt.Fprintf(out, "Username:      %s\n", cfg.Username)
			if cfg.AuthServiceGUID != "" {
				fmt.Fprintf(out, "Auth service:  %s\n", cfg.AuthServiceGUID)
			}
			fmt.Fprintf(out, "Access token:  %s\n", maskSecret(cfg.AccessToken))
			fmt.Fprintf(out, "Reset secret:  %s\n", maskSecret(cfg.ResolveResetSecret()))
			fmt.Fprintf(out, "Proxy:         %s\n", httpclient.ProxyInfo(cfg.GetProxyConfig()))
			if cfg.Archive.IsS3() {
				fmt.Fprintf(out, "Archive:       s3://%s/%s\n", cfg.Archive.Bucket, cfg.Archive.Prefix)
			} else if cfg.Archive.Dir != "" {
				fmt.Fprintf(out, "Archive:       %s\n", cfg.Archive.Dir)
			}
			fmt.Fprintf(out, "Backups:       refresh every %s, timeout %s\n", cfg.RefreshInterval(), cfg.RequestTimeout())
			return nil
		},
	}
}

func newConfigSetServerCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-server <url>",
		Short: "Set the gateway URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadProfile()
			if err != nil {
				return err
			}

			baseURL := gateway.NormalizeBaseURL(args[0])
			if baseURL != cfg.BaseURL {
				// A token is only valid for the gateway that issued it.
				cfg.AccessToken = ""
			}
			cfg.BaseURL = baseURL
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid server URL: %w", err)
			}

			if err := opts.saveProfile(cfg); err != nil {
				return err
			}
			fmt.Fprintf(opts.stdout, "Gateway set to: %s\n", cfg.BaseURL)
			return nil
		},
	}
}

func newConfigSetUserCmd(opts *globalOptions) *cobra.Command {
	var authService string

	cmd := &cobra.Command{
		Use:   "set-user <username>",
		Short: "Set the login username and, optionally, the auth service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadProfile()
			if err != nil {
				return err
			}
			cfg.Username = args[0]
			if cmd.Flags().Changed("auth-service") {
				cfg.AuthServiceGUID = authService
			}
			if err := opts.saveProfile(cfg); err != nil {
				return err
			}
			fmt.Fprintf(opts.stdout, "Username set to: %s\n", cfg.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&authService, "auth-service", "", "auth service GUID")
	return cmd
}

func newConfigSetArchiveCmd(opts *globalOptions) *cobra.Command {
	var a config.ArchiveConfig

	cmd := &cobra.Command{
		Use:   "set-archive",
		Short: "Choose where exports and backups are stored",
		Long: `Choose where exports and downloaded backups are stored: a local directory
with --dir, or an S3 compatible bucket with --bucket.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.IsS3() {
				if err := archive.ValidateS3(a); err != nil {
					return err
				}
			}

			cfg, err := opts.loadProfile()
			if err != nil {
				return err
			}
			cfg.Archive = a
			if err := opts.saveProfile(cfg); err != nil {
				return err
			}

			switch {
			case a.IsS3():
				fmt.Fprintf(opts.stdout, "Archive set to: s3://%s/%s\n", a.Bucket, a.Prefix)
			case a.Dir != "":
				fmt.Fprintf(opts.stdout, "Archive set to: %s\n", a.Dir)
			default:
				fmt.Fprintln(opts.stdout, "Archive reset to the current directory")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&a.Dir, "dir", "", "local directory")
	f.StringVar(&a.Bucket, "bucket", "", "S3 bucket")
	f.StringVar(&a.Prefix, "prefix", "", "S3 key prefix")
	f.StringVar(&a.Region, "region", "", "S3 region")
	f.StringVar(&a.Endpoint, "endpoint", "", "S3 endpoint for compatible stores")
	f.StringVar(&a.AccessKeyID, "access-key-id", "", "S3 access key ID")
	f.StringVar(&a.SecretAccessKey, "secret-access-key", "", "S3 secret access key")
	f.BoolVar(&a.UsePathStyle, "path-style", false, "use path-style S3 addressing")
	cmd.MarkFlagsMutuallyExclusive("dir", "bucket")

	return cmd
}
