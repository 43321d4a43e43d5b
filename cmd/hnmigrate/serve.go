package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/omniaweb/hnmigrate/internal/api"
	"github.com/omniaweb/hnmigrate/internal/api/handlers"
	"github.com/omniaweb/hnmigrate/internal/config"
	"github.com/omniaweb/hnmigrate/internal/history"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		listen      string
		historyPath string
		noHistory   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local API server and gateway proxy",
		Long: `Run the local API server: planning and rewrite endpoints under /api/v1, a
CORS-free gateway proxy under /__proxy, /health and /metrics.

Settings come from HNMIGRATE_ENV, HNMIGRATE_LISTEN, HNMIGRATE_RATE_LIMIT,
HNMIGRATE_RATE_PERIOD, HNMIGRATE_MAX_BODY_BYTES, HNMIGRATE_PROXY_TIMEOUT and
HNMIGRATE_CORS_ORIGINS.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			srvCfg := config.LoadServerConfig()
			if listen != "" {
				srvCfg.ListenAddr = listen
			}
			return runServer(opts, srvCfg, historyPath, noHistory)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default $HNMIGRATE_LISTEN or 127.0.0.1:8787)")
	cmd.Flags().StringVar(&historyPath, "history", "", "import history database (default ~/.hnmigrate/history.db)")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not keep an import history")
	return cmd
}

func runServer(opts *globalOptions, srvCfg config.ServerConfig, historyPath string, noHistory bool) error {
	if srvCfg.IsProduction() {
		opts.jsonLogs = true
		gin.SetMode(gin.ReleaseMode)
	}
	logger := opts.logger().With().Str("version", Version).Logger()

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting hnmigrate server")

	ctx, cancel := signalContext()
	defer cancel()

	var store handlers.HistoryStore
	if !noHistory {
		s, err := openHistory(historyPath, logger)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	profile, err := opts.loadProfile()
	if err != nil {
		return err
	}
	// Proxied requests are bounded by ProxyTimeout, imports by the caller.
	gatewayClient, err := opts.httpClient(profile, -1)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	routerCfg := api.ConfigFromServer(srvCfg)
	routerCfg.GatewayClient = gatewayClient
	routerCfg.Version = Version
	routerCfg.Commit = Commit
	routerCfg.BuildDate = BuildDate

	router, err := api.NewRouter(routerCfg, store, reg, logger)
	if err != nil {
		return fmt.Errorf("create router: %w", err)
	}

	srv := &http.Server{
		Addr:              srvCfg.ListenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      srvCfg.ProxyTimeout + 30*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srvCfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("Server stopped gracefully")
	return nil
}

func openHistory(path string, logger zerolog.Logger) (*history.Store, error) {
	if path == "" {
		p, err := config.DefaultHistoryPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	s, err := history.Open(path, logger)
	if err != nil {
		return nil, fmt.Errorf("open import history: %w", err)
	}
	return s, nil
}
