package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kazewatari/anisync/internal/server"
	"github.com/kazewatari/anisync/pkg/logging"
)

const (
	serverReadTimeout  = 30 * time.Second
	serverWriteTimeout = 10 * time.Minute // a sync run holds the response until it finishes
	serverIdleTimeout  = 120 * time.Second
	shutdownTimeout    = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Serve starts an HTTP server exposing the sync pipeline:

  POST /api/sync           run a sync (query: season, year, force, cleanup)
  POST /api/cache/cleanup  purge expired cache entries
  GET  /healthz            liveness probe
  GET  /metrics            Prometheus metrics

API endpoints require the X-Api-Key header when an api_key is configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline()
		if err != nil {
			return err
		}
		defer p.close()

		logger := logging.NewLogger("server")
		srv := server.New(p.orch, p.cfg.APIKey, logger)

		httpServer := &http.Server{
			Addr:         p.cfg.ListenAddr,
			Handler:      srv.Router(),
			ReadTimeout:  serverReadTimeout,
			WriteTimeout: serverWriteTimeout,
			IdleTimeout:  serverIdleTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info().Str("addr", p.cfg.ListenAddr).Msg("Server listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-quit:
			logger.Info().Str("signal", sig.String()).Msg("Shutting down server")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}

		logger.Info().Msg("Server shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("listen-addr", ":8080", "address for the HTTP server to listen on")
	serveCmd.Flags().String("api-key", "", "shared secret required in the X-Api-Key header (empty disables auth)")

	viper.BindPFlag("listen_addr", serveCmd.Flags().Lookup("listen-addr"))
	viper.BindPFlag("api_key", serveCmd.Flags().Lookup("api-key"))

	rootCmd.AddCommand(serveCmd)
}
