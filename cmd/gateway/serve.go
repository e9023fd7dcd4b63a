package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"lens_gateway/internal/httpapi"
	"lens_gateway/internal/providers"
)

func serveCmd() *cobra.Command {
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			deps, err := httpapi.NewDependencies(ctx, cfg)
			if err != nil {
				return err
			}
			defer deps.Close()

			// Vendor calls may take the whole provider timeout; leave room to
			// write the envelope afterwards.
			vendorTimeout := cfg.Provider.RequestTimeout
			if vendorTimeout <= 0 {
				vendorTimeout = providers.DefaultRequestTimeout
			}
			writeTimeout := vendorTimeout + 15*time.Second

			addr := ":" + cfg.HTTPPort
			server := &http.Server{
				Addr:         addr,
				Handler:      httpapi.NewRouter(deps),
				ReadTimeout:  30 * time.Second,
				WriteTimeout: writeTimeout,
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("lens gateway listening")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}

			log.Info().Msg("shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("server forced to shutdown")
			}
			log.Info().Msg("server exited")
			return nil
		},
	}

	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "Grace period for in-flight requests")

	return cmd
}
