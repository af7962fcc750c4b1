package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/manorfm/mcpauth/internal/infrastructure/metrics"
	"github.com/manorfm/mcpauth/internal/infrastructure/repository"
	httprouter "github.com/manorfm/mcpauth/internal/interfaces/http"
	"github.com/manorfm/mcpauth/internal/resource"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the authorization server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := loadCredentials(cfg, logger)
			if err != nil {
				return err
			}

			repos, err := repository.NewRepositories(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer repos.Close()

			router := httprouter.NewRouter(ctx, repos, store, metrics.NewRecorder(), cfg, logger)
			return run(ctx, fmt.Sprintf(":%d", cfg.ServerPort), router, logger.With(zap.String("server", "authorization")))
		},
	}
}

func newResourceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resource",
		Short: "Run the protected tool server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			verifier := resource.NewIntrospectionVerifier(cfg.IntrospectionURL, cfg.IntrospectionTimeout, logger)
			router, err := httprouter.NewResourceRouter(ctx, verifier, metrics.NewRecorder(), cfg, logger)
			if err != nil {
				return err
			}
			return run(ctx, fmt.Sprintf(":%d", cfg.ResourcePort), router, logger.With(zap.String("server", "resource")))
		},
	}
}

// run serves handler until ctx is cancelled, then shuts down gracefully
func run(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited properly")
	return nil
}
