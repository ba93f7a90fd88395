package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/instant-tutor/backend/internal/api/handlers"
	"github.com/instant-tutor/backend/internal/auth"
	"github.com/instant-tutor/backend/internal/metrics"
	appLogger "github.com/instant-tutor/backend/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Instant Tutor API server", zap.String("mode", cfg.Mode))

	metrics.Init()

	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to configure authentication: %w", err)
	}
	if cfg.Auth.Mode != "jwt" && len(cfg.Auth.Tokens) == 0 {
		appLogger.Warn("No bearer tokens configured; protected endpoints will reject every request")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	comps, err := bootstrap(ctx, cfg, !cfg.IsDemo())
	if err != nil {
		return err
	}

	// workers outlive the signal context so Shutdown can drain them
	if comps.queue != nil {
		comps.queue.Start(context.Background())
	}

	deps := comps.routerDeps()
	deps.Verifier = verifier
	app, stopLimiter := handlers.NewApp(deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(addr)
	}()

	select {
	case err = <-listenErr:
		if err != nil {
			appLogger.Error("Server failed", zap.Error(err))
		}
	case <-ctx.Done():
		appLogger.Info("Server shutting down gracefully...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if shutdownErr := app.ShutdownWithContext(shutdownCtx); shutdownErr != nil {
		appLogger.Warn("HTTP shutdown incomplete", zap.Error(shutdownErr))
	}
	stopLimiter()

	if comps.queue != nil {
		if shutdownErr := comps.queue.Shutdown(shutdownCtx); shutdownErr != nil {
			appLogger.Warn("Ingestion queue did not drain", zap.Error(shutdownErr))
		}
	}

	comps.close(shutdownCtx)
	appLogger.Info("Server stopped")

	return err
}
