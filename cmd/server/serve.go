package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agrisense/cropdoc/internal/crophealth"
	"github.com/agrisense/cropdoc/internal/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves the diagnosis API:
  GET  /health    health check
  GET  /catalog   disease catalog with remedies
  POST /analyze   diagnose an uploaded photo (multipart field "image")
  POST /classify  diagnose a JSON color feature vector

Models are loaded on the first request.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	svc := crophealth.FromConfig(cfg, logger)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("closing models", zap.Error(err))
		}
	}()

	h := handlers.NewHandler(svc, cfg.Server.MaxUploadBytes, logger)
	router, err := handlers.NewRouter(h, cfg.Server.RateLimit)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("verifier_model", cfg.Models.VerifierModel),
			zap.String("disease_model", cfg.Models.DiseaseModel))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
