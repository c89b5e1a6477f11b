// Command server runs the grade dashboard: the server-rendered views, the JSON
// API and the operational endpoints.
//
// @title Gradewatch API
// @version 1.0
// @description Predicted grades, academic risk and study recommendations per student.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZanzyTHEbar/gradewatch/internal/config"
	"github.com/ZanzyTHEbar/gradewatch/internal/monitoring"
	"github.com/ZanzyTHEbar/gradewatch/internal/types"
	"github.com/gin-gonic/gin"
)

const healthCheckInterval = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := monitoring.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger.Logger)
	gin.SetMode(cfg.GinMode)

	if err := types.RegisterValidators(); err != nil {
		slog.Error("Failed to register validators", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *monitoring.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	r, err := a.router()
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	a.health.Start(ctx, healthCheckInterval)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.SystemLogger("server_start", "listening on :"+cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server exited")
	return nil
}
