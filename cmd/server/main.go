package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Brownie44l1/fer-service/internal/config"
	"github.com/Brownie44l1/fer-service/internal/handlers"
	"github.com/Brownie44l1/fer-service/internal/logger"
	"github.com/Brownie44l1/fer-service/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(2)
	}

	slog.SetDefault(logger.New(cfg.Env,
		logger.WithLevel(cfg.LogLevel),
		logger.WithLogFile(cfg.LogFile),
	))

	if err := run(cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	slog.Info("Loading model", "path", cfg.ModelPath)

	modelServer, err := model.Load(cfg.ModelPath, model.Options{
		LibraryPath:    cfg.ONNXRuntimeLib,
		IntraOpThreads: cfg.IntraOpThreads,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize model server: %w", err)
	}
	defer modelServer.Close()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := handlers.NewHandler(modelServer, modelServer.Path(),
		handlers.WithMaxUploadBytes(cfg.MaxUploadBytes))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handlers.NewRouter(handler),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "port", cfg.Port, "classes", model.Classes)
		slog.Info("Endpoints",
			"health", "GET /health",
			"predict", "POST /predict (multipart 'file' or 'image')",
			"predict_tensor", "POST /predict/tensor")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}
