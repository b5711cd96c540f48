package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskable/infrastructure/config"
	"taskable/infrastructure/di"
	"taskable/pkg/observability"

	"go.uber.org/zap"
)

func main() {
	// Initialize context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Tracing goes first so the tracer handed to the remote clients exports
	shutdownTracing := func(context.Context) error { return nil }
	if cfg.EnableTracing {
		shutdownTracing, err = observability.InitTracing(ctx, "taskable", cfg.OTLPEndpoint)
		if err != nil {
			log.Fatalf("Failed to initialize tracing: %v", err)
		}
	}

	// Initialize dependency container
	container, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	logger := container.Logger

	// Push preference edits, including ones made to the file by hand
	container.Preferences.OnChange(container.WebSocket.PublishPreferences)
	if err := container.Preferences.Watch(); err != nil {
		logger.Warn("Preference file watching disabled", zap.Error(err))
	}

	go container.Hub.Run(ctx)

	// Bind the synchronizer for whoever is signed in, then keep tokens fresh
	if err := container.Session.Refresh(ctx); err != nil {
		logger.Error("Initial session refresh failed", zap.Error(err))
	}
	go container.Session.Run(ctx, cfg.SessionRefreshInterval)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      container.Router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting server",
			zap.String("address", cfg.ServerAddress),
			zap.String("environment", cfg.Environment),
			zap.String("backend", cfg.RemoteBackend),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	// Clean up resources
	cancel()
	container.Session.Close()
	container.Synchronizer.Wait()
	container.Preferences.Stop()
	container.WebSocket.Close()

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("Tracer shutdown error", zap.Error(err))
	}

	if err := logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	log.Println("Server stopped")
}
