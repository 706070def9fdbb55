package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/emirozbir/micro-triage/internal/agent"
	"github.com/emirozbir/micro-triage/internal/api"
	"github.com/emirozbir/micro-triage/internal/config"
	"github.com/emirozbir/micro-triage/internal/database"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load(os.Getenv("TRIAGE_CONFIG"))
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Starting micro-triage server",
		zap.String("version", "0.1.0"),
		zap.String("source", cfg.Engine.Source),
		zap.String("alertmanager", cfg.AlertManager.URL),
		zap.Bool("notify", cfg.Notify.Enabled),
	)

	// Initialize database
	var (
		store   agent.Store
		archive api.Archive
	)
	if cfg.Database.Path != "" {
		db, err := database.New(cfg.Database.Path)
		if err != nil {
			logger.Fatal("Failed to initialize database", zap.Error(err))
		}
		defer db.Close()
		store, archive = db, db
		logger.Info("Database initialized", zap.String("path", cfg.Database.Path))
	} else {
		logger.Warn("Database path not set, archiving disabled")
	}

	// Initialize agent
	agentInstance, err := agent.NewAgent(cfg, logger, store)
	if err != nil {
		logger.Fatal("Failed to create agent", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if agentInstance.HasSources() {
		go agentInstance.Run(ctx, cfg.AlertManager.PollInterval)
	}

	// Setup HTTP server
	handler := api.NewHandler(agentInstance, logger, archive)
	router := api.SetupRoutes(handler, agentInstance.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server listening", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}
