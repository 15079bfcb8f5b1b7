// Campaign Dashboard - staged marketing campaign generation service
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Isha1703/campaign-dashboard/internal/agent"
	"github.com/Isha1703/campaign-dashboard/internal/api"
	"github.com/Isha1703/campaign-dashboard/internal/config"
	"github.com/Isha1703/campaign-dashboard/internal/media"
	"github.com/Isha1703/campaign-dashboard/internal/middleware"
	"github.com/Isha1703/campaign-dashboard/internal/pipeline"
	"github.com/Isha1703/campaign-dashboard/internal/session"
	"github.com/Isha1703/campaign-dashboard/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Live sessions are ephemeral: the store stays pollable across
	// restarts but in-flight sessions are not rehydrated.
	sessions := session.NewManager()

	// Probe for the primary model invoker; fall back to the simulator.
	sel := agent.Select(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
	runner := agent.NewRunner(sel)

	opts := pipeline.Options{
		MonitorWindow: cfg.MonitorWindow,
		StageTimeout:  cfg.StageTimeout,
	}
	if cfg.MediaServiceURL != "" {
		opts.Resolver = media.NewHTTPResolver(cfg.MediaServiceURL)
		opts.Poller = media.NewPoller(media.NewHTTPJobClient(cfg.MediaServiceURL), cfg.JobPollInterval, cfg.JobMaxWait)
		slog.Info("Media collaborator configured", "url", cfg.MediaServiceURL)
	} else {
		slog.Info("No media service configured, content locators pass through unresolved")
	}

	orch := pipeline.New(repo, sessions, runner, opts)

	// Initialize handlers.
	campaignHandler := api.NewCampaignHandler(repo, sessions, orch)
	progressSocket := api.NewProgressSocket(sessions, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	campaignHandler.RegisterRoutes(r)

	// WebSocket progress stream.
	r.Get("/ws/campaign/{sessionID}", progressSocket.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming progress connections stay open
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
