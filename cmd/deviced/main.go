// deviced - device session daemon
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

	"github.com/commandAGI/deviced/internal/api"
	"github.com/commandAGI/deviced/internal/bridge"
	"github.com/commandAGI/deviced/internal/config"
	"github.com/commandAGI/deviced/internal/device"
	"github.com/commandAGI/deviced/internal/session"
	"github.com/commandAGI/deviced/internal/store"
	"github.com/commandAGI/deviced/internal/stream"
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

	slog.Info("Starting deviced", "port", cfg.Port, "session", cfg.SessionName)

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

	policy, err := session.ParseErrorPolicy(cfg.ErrorPolicy)
	if err != nil {
		slog.Error("Invalid error policy", "error", err)
		os.Exit(1)
	}

	backend := &device.ShellBackend{ShellPath: cfg.ShellPath}
	ctrl := session.NewController(backend, session.Options{
		Name:         cfg.SessionName,
		RetryBudget:  cfg.RetryBudget,
		Policy:       policy,
		ArtifactRoot: cfg.ArtifactDir,
		Recorder:     repo,
		Logger:       logger,
	})

	producer := stream.NewProducer(stream.Config{
		SourceURL: cfg.Stream.SourceURL,
		FrameRate: cfg.Stream.FrameRate,
		Quality:   cfg.Stream.Quality,
		Scale:     cfg.Stream.Scale,
		Format:    stream.Encoding(cfg.Stream.Format),
		Width:     cfg.ScreenWidth,
		Height:    cfg.ScreenHeight,
	}, logger)
	if cfg.Stream.SourceURL != "" {
		producer.Start()
	} else {
		slog.Info("STREAM_URL not set, serving placeholder frames only")
	}

	dispatcher := bridge.NewDispatcher(ctrl, backend)
	bridgeServer := bridge.NewServer(bridge.Config{
		Password:         cfg.Bridge.Password,
		Shared:           cfg.Bridge.Shared,
		FrameRate:        cfg.Stream.FrameRate,
		Encoding:         stream.Encoding(cfg.Stream.Format),
		CompressionLevel: cfg.Bridge.CompressionLevel,
		AllowClipboard:   cfg.Bridge.AllowClipboard,
		ViewOnly:         cfg.Bridge.ViewOnly,
		AllowResize:      cfg.Bridge.AllowResize,
	}, producer, dispatcher, logger)

	apiHandler := api.NewHandler(ctrl, backend, producer, repo)

	// Setup router.
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	apiHandler.RegisterRoutes(r)

	// Display bridge endpoint.
	r.Get("/bridge", bridgeServer.ServeHTTP)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// Frame pushes are long-lived; no write timeout.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	bridgeServer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	if err := producer.Stop(); err != nil {
		// A worker that refuses to exit is a fatal condition.
		slog.Error("Frame producer did not stop", "error", err)
		os.Exit(1)
	}

	ctrl.Stop()

	slog.Info("Server stopped successfully")
}
