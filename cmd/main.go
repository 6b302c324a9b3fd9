package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/fluent/internal/api"
	"github.com/satriahrh/fluent/internal/app"
	"github.com/satriahrh/fluent/internal/config"
	"github.com/satriahrh/fluent/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize adapters
	backends, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize backends", zap.Error(err))
	}
	defer backends.Close()

	// Initialize WebSocket hub; every connection is one conversation session
	hub := websocket.NewHub(backends.Pipeline, app.HubConfig(cfg), logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	cleanup := websocket.NewSessionCleanupService(hub, cfg.Session.IdleTimeout.Duration, logger)
	cleanup.Start()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	api.InitRoutes(e, hub, api.Services{
		SpeechToText: backends.SpeechToText,
		TextToSpeech: backends.TextToSpeech,
		Chat:         backends.Chat,
		AudioConfig:  app.AudioConfig(cfg),
	}, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Server.Port),
		zap.String("defaultProvider", string(cfg.DefaultProvider())),
		zap.String("speechBackend", cfg.Speech.Backend),
		zap.String("synthesisBackend", cfg.Synthesis.Backend))

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cleanup.Stop()
	stopHub()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
