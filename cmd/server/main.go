// Agente Sofía - conversational agenda server
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/johpaz/smart-calendar-assistant/internal/api"
	"github.com/johpaz/smart-calendar-assistant/internal/app"
	"github.com/johpaz/smart-calendar-assistant/internal/config"
	"github.com/johpaz/smart-calendar-assistant/internal/identity"
	"github.com/johpaz/smart-calendar-assistant/internal/middleware"
	"github.com/johpaz/smart-calendar-assistant/web"
)

func main() {
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	agenda, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		slog.Error("Failed to initialize agenda", "error", err)
		os.Exit(1)
	}
	defer agenda.Close()

	conversationLogger, err := api.NewConversationLogger(api.ConversationLogConfig{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}

	// Initialize handlers.
	handler := api.NewHandler(api.Deps{
		Router:             agenda.Router,
		Events:             agenda.Events,
		Assistant:          agenda.Assistant,
		Limiter:            api.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration),
		ConversationLog:    conversationLogger,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		MaxAudioSize:       cfg.MaxAudioSize,
		AllowedOrigins:     cfg.CORSOrigins,
		IsDev:              cfg.IsDevelopment(),
		Location:           agenda.Location,
	})
	defer handler.Close()

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	handler.RegisterRoutes(r)

	// Serve embedded chat page (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout for websocket chat
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

	if agenda.Maintenance != nil {
		agenda.Maintenance.Start(ctx)
	}

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
		return
	}

	slog.Info("Server stopped successfully")
}
