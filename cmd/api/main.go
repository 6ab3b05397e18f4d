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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/quicknotes/quicknotes/internal/auth"
	"github.com/quicknotes/quicknotes/internal/background"
	"github.com/quicknotes/quicknotes/internal/config"
	"github.com/quicknotes/quicknotes/internal/database"
	"github.com/quicknotes/quicknotes/internal/handlers"
	"github.com/quicknotes/quicknotes/internal/middleware"
	"github.com/quicknotes/quicknotes/internal/repositories"
	"github.com/quicknotes/quicknotes/internal/routes"
	"github.com/quicknotes/quicknotes/internal/services"
	pkghttp "github.com/quicknotes/quicknotes/pkg/http"
	pkglogger "github.com/quicknotes/quicknotes/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		pkglogger.RedactedAttr("database_dsn", cfg.Database.DSN(), cfg.Server.Env),
	)

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	tokenRepo := repositories.NewTokenRepository(db)
	noteRepo := repositories.NewNoteRepository(db)

	// Core auth plumbing
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)
	totpEngine := auth.NewTOTPEngine(cfg.Auth.TOTPIssuer)
	auditLogger := pkglogger.NewAuditLogger(logger)

	emailService, err := services.NewSESEmailService(
		cfg.Email.AWSRegion,
		cfg.Email.FromAddress,
		cfg.Email.FrontendURL,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	// Services
	tokenService := services.NewTokenService(tokenRepo, cfg.Auth, logger)
	authService := services.NewAuthService(userRepo, tokenService, tokenManager, totpEngine, emailService, logger, auditLogger)
	twoFactorService := services.NewTwoFactorService(userRepo, totpEngine, cfg.Auth.BackupCodeCount, logger, auditLogger)
	userService := services.NewUserService(userRepo, tokenService, logger, auditLogger)
	noteService := services.NewNoteService(noteRepo, userRepo, logger)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	twoFactorHandler := handlers.NewTwoFactorHandler(twoFactorService)
	noteHandler := handlers.NewNoteHandler(noteService)
	userHandler := handlers.NewUserHandler(userService)

	// Background token reaper
	cleanupManager := background.NewCleanupManager(tokenService, logger, cfg.Auth.CleanupInterval)

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.RealIP(&pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}))
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middleware.CORS(corsConfig))
	router.Use(middleware.SecureLogger(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, twoFactorHandler, noteHandler, userHandler, tokenManager, userRepo)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}
		stats := db.Stats()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","database":"up","pool":{"total_conns":%d,"idle_conns":%d,"acquired_conns":%d}}`,
			stats.TotalConns(), stats.IdleConns(), stats.AcquiredConns())
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
