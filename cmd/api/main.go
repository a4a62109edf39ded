package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bastionsec/bastion/internal/auth"
	"github.com/bastionsec/bastion/internal/background"
	"github.com/bastionsec/bastion/internal/config"
	"github.com/bastionsec/bastion/internal/database"
	"github.com/bastionsec/bastion/internal/firewall"
	"github.com/bastionsec/bastion/internal/geo"
	"github.com/bastionsec/bastion/internal/handlers"
	middlewareCustom "github.com/bastionsec/bastion/internal/middleware"
	"github.com/bastionsec/bastion/internal/repositories"
	"github.com/bastionsec/bastion/internal/routes"
	"github.com/bastionsec/bastion/internal/services"
	pkghttp "github.com/bastionsec/bastion/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Apply migrations
	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	migrateCancel()

	// Initialize repositories
	blockRepo := repositories.NewIPBlockRepository(db)
	whitelistRepo := repositories.NewWhitelistRepository(db)
	attemptRepo := repositories.NewLoginAttemptRepository(db)
	eventRepo := repositories.NewFirewallEventRepository(db)
	profileRepo := repositories.NewUserProfileRepository(db)
	anomalyRepo := repositories.NewAnomalyRepository(db)
	geoCacheRepo := repositories.NewGeoCacheRepository(db)
	auditRepo := repositories.NewAuditEventRepository(db)

	// Geo resolution: ip-api.com behind the database cache
	geoResolver := geo.NewCachedResolver(
		geo.NewIPAPIResolver(cfg.Geo.LookupTimeout),
		geoCacheRepo,
		cfg.Geo.CacheTTL,
		cfg.Geo.LookupTimeout,
		logger,
	)

	// Operator notifications: SES in production, log sink otherwise
	var notifier services.Notifier
	if cfg.Email.Enabled {
		sesNotifier, err := services.NewAWSSESNotifier(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	} else {
		notifier = services.NewLogNotifier(logger)
	}

	// Token manager for the operator API
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	// Initialize services
	auditService := services.NewAuditService(auditRepo, logger)

	throttleService := services.NewThrottleService(
		blockRepo,
		attemptRepo,
		whitelistRepo,
		geoResolver,
		auditService,
		notifier,
		services.ThrottleConfig{
			FailureWindow: cfg.Throttle.FailureWindow,
			Tiers:         services.DefaultTiers(),
			OperatorEmail: cfg.Email.OperatorEmail,
		},
		logger,
	)

	profilerService := services.NewProfilerService(
		profileRepo,
		anomalyRepo,
		geoResolver,
		throttleService,
		notifier,
		auditService,
		services.ProfilerConfig{
			Enabled:       cfg.Profiler.Enabled,
			OperatorEmail: cfg.Email.OperatorEmail,
		},
		logger,
	)

	whitelistService := services.NewWhitelistService(whitelistRepo, auditService)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	firewallService := services.NewFirewallService(
		firewall.NewInspector(),
		eventRepo,
		whitelistRepo,
		auth.NewAdminGate(tokenManager),
		geoResolver,
		ipConfig,
		cfg.Firewall,
		logger,
	)

	// Initialize handlers
	loginHandler := handlers.NewLoginGuardHandler(throttleService, profilerService)
	blockHandler := handlers.NewBlockHandler(throttleService, blockRepo)
	whitelistHandler := handlers.NewWhitelistHandler(whitelistService)
	attemptHandler := handlers.NewAttemptHandler(attemptRepo)
	anomalyHandler := handlers.NewAnomalyHandler(profilerService, anomalyRepo)
	eventHandler := handlers.NewEventHandler(eventRepo, auditService)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(
		blockRepo,
		attemptRepo,
		eventRepo,
		geoCacheRepo,
		logger,
		cfg.Throttle.CleanupInterval,
		cfg.Throttle.AttemptRetention,
		cfg.Throttle.EventRetention,
	)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Health check with database, in front of the firewall
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Everything else sits behind the firewall
	router.Group(func(r chi.Router) {
		r.Use(middlewareCustom.Firewall(firewallService))
		routes.RegisterRoutes(r, loginHandler, blockHandler, whitelistHandler, attemptHandler, anomalyHandler, eventHandler, tokenManager)
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
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
