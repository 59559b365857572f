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

	"famsync/internal/config"
	"famsync/internal/database"
	"famsync/internal/handlers"
	"famsync/internal/logging"
	"famsync/internal/remote"
	"famsync/internal/remote/firestore"
	"famsync/internal/remote/memory"
	"famsync/internal/remote/mongostore"
	"famsync/internal/repository"
	"famsync/internal/scheduler"
	"famsync/internal/security"
	"famsync/internal/service"
)

func main() {
	// Load configuration
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.IsProduction())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Initialize the local cache (supports sqlite, postgres, mysql)
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("database connection established", zap.String("type", cfg.DatabaseType))

	// Run migrations
	applied, err := db.RunMigrations(ctx, cfg.MigrationsPath)
	if err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("migrations completed", zap.Strings("applied", applied))

	// Connect the remote document store
	store, err := openRemote(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect remote store", zap.String("backend", cfg.RemoteBackend), zap.Error(err))
	}
	defer store.Close()

	logger.Info("remote store connected", zap.String("backend", cfg.RemoteBackend))

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(db)
	familyRepo := repository.NewFamilyRepository(db)
	userRepo := repository.NewUserRepository(db)
	eventRepo := repository.NewEventRepository(db)

	// Initialize services
	emailService, err := service.NewEmailService(ctx, cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.EmailDebug, logger)
	if err != nil {
		logger.Fatal("failed to initialize email service", zap.Error(err))
	}

	tokens := security.NewTokenManager(cfg.JWTSecret, cfg.SessionDuration)
	authService := service.NewAuthService(accountRepo, tokens, logger)
	familyService := service.NewFamilyService(store, familyRepo, authService, emailService, logger)
	userService := service.NewUserService(store, userRepo, logger)
	eventService := service.NewEventService(store, eventRepo, cfg.MirrorEvents, logger)
	registrationService := service.NewRegistrationService(authService, familyService, userService, emailService, logger)

	// Start the family revalidation job
	jobs := scheduler.NewScheduler(familyService, logger)
	if err := jobs.Start(cfg.RefreshSchedule); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}

	limiter := security.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	defer limiter.Stop()

	var pinger remote.Pinger
	if p, ok := store.(remote.Pinger); ok {
		pinger = p
	}

	// Setup routes
	access := handlers.NewFamilyAccess(familyService, userService, logger)
	routes := &handlers.Routes{
		Middleware: handlers.NewMiddleware(authService, logger),
		Auth:       handlers.NewAuthHandler(authService, registrationService, logger),
		Families:   handlers.NewFamilyHandler(familyService, access, logger),
		Access:     access,
		Events:     handlers.NewEventHandler(eventService, logger),
		Live:       handlers.NewLiveHandler(eventService, logger),
		Users:      handlers.NewUserHandler(userService, logger),
		Health:     handlers.NewHealthHandler(db, pinger, logger),
		RateLimit:  limiter.Limit,
	}
	mux := http.NewServeMux()
	routes.Register(mux)

	// Wrap with logging middleware
	handler := handlers.Logging(logger)(mux)

	// Start server. WriteTimeout is left unset so live streams stay open.
	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down")

	// Live streams end with a going-away close frame before the listener closes
	eventService.Close()
	jobs.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// openRemote connects the configured remote backend
func openRemote(ctx context.Context, cfg *config.Config, logger *zap.Logger) (remote.Store, error) {
	switch cfg.RemoteBackend {
	case "firestore":
		return firestore.New(ctx, cfg.FirestoreProjectID, cfg.FirestoreCredentialsFile, logger)
	case "mongo", "mongodb":
		return mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	case "memory":
		logger.Warn("using in-memory remote store; data is lost on exit")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported remote backend: %s", cfg.RemoteBackend)
	}
}
