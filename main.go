// main.go
// Carbon ledger field data API
// Serves field survey records and user administration over JWT-authenticated REST

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"carbonledger/auth"
	"carbonledger/cache"
	"carbonledger/config"
	"carbonledger/db"
	"carbonledger/events"
	"carbonledger/handlers"
	"carbonledger/logging"
	"carbonledger/middleware"
	"carbonledger/services"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("🚀 Starting carbon ledger API server",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	identities, closeCache, err := openIdentityCache(cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	publisher, closePublisher, err := openPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiration)
	logger.Info("🔐 JWT manager initialized", zap.Duration("expiration", cfg.JWT.Expiration))

	audit := services.NewAuditLogger(store, logger)
	directory := services.NewDirectory(store, identities, logger)
	fieldDataService := services.NewFieldDataService(store, directory, audit, logger)
	userService := services.NewUserService(store, directory, publisher, audit, logger)

	fieldDataHandler := handlers.NewFieldDataHandler(fieldDataService, cfg.Uploads, logger, cfg.IsDevelopment())
	userHandler := handlers.NewUserHandler(userService, cfg.Uploads.MaxBodySize, logger, cfg.IsDevelopment())

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	rateLimiter.CleanupOldLimiters(ctx, time.Hour)
	logger.Info("🛡️  Rate limiter initialized",
		zap.Int("requests", cfg.RateLimit.Requests),
		zap.Duration("window", cfg.RateLimit.Window),
	)

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, fieldDataHandler, userHandler, middleware.AuthMiddleware(jwtManager, directory, logger))

	// Apply global middleware
	handler := rateLimiter.Middleware()(mux)
	handler = middleware.CORSMiddleware(cfg.CORS.AllowedOrigins)(handler)
	handler = middleware.RequestLogger(logger)(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("✅ Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("🛑 Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("✅ Server stopped gracefully")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (db.Store, error) {
	if cfg.Store.Backend == config.BackendMemory {
		logger.Warn("⚠️  Using in-memory store, data is lost on restart")
		return db.NewMemoryDB(), nil
	}

	firestoreDB, err := db.NewFirestoreDB(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firestore: %w", err)
	}
	logger.Info("🔥 Firestore initialized", zap.String("project", cfg.Firebase.ProjectID))
	return firestoreDB, nil
}

func openIdentityCache(cfg *config.Config, logger *zap.Logger) (cache.IdentityCache, func(), error) {
	if cfg.Redis.Addr == "" {
		return cache.Nop{}, func() {}, nil
	}

	client, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("🧠 Identity cache connected", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))

	identities := cache.NewRedis(client, cfg.Redis.TTL)
	return identities, func() {
		if err := identities.Close(); err != nil {
			logger.Warn("failed to close Redis", zap.Error(err))
		}
	}, nil
}

func openPublisher(cfg *config.Config, logger *zap.Logger) (events.Publisher, func(), error) {
	if cfg.RabbitMQ.URL == "" {
		return events.NopPublisher{Logger: logger}, func() {}, nil
	}

	publisher, err := events.NewRabbitMQPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("📨 Event publisher connected", zap.String("queue", cfg.RabbitMQ.Queue))

	return publisher, func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("failed to close RabbitMQ", zap.Error(err))
		}
	}, nil
}
