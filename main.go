package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/cbt-portal/exam-service/internal/cache"
	"github.com/cbt-portal/exam-service/internal/config"
	"github.com/cbt-portal/exam-service/internal/events"
	"github.com/cbt-portal/exam-service/internal/handlers"
	"github.com/cbt-portal/exam-service/internal/repositories/postgres"
	"github.com/cbt-portal/exam-service/internal/services"
	"github.com/cbt-portal/exam-service/internal/utils"
	"github.com/cbt-portal/exam-service/internal/validator"
	"github.com/cbt-portal/exam-service/pkg"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	slogLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	logger := utils.NewSlogLogger(slogLogger)

	// Initialize database
	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize Redis (if configured); caching degrades gracefully without it
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			log.Printf("Warning: Failed to initialize Redis: %v", err)
		}
	}
	cacheManager := cache.NewCacheManager(redisClient)

	// Initialize repositories
	repoManager := postgres.NewRepositoryManager(postgres.RepositoryConfig{
		DB:          db,
		RedisClient: redisClient,
	})
	if err := repoManager.Initialize(); err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}

	// Initialize validator
	validator := validator.New()

	// Initialize event publisher
	var publisher events.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err = events.NewKafkaPublisher(cfg.KafkaBrokers, slogLogger)
		if err != nil {
			log.Fatalf("Failed to initialize Kafka publisher: %v", err)
		}
	} else {
		publisher = events.NewGoChannelPublisher(slogLogger)
	}

	// Initialize services
	serviceManager := services.NewServiceManager(db, repoManager.GetRepository(), slogLogger, validator, cacheManager, publisher)
	if err := serviceManager.Initialize(context.Background()); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	// Expired-attempt sweep: finalizes in-progress attempts whose time limit
	// elapsed without the student ever coming back.
	var sweeper *cron.Cron
	if cfg.SweepSchedule != "" {
		sweeper = cron.New()
		_, err := sweeper.AddFunc(cfg.SweepSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			n, err := serviceManager.Attempt().ReconcileExpired(ctx, cfg.SweepBatch)
			if err != nil {
				slogLogger.Error("expired attempt sweep failed", "error", err)
				return
			}
			if n > 0 {
				slogLogger.Info("expired attempt sweep finished", "finalized", n)
			}
		})
		if err != nil {
			log.Fatalf("Invalid sweep schedule %q: %v", cfg.SweepSchedule, err)
		}
		sweeper.Start()
	}

	// Initialize handlers
	handlerManager := handlers.NewHandlerManager(serviceManager, validator, logger, cfg.JWTSecret)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handlers.SetupMiddleware(router, logger)
	handlerManager.SetupRoutes(router)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if sweeper != nil {
		<-sweeper.Stop().Done()
	}

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if err := serviceManager.Shutdown(ctx); err != nil {
		log.Printf("Failed to shutdown services: %v", err)
	}

	if err := repoManager.Shutdown(ctx); err != nil {
		log.Printf("Failed to shutdown repositories: %v", err)
	}

	if redisClient != nil {
		redisClient.Close()
	}

	logger.Info("Server exited")
}
