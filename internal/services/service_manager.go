package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gorm.io/gorm"

	"github.com/cbt-portal/exam-service/internal/cache"
	"github.com/cbt-portal/exam-service/internal/events"
	"github.com/cbt-portal/exam-service/internal/repositories"
	"github.com/cbt-portal/exam-service/internal/validator"
)

// serviceManager implements ServiceManager
type serviceManager struct {
	db           *gorm.DB
	repo         repositories.Repository
	logger       *slog.Logger
	validator    *validator.Validator
	cacheManager *cache.CacheManager
	publisher    events.EventPublisher

	examService    ExamService
	attemptService AttemptService
	gradingService GradingService

	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a service manager with all dependencies
func NewServiceManager(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, cacheManager *cache.CacheManager, publisher events.EventPublisher) ServiceManager {
	return &serviceManager{
		db:           db,
		repo:         repo,
		logger:       logger,
		validator:    validator,
		cacheManager: cacheManager,
		publisher:    publisher,
	}
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	sm.gradingService = NewGradingService(sm.db, sm.repo, sm.logger)
	sm.attemptService = NewAttemptService(sm.repo, sm.db, sm.logger, sm.validator, sm.gradingService, sm.publisher)
	sm.examService = NewExamService(sm.repo, sm.db, sm.logger, sm.cacheManager)

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")

	return nil
}

func (sm *serviceManager) Exam() ExamService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.examService
}

func (sm *serviceManager) Attempt() AttemptService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.attemptService
}

func (sm *serviceManager) Grading() GradingService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.gradingService
}

func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}

	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if sm.publisher != nil {
		if err := sm.publisher.Close(); err != nil {
			sm.logger.Error("Failed to close event publisher", "error", err)
		}
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down completed")

	return nil
}
