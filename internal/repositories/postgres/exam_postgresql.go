package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/cbt-portal/exam-service/internal/cache"
	"github.com/cbt-portal/exam-service/internal/models"
	"github.com/cbt-portal/exam-service/internal/repositories"
)

// ExamPostgreSQL implements the ExamRepository interface
type ExamPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewExamPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.ExamRepository {
	return &ExamPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cacheManager,
	}
}

func (e *ExamPostgreSQL) Create(ctx context.Context, tx *gorm.DB, exam *models.Exam) error {
	db := e.getDB(tx)
	if err := db.WithContext(ctx).Create(exam).Error; err != nil {
		return fmt.Errorf("failed to create exam: %w", err)
	}

	cache.InvalidateExamCache(ctx, e.cacheManager, exam.ID)
	return nil
}

// GetByID retrieves exam metadata without the question pool. Cached only
// outside transactions; a transactional reader must see rows as of its own
// snapshot, not a cache entry of unknown age.
func (e *ExamPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	if tx != nil {
		return e.fetchByID(ctx, tx, id)
	}

	cacheKey := fmt.Sprintf("id:%d", id)
	var exam models.Exam

	err := e.cacheManager.Exam.CacheOrExecute(ctx, cacheKey, &exam, cache.ExamCacheConfig.TTL, func() (interface{}, error) {
		return e.fetchByID(ctx, e.db, id)
	})
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}

	return &exam, nil
}

func (e *ExamPostgreSQL) fetchByID(ctx context.Context, db *gorm.DB, id uint) (*models.Exam, error) {
	var exam models.Exam
	if err := db.WithContext(ctx).First(&exam, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	return &exam, nil
}

// GetByIDWithQuestions retrieves an exam with its full question pool and
// choices, in stable persisted order. Never cached; grading reads this
// inside transactions and must see current data.
func (e *ExamPostgreSQL) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	db := e.getDB(tx)
	var exam models.Exam
	if err := db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("questions.id ASC")
		}).
		Preload("Questions.Choices", func(db *gorm.DB) *gorm.DB {
			return db.Order("choices.id ASC")
		}).
		First(&exam, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get exam with questions: %w", err)
	}
	return &exam, nil
}

func (e *ExamPostgreSQL) Update(ctx context.Context, tx *gorm.DB, exam *models.Exam) error {
	db := e.getDB(tx)
	if err := db.WithContext(ctx).Save(exam).Error; err != nil {
		return fmt.Errorf("failed to update exam: %w", err)
	}

	cache.InvalidateExamCache(ctx, e.cacheManager, exam.ID)
	return nil
}

// ListActive returns active exams matching the filters.
func (e *ExamPostgreSQL) ListActive(ctx context.Context, tx *gorm.DB, filters repositories.ExamFilters) ([]*models.Exam, int64, error) {
	active := true
	filters.IsActive = &active
	return e.List(ctx, tx, filters)
}

func (e *ExamPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.ExamFilters) ([]*models.Exam, int64, error) {
	db := e.getDB(tx)
	var exams []*models.Exam
	var total int64

	query := db.WithContext(ctx).Model(&models.Exam{})
	query = e.helpers.ApplyExamFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count exams: %w", err)
	}

	query = e.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&exams).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list exams: %w", err)
	}

	return exams, total, nil
}

func (e *ExamPostgreSQL) CountQuestions(ctx context.Context, tx *gorm.DB, examID uint) (int64, error) {
	db := e.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.Question{}).
		Where("exam_id = ?", examID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count exam questions: %w", err)
	}
	return count, nil
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func (e *ExamPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return e.db
}
