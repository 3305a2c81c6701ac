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

type QuestionPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewQuestionPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.QuestionRepository {
	return &QuestionPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cacheManager,
	}
}

// Create creates a new question and invalidates related caches
func (q *QuestionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	db := q.getDB(tx)
	if err := db.WithContext(ctx).Create(question).Error; err != nil {
		return fmt.Errorf("failed to create question: %w", err)
	}

	cache.InvalidateQuestionCache(ctx, q.cacheManager, question.ExamID, question.ID)
	return nil
}

func (q *QuestionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	db := q.getDB(tx)
	var question models.Question
	if err := db.WithContext(ctx).First(&question, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return &question, nil
}

// GetByIDWithChoices retrieves a question with its choices preloaded in
// stable persisted order.
func (q *QuestionPostgreSQL) GetByIDWithChoices(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	db := q.getDB(tx)
	var question models.Question
	if err := db.WithContext(ctx).
		Preload("Choices", func(db *gorm.DB) *gorm.DB {
			return db.Order("choices.id ASC")
		}).
		First(&question, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get question with choices: %w", err)
	}
	return &question, nil
}

func (q *QuestionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	db := q.getDB(tx)
	if err := db.WithContext(ctx).Save(question).Error; err != nil {
		return fmt.Errorf("failed to update question: %w", err)
	}

	cache.InvalidateQuestionCache(ctx, q.cacheManager, question.ExamID, question.ID)
	return nil
}

// GetByExam returns the exam's full question pool with choices in stable
// persisted order. The deterministic assignment depends on this ordering.
func (q *QuestionPostgreSQL) GetByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.Question, error) {
	db := q.getDB(tx)
	var questions []*models.Question
	if err := db.WithContext(ctx).
		Where("exam_id = ?", examID).
		Preload("Choices", func(db *gorm.DB) *gorm.DB {
			return db.Order("choices.id ASC")
		}).
		Order("id ASC").
		Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to get questions by exam: %w", err)
	}
	return questions, nil
}

// GetByIDs returns questions with choices, reordered to match ids exactly.
// Missing ids are skipped rather than erroring; callers decide whether a
// shorter result is acceptable.
func (q *QuestionPostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	db := q.getDB(tx)
	var questions []*models.Question
	if err := db.WithContext(ctx).
		Where("id IN ?", ids).
		Preload("Choices", func(db *gorm.DB) *gorm.DB {
			return db.Order("choices.id ASC")
		}).
		Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to get questions by ids: %w", err)
	}

	byID := make(map[uint]*models.Question, len(questions))
	for _, question := range questions {
		byID[question.ID] = question
	}

	ordered := make([]*models.Question, 0, len(ids))
	for _, id := range ids {
		if question, ok := byID[id]; ok {
			ordered = append(ordered, question)
		}
	}

	return ordered, nil
}

func (q *QuestionPostgreSQL) GetChoice(ctx context.Context, tx *gorm.DB, choiceID uint) (*models.Choice, error) {
	db := q.getDB(tx)
	var choice models.Choice
	if err := db.WithContext(ctx).First(&choice, choiceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get choice: %w", err)
	}
	return &choice, nil
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func (q *QuestionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}
