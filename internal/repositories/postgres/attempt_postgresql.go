package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cbt-portal/exam-service/internal/models"
	"github.com/cbt-portal/exam-service/internal/repositories"
)

// AttemptPostgreSQL implements the AttemptRepository interface. Attempt rows
// are never cached; mutating operations rely on row locks for correctness.
type AttemptPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	return nil
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error) {
	db := a.getDB(tx)
	var attempt models.ExamAttempt
	if err := db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return &attempt, nil
}

// GetByIDForUpdate locks the attempt row until the surrounding transaction
// ends, serializing concurrent mutating calls on the same attempt.
func (a *AttemptPostgreSQL) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error) {
	db := a.getDB(tx)
	var attempt models.ExamAttempt
	if err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&attempt, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock attempt: %w", err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) Update(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Save(attempt).Error; err != nil {
		return fmt.Errorf("failed to update attempt: %w", err)
	}
	return nil
}

func (a *AttemptPostgreSQL) GetActiveAttempt(ctx context.Context, tx *gorm.DB, examID uint, studentID string) (*models.ExamAttempt, error) {
	db := a.getDB(tx)
	var attempt models.ExamAttempt
	if err := db.WithContext(ctx).
		Where("exam_id = ? AND student_id = ? AND is_completed = false", examID, studentID).
		Order("start_time DESC").
		First(&attempt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active attempt: %w", err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) HasCompletedAttempt(ctx context.Context, tx *gorm.DB, examID uint, studentID string) (bool, error) {
	db := a.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.ExamAttempt{}).
		Where("exam_id = ? AND student_id = ? AND is_completed = true", examID, studentID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check completed attempt: %w", err)
	}
	return count > 0, nil
}

func (a *AttemptPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.ExamAttempt, int64, error) {
	db := a.getDB(tx)
	var attempts []*models.ExamAttempt
	var total int64

	query := db.WithContext(ctx).Model(&models.ExamAttempt{})
	query = a.helpers.ApplyAttemptFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count attempts: %w", err)
	}

	query = a.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Preload("Exam").Find(&attempts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list attempts: %w", err)
	}

	return attempts, total, nil
}

func (a *AttemptPostgreSQL) GetCompletedByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters repositories.AttemptFilters) ([]*models.ExamAttempt, int64, error) {
	completed := true
	filters.IsCompleted = &completed
	filters.StudentID = &studentID
	if filters.SortBy == "" {
		filters.SortBy = "end_time"
	}

	db := a.getDB(tx)
	var attempts []*models.ExamAttempt
	var total int64

	query := db.WithContext(ctx).Model(&models.ExamAttempt{})
	query = a.helpers.ApplyAttemptFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count completed attempts: %w", err)
	}

	// end_time is not a whitelisted default, order explicitly newest first
	query = query.Order("end_time DESC")
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Preload("Exam").Find(&attempts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to get completed attempts: %w", err)
	}

	return attempts, total, nil
}

// ListExpiredInProgress returns in-progress attempts whose exam duration had
// elapsed by now. Used by the reconciliation sweep to finalize abandoned
// attempts that never issued another request.
func (a *AttemptPostgreSQL) ListExpiredInProgress(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.ExamAttempt, error) {
	db := a.getDB(tx)
	var attempts []*models.ExamAttempt

	query := db.WithContext(ctx).
		Joins("JOIN exams ON exams.id = exam_attempts.exam_id").
		Where("exam_attempts.is_completed = false").
		Where("exam_attempts.start_time + make_interval(mins => exams.duration_minutes) <= ?", now).
		Order("exam_attempts.start_time ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to list expired attempts: %w", err)
	}

	return attempts, nil
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func (a *AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

// ===== ANSWER REPOSITORY IMPLEMENTATION =====

// AnswerPostgreSQL implements the AnswerRepository interface. Answer rows
// live inside attempt transactions and are never cached.
type AnswerPostgreSQL struct {
	db *gorm.DB
}

// NewAnswerPostgreSQL creates a new answer repository instance
func NewAnswerPostgreSQL(db *gorm.DB) repositories.AnswerRepository {
	return &AnswerPostgreSQL{db: db}
}

// Create creates a new student answer row
func (ar *AnswerPostgreSQL) Create(ctx context.Context, tx *gorm.DB, answer *models.StudentAnswer) error {
	db := ar.getDB(tx)
	if err := db.WithContext(ctx).Create(answer).Error; err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}
	return nil
}

// Update updates an existing answer row
func (ar *AnswerPostgreSQL) Update(ctx context.Context, tx *gorm.DB, answer *models.StudentAnswer) error {
	db := ar.getDB(tx)
	if err := db.WithContext(ctx).Save(answer).Error; err != nil {
		return fmt.Errorf("failed to update answer: %w", err)
	}
	return nil
}

// GetByAttemptAndQuestion retrieves the answer row for an attempt and
// question. Question types with upsert semantics keep a single row here.
func (ar *AnswerPostgreSQL) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.StudentAnswer, error) {
	db := ar.getDB(tx)
	var answer models.StudentAnswer
	if err := db.WithContext(ctx).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&answer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}
	return &answer, nil
}

// DeleteByAttemptAndQuestion removes every answer row for a question within
// an attempt. Multi-select resubmissions rewrite all their rows at once.
func (ar *AnswerPostgreSQL) DeleteByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) error {
	db := ar.getDB(tx)
	if err := db.WithContext(ctx).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		Delete(&models.StudentAnswer{}).Error; err != nil {
		return fmt.Errorf("failed to delete answers: %w", err)
	}
	return nil
}

// GetByAttempt retrieves all answer rows for an attempt with questions
// preloaded, in stable order.
func (ar *AnswerPostgreSQL) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.StudentAnswer, error) {
	db := ar.getDB(tx)
	var answers []*models.StudentAnswer
	if err := db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Preload("Question").
		Order("question_id ASC, id ASC").
		Find(&answers).Error; err != nil {
		return nil, fmt.Errorf("failed to get answers by attempt: %w", err)
	}
	return answers, nil
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func (ar *AnswerPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return ar.db
}
