package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/cbt-portal/exam-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type ExamFilters struct {
	IsActive     *bool   `json:"is_active"`
	StudentClass *string `json:"student_class"`
	Limit        int     `json:"limit"`
	Offset       int     `json:"offset"`
	SortBy       string  `json:"sort_by"`    // "created_at", "title"
	SortOrder    string  `json:"sort_order"` // "asc", "desc"
}

type AttemptFilters struct {
	IsCompleted *bool      `json:"is_completed"`
	StudentID   *string    `json:"student_id"`
	ExamID      *uint      `json:"exam_id"`
	DateFrom    *time.Time `json:"date_from"`
	DateTo      *time.Time `json:"date_to"`
	Limit       int        `json:"limit"`
	Offset      int        `json:"offset"`
	SortBy      string     `json:"sort_by"`
	SortOrder   string     `json:"sort_order"`
}

// ===== SHARED STATISTICS STRUCTS =====

type ExamStatistics struct {
	TotalQuestionsAvailable    int                            `json:"total_questions_available"`
	QuestionsToAsk             int                            `json:"questions_to_ask"`
	RandomizationEnabled       bool                           `json:"randomization_enabled"`
	ChoiceRandomizationEnabled bool                           `json:"choice_randomization_enabled"`
	QuestionTypeDistribution   map[models.QuestionType]int    `json:"question_type_distribution"`
	DifficultyDistribution     map[models.DifficultyLevel]int `json:"difficulty_distribution"`
}

// ===== REPOSITORY INTERFACES =====

// ExamRepository covers exam reads and the administrative writes the grading
// core tolerates between attempts.
type ExamRepository interface {
	Create(ctx context.Context, tx *gorm.DB, exam *models.Exam) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error)
	GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error)
	Update(ctx context.Context, tx *gorm.DB, exam *models.Exam) error

	ListActive(ctx context.Context, tx *gorm.DB, filters ExamFilters) ([]*models.Exam, int64, error)
	List(ctx context.Context, tx *gorm.DB, filters ExamFilters) ([]*models.Exam, int64, error)
	CountQuestions(ctx context.Context, tx *gorm.DB, examID uint) (int64, error)
}

type QuestionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, question *models.Question) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error)
	// GetByIDWithChoices preloads the choice set used by grading.
	GetByIDWithChoices(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error)
	Update(ctx context.Context, tx *gorm.DB, question *models.Question) error

	// GetByExam returns the exam's full pool in stable persisted order.
	GetByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.Question, error)
	// GetByIDs returns questions preserving the order of ids (the frozen
	// assignment order of an attempt).
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error)

	GetChoice(ctx context.Context, tx *gorm.DB, choiceID uint) (*models.Choice, error)
}

type AttemptRepository interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error)
	// GetByIDForUpdate locks the attempt row for the duration of the
	// surrounding transaction, serializing mutating calls per attempt.
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error)
	Update(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error

	// GetActiveAttempt returns the single in-progress attempt for the pair,
	// or a not-found error.
	GetActiveAttempt(ctx context.Context, tx *gorm.DB, examID uint, studentID string) (*models.ExamAttempt, error)
	HasCompletedAttempt(ctx context.Context, tx *gorm.DB, examID uint, studentID string) (bool, error)

	List(ctx context.Context, tx *gorm.DB, filters AttemptFilters) ([]*models.ExamAttempt, int64, error)
	GetCompletedByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters AttemptFilters) ([]*models.ExamAttempt, int64, error)

	// ListExpiredInProgress returns in-progress attempts whose exam duration
	// elapsed before the cutoff; used by the reconciliation sweep.
	ListExpiredInProgress(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.ExamAttempt, error)
}

type AnswerRepository interface {
	Create(ctx context.Context, tx *gorm.DB, answer *models.StudentAnswer) error
	Update(ctx context.Context, tx *gorm.DB, answer *models.StudentAnswer) error

	// GetByAttemptAndQuestion returns the single non-summary row for types
	// with upsert semantics, or a not-found error.
	GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.StudentAnswer, error)
	// DeleteByAttemptAndQuestion clears all rows for a question within an
	// attempt (multi-select rewrites).
	DeleteByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) error

	// GetByAttempt returns every answer row with its question preloaded.
	GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.StudentAnswer, error)
}
