package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cbt-portal/exam-service/internal/models"
	"github.com/cbt-portal/exam-service/internal/repositories"
)

// ===== REQUEST/RESPONSE DTOs =====

type SubmitAnswerRequest struct {
	QuestionID uint `json:"question_id" validate:"required"`

	// Exactly one of the following carries the answer, depending on the
	// question type. Multi-select accepts either the id list or a
	// comma-delimited string in AnswerText.
	ChosenChoiceID    *uint  `json:"chosen_choice_id"`
	SelectedChoiceIDs []uint `json:"selected_choice_ids"`
	AnswerText        string `json:"answer_text" validate:"omitempty,max=2000"`
}

// AttemptResponse describes an in-progress or just-started attempt.
type AttemptResponse struct {
	AttemptID        uuid.UUID `json:"attempt_id"`
	ExamID           uuid.UUID `json:"exam_id"`
	ExamTitle        string    `json:"exam_title"`
	StartTime        time.Time `json:"start_time"`
	DurationMinutes  int       `json:"duration_minutes"`
	RemainingSeconds int       `json:"remaining_seconds"`
	TotalQuestions   int       `json:"total_questions"`
	IsCompleted      bool      `json:"is_completed"`
	Resumed          bool      `json:"resumed"`

	// Set when the start call found the attempt expired and finalized it.
	Message string                 `json:"message,omitempty"`
	Result  *AttemptResultResponse `json:"result,omitempty"`
}

// SubmitAnswerResponse reports the outcome of a single answer submission.
type SubmitAnswerResponse struct {
	QuestionID uint            `json:"question_id"`
	IsCorrect  bool            `json:"is_correct"`
	Score      decimal.Decimal `json:"score"`

	// Set when the submission found the attempt expired; the attempt was
	// finalized and this answer was not recorded.
	TimedOut bool                   `json:"timed_out,omitempty"`
	Message  string                 `json:"message,omitempty"`
	Result   *AttemptResultResponse `json:"result,omitempty"`
}

// AttemptResultResponse is the terminal outcome of an attempt.
type AttemptResultResponse struct {
	AttemptID      uuid.UUID       `json:"attempt_id"`
	ExamID         uuid.UUID       `json:"exam_id"`
	ExamTitle      string          `json:"exam_title"`
	Score          decimal.Decimal `json:"score"`
	CorrectAnswers int             `json:"correct_answers"`
	TotalQuestions int             `json:"total_questions"`
	Percentage     decimal.Decimal `json:"percentage"`
	PassMark       int             `json:"pass_mark"`
	Passed         bool            `json:"passed"`
	TimedOut       bool            `json:"timed_out"`
	StartTime      time.Time       `json:"start_time"`
	EndTime        *time.Time      `json:"end_time"`
}

// ChoiceForStudent is a choice with the correctness flag stripped.
type ChoiceForStudent struct {
	ID       uint      `json:"id"`
	PublicID uuid.UUID `json:"choice_id"`
	Text     string    `json:"text"`
}

// QuestionForStudent is a question as served to a test taker: no correct
// answer, no choice correctness, choices possibly shuffled per student.
type QuestionForStudent struct {
	ID       uint                `json:"id"`
	PublicID uuid.UUID           `json:"question_id"`
	Text     string              `json:"text"`
	Type     models.QuestionType `json:"type"`
	Points   decimal.Decimal     `json:"points"`
	Choices  []ChoiceForStudent  `json:"choices,omitempty"`
}

// AttemptQuestionsResponse carries the frozen assignment for an attempt.
type AttemptQuestionsResponse struct {
	AttemptID        uuid.UUID            `json:"attempt_id"`
	ExamID           uuid.UUID            `json:"exam_id"`
	ExamTitle        string               `json:"exam_title"`
	DurationMinutes  int                  `json:"duration_minutes"`
	RemainingSeconds int                  `json:"remaining_seconds"`
	Questions        []QuestionForStudent `json:"questions"`
}

// ===== EXAM DTOs =====

type ExamSummary struct {
	ID              uint      `json:"id"`
	PublicID        uuid.UUID `json:"exam_id"`
	Title           string    `json:"title"`
	Description     *string   `json:"description"`
	DurationMinutes int       `json:"duration_minutes"`
	PassMark        int       `json:"pass_mark"`
	StudentClass    string    `json:"student_class,omitempty"`
	QuestionCount   int       `json:"question_count"`
}

type ExamListResponse struct {
	Exams []*ExamSummary `json:"exams"`
	Total int64          `json:"total"`
}

// ExamValidationReport lists configuration issues that would make the exam
// ungradable or surprising for students.
type ExamValidationReport struct {
	ExamID uint     `json:"exam_id"`
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

type ExamPreviewResponse struct {
	ExamID    uint                 `json:"exam_id"`
	StudentID string               `json:"student_id"`
	Questions []QuestionForStudent `json:"questions"`
}

// ===== SERVICE INTERFACES =====

type ExamService interface {
	// ListAvailable returns active exams a student may start, ordered by title.
	ListAvailable(ctx context.Context, studentClass *string) (*ExamListResponse, error)
	GetByID(ctx context.Context, id uint) (*models.Exam, error)

	// Reporting and diagnostics
	GetStatistics(ctx context.Context, examID uint) (*repositories.ExamStatistics, error)
	ValidateConfiguration(ctx context.Context, examID uint) (*ExamValidationReport, error)
	PreviewStudentQuestions(ctx context.Context, examID uint, studentID string, limit int) (*ExamPreviewResponse, error)
}

type AttemptService interface {
	// Start begins a new attempt or resumes the student's in-progress one.
	// An in-progress attempt past its time limit is finalized instead, and
	// the response carries the result with an explanatory message.
	Start(ctx context.Context, examID uint, studentID string) (*AttemptResponse, error)

	// GetQuestionsForAttempt serves the frozen question assignment of the
	// student's in-progress attempt on the exam.
	GetQuestionsForAttempt(ctx context.Context, examID uint, studentID string) (*AttemptQuestionsResponse, error)

	SubmitAnswer(ctx context.Context, attemptID uint, req *SubmitAnswerRequest, studentID string) (*SubmitAnswerResponse, error)
	Submit(ctx context.Context, attemptID uint, studentID string) (*AttemptResultResponse, error)

	GetResult(ctx context.Context, attemptID uint, studentID string) (*AttemptResultResponse, error)
	History(ctx context.Context, studentID string, filters repositories.AttemptFilters) ([]*AttemptResultResponse, int64, error)

	// ReconcileExpired finalizes in-progress attempts whose time limit has
	// elapsed. Called by the scheduled sweep; returns the number finalized.
	ReconcileExpired(ctx context.Context, limit int) (int, error)
}

// GradingService evaluates answers and finalizes attempt scores. Its methods
// run inside the attempt service's transactions.
type GradingService interface {
	EvaluateAnswer(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt, question *models.Question, req *SubmitAnswerRequest) (*SubmitAnswerResponse, error)
	FinalizeAttempt(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt, exam *models.Exam, timedOut bool) (*AttemptResultResponse, error)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	Exam() ExamService
	Attempt() AttemptService
	Grading() GradingService

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
