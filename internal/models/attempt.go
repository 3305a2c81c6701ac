package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ExamAttempt records one student's instance of taking one exam.
//
// Lifecycle: created on the first start call, mutated by answer submissions
// and by completion, never deleted in normal operation (audit trail). At most
// one completed attempt may exist per (exam, student).
type ExamAttempt struct {
	ID       uint      `json:"id" gorm:"primaryKey"`
	PublicID uuid.UUID `json:"attempt_id" gorm:"type:uuid;not null;uniqueIndex"`

	ExamID    uint   `json:"exam_id" gorm:"not null;uniqueIndex:idx_attempt_exam_student"`
	StudentID string `json:"student_id" gorm:"not null;size:255;uniqueIndex:idx_attempt_exam_student"`

	StartTime time.Time  `json:"start_time" gorm:"not null"`
	EndTime   *time.Time `json:"end_time"`

	Score       decimal.Decimal `json:"score" gorm:"type:decimal(7,2);not null;default:0.00"`
	IsCompleted bool            `json:"is_completed" gorm:"not null;default:false;index"`

	// AssignedQuestionIDs is the ordered question assignment frozen at attempt
	// start. Once populated it is immutable for the life of the attempt: a
	// resuming student must be served exactly this list.
	AssignedQuestionIDs datatypes.JSONSlice[uint] `json:"assigned_question_ids" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Exam    Exam            `json:"-" gorm:"foreignKey:ExamID"`
	Answers []StudentAnswer `json:"-" gorm:"foreignKey:AttemptID"`
}

// IsAssigned reports whether the question belongs to the frozen assignment.
func (a *ExamAttempt) IsAssigned(questionID uint) bool {
	for _, id := range a.AssignedQuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}

// Elapsed returns the time spent on the attempt so far, or the final duration
// once the attempt has ended.
func (a *ExamAttempt) Elapsed(now time.Time) time.Duration {
	if a.EndTime != nil {
		return a.EndTime.Sub(a.StartTime)
	}
	return now.Sub(a.StartTime)
}

// Expired reports whether the exam's time limit has elapsed. Expiry is
// detected lazily on each mutating call; there is no background timer in the
// request path.
func (a *ExamAttempt) Expired(now time.Time, durationMinutes int) bool {
	return a.Elapsed(now).Minutes() >= float64(durationMinutes)
}

// StudentAnswer records a student's answer to one question in one attempt.
//
// For multi-select questions there is one row per selected choice plus exactly
// one summary row (ChosenChoiceID nil) carrying the aggregate correctness and
// score. Only the summary row participates in totals; the per-choice rows are
// audit detail. For every other type there is at most one row per
// (attempt, question), maintained with upsert semantics.
type StudentAnswer struct {
	ID       uint      `json:"id" gorm:"primaryKey"`
	PublicID uuid.UUID `json:"answer_id" gorm:"type:uuid;not null;uniqueIndex"`

	AttemptID  uint `json:"attempt_id" gorm:"not null;index"`
	QuestionID uint `json:"question_id" gorm:"not null;index"`

	ChosenChoiceID *uint  `json:"chosen_choice_id"`
	AnswerText     string `json:"answer_text" gorm:"type:text"`

	IsCorrect bool            `json:"is_correct" gorm:"not null;default:false"`
	Score     decimal.Decimal `json:"score" gorm:"type:decimal(5,2);not null;default:0.00"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Attempt      ExamAttempt `json:"-" gorm:"foreignKey:AttemptID"`
	Question     Question    `json:"-" gorm:"foreignKey:QuestionID"`
	ChosenChoice *Choice     `json:"-" gorm:"foreignKey:ChosenChoiceID"`
}

// IsSummaryRow reports whether this is the aggregate row of a multi-select
// answer set.
func (sa *StudentAnswer) IsSummaryRow(questionType QuestionType) bool {
	return questionType == MultiSelect && sa.ChosenChoiceID == nil
}

func (ExamAttempt) TableName() string {
	return "exam_attempts"
}

func (StudentAnswer) TableName() string {
	return "student_answers"
}
