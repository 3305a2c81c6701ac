package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	FillInBlank    QuestionType = "fill_blank"
	MultiSelect    QuestionType = "multi_select"
)

// AllQuestionTypes enumerates every gradable type. Grading switches over this
// set exhaustively; adding a type here without a grading branch is a bug.
var AllQuestionTypes = []QuestionType{MultipleChoice, TrueFalse, FillInBlank, MultiSelect}

func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChoice, TrueFalse, FillInBlank, MultiSelect:
		return true
	}
	return false
}

// HasChoices reports whether correctness for this type is carried by
// Choice.IsCorrect flags rather than by a field on the question itself.
func (t QuestionType) HasChoices() bool {
	return t == MultipleChoice || t == TrueFalse || t == MultiSelect
}

type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
)

type Exam struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	PublicID    uuid.UUID `json:"exam_id" gorm:"type:uuid;not null;uniqueIndex"`
	Title       string    `json:"title" gorm:"not null;size:255;index" validate:"required,min=1,max=255"`
	Description *string   `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`

	DurationMinutes int    `json:"duration_minutes" gorm:"not null" validate:"required,min=1,max=600"`
	PassMark        int    `json:"pass_mark" gorm:"not null;default:50" validate:"min=0,max=100"`
	IsActive        bool   `json:"is_active" gorm:"not null;default:false;index"`
	StudentClass    string `json:"student_class" gorm:"size:50;index"`

	// Selection settings. A nil TotalQuestionsToAsk means the whole pool is served.
	TotalQuestionsToAsk *int `json:"total_questions_to_ask" validate:"omitempty,min=1"`
	RandomizeQuestions  bool `json:"randomize_questions" gorm:"not null;default:false"`
	RandomizeChoices    bool `json:"randomize_choices" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Questions []Question    `json:"questions,omitempty" gorm:"foreignKey:ExamID;constraint:OnDelete:CASCADE"`
	Attempts  []ExamAttempt `json:"-" gorm:"foreignKey:ExamID"`

	// Computed fields (not stored)
	QuestionsCount int `json:"questions_count,omitempty" gorm:"-"`
}

// QuestionsToAsk resolves the effective assignment size against a pool of the
// given size.
func (e *Exam) QuestionsToAsk(poolSize int) int {
	if e.TotalQuestionsToAsk != nil && *e.TotalQuestionsToAsk < poolSize {
		return *e.TotalQuestionsToAsk
	}
	return poolSize
}

type Question struct {
	ID       uint      `json:"id" gorm:"primaryKey"`
	PublicID uuid.UUID `json:"question_id" gorm:"type:uuid;not null;uniqueIndex"`
	ExamID   uint      `json:"exam_id" gorm:"not null;index"`

	Text   string          `json:"question_text" gorm:"type:text;not null" validate:"required"`
	Type   QuestionType    `json:"question_type" gorm:"not null;index;default:multiple_choice"`
	Points decimal.Decimal `json:"score_points" gorm:"type:decimal(5,2);not null;default:1.00"`

	// Canonical answer for fill-in-blank questions. Choice-backed types leave
	// this nil and carry correctness on Choice.IsCorrect.
	CorrectAnswer *string `json:"correct_answer,omitempty" gorm:"type:text"`

	Difficulty DifficultyLevel `json:"difficulty_level" gorm:"size:10;default:medium;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Exam    Exam     `json:"-" gorm:"foreignKey:ExamID"`
	Choices []Choice `json:"choices,omitempty" gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE"`
}

// CorrectChoiceIDs returns the ids of choices flagged correct. Empty for
// fill-in-blank or for misconfigured choice questions.
func (q *Question) CorrectChoiceIDs() map[uint]bool {
	ids := make(map[uint]bool)
	for _, c := range q.Choices {
		if c.IsCorrect {
			ids[c.ID] = true
		}
	}
	return ids
}

type Choice struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	PublicID   uuid.UUID `json:"choice_id" gorm:"type:uuid;not null;uniqueIndex"`
	QuestionID uint      `json:"question_id" gorm:"not null;index"`

	Text      string `json:"choice_text" gorm:"size:500;not null" validate:"required,max=500"`
	IsCorrect bool   `json:"is_correct,omitempty" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at"`

	// Relations
	Question Question `json:"-" gorm:"foreignKey:QuestionID"`
}

func (Exam) TableName() string {
	return "exams"
}

func (Question) TableName() string {
	return "questions"
}

func (Choice) TableName() string {
	return "choices"
}
