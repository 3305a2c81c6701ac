package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cbt-portal/exam-service/internal/models"
	"github.com/cbt-portal/exam-service/internal/repositories"
)

type gradingService struct {
	db     *gorm.DB
	repo   repositories.Repository
	logger *slog.Logger
}

func NewGradingService(db *gorm.DB, repo repositories.Repository, logger *slog.Logger) GradingService {
	return &gradingService{
		db:     db,
		repo:   repo,
		logger: logger,
	}
}

// ===== ANSWER EVALUATION =====

// EvaluateAnswer grades one answer and persists its rows. Runs inside the
// caller's transaction; the attempt row is already locked and the question
// is known to belong to the frozen assignment.
func (s *gradingService) EvaluateAnswer(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt, question *models.Question, req *SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	if err := checkAnswerShape(question.Type, req); err != nil {
		return nil, err
	}

	switch question.Type {
	case models.FillInBlank:
		return s.evaluateFillBlank(ctx, tx, attempt, question, req)
	case models.MultipleChoice, models.TrueFalse:
		return s.evaluateChoice(ctx, tx, attempt, question, req)
	case models.MultiSelect:
		return s.evaluateMultiSelect(ctx, tx, attempt, question, req)
	default:
		return nil, NewValidationError(fmt.Sprintf("unsupported question type %q", question.Type), nil)
	}
}

// evaluateFillBlank compares normalized text. Full points on exact match,
// zero otherwise. One row per (attempt, question), upserted.
func (s *gradingService) evaluateFillBlank(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt, question *models.Question, req *SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	isCorrect := false
	if question.CorrectAnswer != nil {
		isCorrect = normalizeAnswer(req.AnswerText) == normalizeAnswer(*question.CorrectAnswer)
	}

	score := decimal.Zero
	if isCorrect {
		score = question.Points.Round(2)
	}

	answer := &models.StudentAnswer{
		AttemptID:  attempt.ID,
		QuestionID: question.ID,
		AnswerText: req.AnswerText,
		IsCorrect:  isCorrect,
		Score:      score,
	}
	if err := s.upsertAnswer(ctx, tx, answer); err != nil {
		return nil, err
	}

	return &SubmitAnswerResponse{
		QuestionID: question.ID,
		IsCorrect:  isCorrect,
		Score:      score,
	}, nil
}

// evaluateChoice grades multiple-choice and true/false answers. Full points
// when the chosen choice is the correct one, zero otherwise. A missing or
// unknown choice id counts as an absent answer; a choice that exists but
// belongs to another question is rejected.
func (s *gradingService) evaluateChoice(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt, question *models.Question, req *SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	var chosenID *uint
	isCorrect := false

	if req.ChosenChoiceID != nil {
		choice, err := s.repo.Question().GetChoice(ctx, tx, *req.ChosenChoiceID)
		switch {
		case err == nil && choice.QuestionID != question.ID:
			return nil, NewInvalidReferenceError(
				fmt.Sprintf("choice %d does not belong to question %d", choice.ID, question.ID))
		case err == nil:
			chosenID = &choice.ID
			isCorrect = choice.IsCorrect
		case !repositories.IsNotFoundError(err):
			return nil, fmt.Errorf("failed to resolve choice: %w", err)
		}
		// Unknown choice falls through as an absent answer.
	}

	score := decimal.Zero
	if isCorrect {
		score = question.Points.Round(2)
	}

	answer := &models.StudentAnswer{
		AttemptID:      attempt.ID,
		QuestionID:     question.ID,
		ChosenChoiceID: chosenID,
		IsCorrect:      isCorrect,
		Score:          score,
	}
	if err := s.upsertAnswer(ctx, tx, answer); err != nil {
		return nil, err
	}

	return &SubmitAnswerResponse{
		QuestionID: question.ID,
		IsCorrect:  isCorrect,
		Score:      score,
	}, nil
}

// evaluateMultiSelect applies partial credit: each wrong selection cancels a
// right one, and the floor is zero. Prior rows for the question are replaced
// by one audit row per selected choice plus a single summary row carrying the
// aggregate; only the summary row participates in totals.
func (s *gradingService) evaluateMultiSelect(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt, question *models.Question, req *SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	correctIDs := question.CorrectChoiceIDs()
	if len(correctIDs) == 0 {
		return nil, ErrQuestionNotGradable
	}

	choicesByID := make(map[uint]*models.Choice, len(question.Choices))
	for i := range question.Choices {
		choicesByID[question.Choices[i].ID] = &question.Choices[i]
	}

	// Selections outside the question's choice set are dropped.
	selected := make([]uint, 0)
	seen := make(map[uint]bool)
	for _, id := range parseSelectedIDs(req) {
		if _, ok := choicesByID[id]; ok && !seen[id] {
			selected = append(selected, id)
			seen[id] = true
		}
	}

	correctSelected := 0
	wrongSelected := 0
	for _, id := range selected {
		if correctIDs[id] {
			correctSelected++
		} else {
			wrongSelected++
		}
	}

	nCorrect := decimal.NewFromInt(int64(len(correctIDs)))
	raw := decimal.NewFromInt(int64(correctSelected - wrongSelected)).Div(nCorrect)
	if raw.IsNegative() {
		raw = decimal.Zero
	}
	score := raw.Mul(question.Points).Round(2)

	isCorrect := correctSelected == len(correctIDs) && wrongSelected == 0

	if err := s.repo.Answer().DeleteByAttemptAndQuestion(ctx, tx, attempt.ID, question.ID); err != nil {
		return nil, fmt.Errorf("failed to clear previous answers: %w", err)
	}

	perChoicePoints := question.Points.Div(nCorrect).Round(2)
	for _, id := range selected {
		choice := choicesByID[id]
		choiceScore := decimal.Zero
		if choice.IsCorrect {
			choiceScore = perChoicePoints
		}
		choiceID := id
		row := &models.StudentAnswer{
			PublicID:       uuid.New(),
			AttemptID:      attempt.ID,
			QuestionID:     question.ID,
			ChosenChoiceID: &choiceID,
			IsCorrect:      choice.IsCorrect,
			Score:          choiceScore,
		}
		if err := s.repo.Answer().Create(ctx, tx, row); err != nil {
			return nil, fmt.Errorf("failed to record selected choice: %w", err)
		}
	}

	summary := &models.StudentAnswer{
		PublicID:   uuid.New(),
		AttemptID:  attempt.ID,
		QuestionID: question.ID,
		AnswerText: joinIDs(selected),
		IsCorrect:  isCorrect,
		Score:      score,
	}
	if err := s.repo.Answer().Create(ctx, tx, summary); err != nil {
		return nil, fmt.Errorf("failed to record answer summary: %w", err)
	}

	return &SubmitAnswerResponse{
		QuestionID: question.ID,
		IsCorrect:  isCorrect,
		Score:      score,
	}, nil
}

// ===== SCORE AGGREGATION =====

// FinalizeAttempt sums the attempt's relevant answer rows and persists the
// terminal state. Multi-select per-choice rows are audit detail and excluded;
// their summary rows carry the aggregate. The caller holds the attempt lock
// and publishes the completion event after commit.
func (s *gradingService) FinalizeAttempt(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt, exam *models.Exam, timedOut bool) (*AttemptResultResponse, error) {
	answers, err := s.repo.Answer().GetByAttempt(ctx, tx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}

	total := decimal.Zero
	correctCount := 0
	for _, answer := range answers {
		if answer.Question.Type == models.MultiSelect && answer.ChosenChoiceID != nil {
			continue
		}
		total = total.Add(answer.Score)
		if answer.IsCorrect {
			correctCount++
		}
	}

	totalQuestions := len(attempt.AssignedQuestionIDs)
	if totalQuestions == 0 {
		count, err := s.repo.Exam().CountQuestions(ctx, tx, exam.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count exam questions: %w", err)
		}
		totalQuestions = int(count)
	}

	percentage := decimal.Zero
	if totalQuestions > 0 {
		percentage = decimal.NewFromInt(int64(correctCount)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(totalQuestions))).
			Round(1)
	}
	passed := percentage.GreaterThanOrEqual(decimal.NewFromInt(int64(exam.PassMark)))

	now := time.Now()
	attempt.Score = total.Round(2)
	attempt.IsCompleted = true
	attempt.EndTime = &now

	if err := s.repo.Attempt().Update(ctx, tx, attempt); err != nil {
		return nil, fmt.Errorf("failed to finalize attempt: %w", err)
	}

	s.logger.Info("Attempt finalized",
		"attempt_id", attempt.ID,
		"exam_id", exam.ID,
		"student_id", attempt.StudentID,
		"score", attempt.Score,
		"percentage", percentage,
		"passed", passed,
		"timed_out", timedOut)

	return &AttemptResultResponse{
		AttemptID:      attempt.PublicID,
		ExamID:         exam.PublicID,
		ExamTitle:      exam.Title,
		Score:          attempt.Score,
		CorrectAnswers: correctCount,
		TotalQuestions: totalQuestions,
		Percentage:     percentage,
		PassMark:       exam.PassMark,
		Passed:         passed,
		TimedOut:       timedOut,
		StartTime:      attempt.StartTime,
		EndTime:        attempt.EndTime,
	}, nil
}

// upsertAnswer keeps one row per (attempt, question) for single-row types.
func (s *gradingService) upsertAnswer(ctx context.Context, tx *gorm.DB, answer *models.StudentAnswer) error {
	existing, err := s.repo.Answer().GetByAttemptAndQuestion(ctx, tx, answer.AttemptID, answer.QuestionID)
	switch {
	case err == nil:
		answer.ID = existing.ID
		answer.PublicID = existing.PublicID
		answer.CreatedAt = existing.CreatedAt
		if err := s.repo.Answer().Update(ctx, tx, answer); err != nil {
			return fmt.Errorf("failed to update answer: %w", err)
		}
		return nil
	case repositories.IsNotFoundError(err):
		answer.PublicID = uuid.New()
		if err := s.repo.Answer().Create(ctx, tx, answer); err != nil {
			return fmt.Errorf("failed to create answer: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("failed to check existing answer: %w", err)
	}
}
