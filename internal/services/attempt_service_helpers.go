package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cbt-portal/exam-service/internal/events"
	"github.com/cbt-portal/exam-service/internal/models"
	"github.com/cbt-portal/exam-service/internal/repositories"
)

// Attempt results must be recomputable after completion for the result and
// history endpoints; the aggregation here mirrors finalization read-only.

// ===== RESULT OPERATIONS =====

func (s *attemptService) GetResult(ctx context.Context, attemptID uint, studentID string) (*AttemptResultResponse, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, s.db, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.StudentID != studentID {
		return nil, NewPermissionError(studentID, "attempt", attemptID, "view")
	}
	if !attempt.IsCompleted {
		return nil, ErrAttemptNotCompleted
	}

	exam, err := s.repo.Exam().GetByID(ctx, s.db, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	return s.buildResult(ctx, attempt, exam)
}

func (s *attemptService) History(ctx context.Context, studentID string, filters repositories.AttemptFilters) ([]*AttemptResultResponse, int64, error) {
	attempts, total, err := s.repo.Attempt().GetCompletedByStudent(ctx, s.db, studentID, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get attempt history: %w", err)
	}

	results := make([]*AttemptResultResponse, 0, len(attempts))
	for _, attempt := range attempts {
		result, err := s.buildResult(ctx, attempt, &attempt.Exam)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, result)
	}

	return results, total, nil
}

// buildResult recomputes a completed attempt's summary from its answer rows.
func (s *attemptService) buildResult(ctx context.Context, attempt *models.ExamAttempt, exam *models.Exam) (*AttemptResultResponse, error) {
	answers, err := s.repo.Answer().GetByAttempt(ctx, s.db, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}

	correctCount := 0
	for _, answer := range answers {
		if answer.Question.Type == models.MultiSelect && answer.ChosenChoiceID != nil {
			continue
		}
		if answer.IsCorrect {
			correctCount++
		}
	}

	totalQuestions := len(attempt.AssignedQuestionIDs)
	if totalQuestions == 0 {
		count, err := s.repo.Exam().CountQuestions(ctx, s.db, exam.ID)
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

	return &AttemptResultResponse{
		AttemptID:      attempt.PublicID,
		ExamID:         exam.PublicID,
		ExamTitle:      exam.Title,
		Score:          attempt.Score,
		CorrectAnswers: correctCount,
		TotalQuestions: totalQuestions,
		Percentage:     percentage,
		PassMark:       exam.PassMark,
		Passed:         percentage.GreaterThanOrEqual(decimal.NewFromInt(int64(exam.PassMark))),
		StartTime:      attempt.StartTime,
		EndTime:        attempt.EndTime,
	}, nil
}

// ===== SHARED HELPERS =====

// remainingSeconds clamps the time left on an attempt to zero.
func remainingSeconds(attempt *models.ExamAttempt, exam *models.Exam) int {
	remaining := exam.DurationMinutes*60 - int(attempt.Elapsed(time.Now()).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// questionsForStudent strips grading data from questions before they leave
// the service: no correct answers, no choice correctness flags.
func questionsForStudent(questions []*models.Question, studentID string, randomizeChoices bool) []QuestionForStudent {
	out := make([]QuestionForStudent, 0, len(questions))
	for _, q := range questions {
		sq := QuestionForStudent{
			ID:       q.ID,
			PublicID: q.PublicID,
			Text:     q.Text,
			Type:     q.Type,
			Points:   q.Points,
		}
		if q.Type.HasChoices() {
			choices := ShuffleChoices(q, studentID, randomizeChoices)
			sq.Choices = make([]ChoiceForStudent, len(choices))
			for i, c := range choices {
				sq.Choices[i] = ChoiceForStudent{
					ID:       c.ID,
					PublicID: c.PublicID,
					Text:     c.Text,
				}
			}
		}
		out = append(out, sq)
	}
	return out
}

// publishCompleted emits the completion event after the finalizing
// transaction has committed. Publish failures are logged, not surfaced; the
// attempt is already terminal.
func (s *attemptService) publishCompleted(ctx context.Context, result *AttemptResultResponse, studentID string) {
	if s.publisher == nil {
		return
	}

	payload := events.AttemptCompletedEvent{
		AttemptID:   result.AttemptID,
		ExamID:      result.ExamID,
		ExamTitle:   result.ExamTitle,
		StudentID:   studentID,
		Score:       result.Score,
		Percentage:  result.Percentage,
		Passed:      result.Passed,
		TimedOut:    result.TimedOut,
		CompletedAt: timeOrNow(result.EndTime),
	}

	if err := s.publisher.PublishEvent(ctx, events.EventAttemptCompleted, events.EventAttemptCompleted, payload); err != nil {
		s.logger.Error("Failed to publish attempt completion",
			"attempt_id", result.AttemptID,
			"error", err)
	}
}

func timeOrNow(t *time.Time) time.Time {
	if t != nil {
		return *t
	}
	return time.Now()
}
