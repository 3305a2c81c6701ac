package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cbt-portal/exam-service/internal/events"
	"github.com/cbt-portal/exam-service/internal/models"
	"github.com/cbt-portal/exam-service/internal/repositories"
	"github.com/cbt-portal/exam-service/internal/validator"
)

const timeoutMessage = "time limit elapsed; attempt was submitted automatically"

type attemptService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	grading   GradingService
	publisher events.EventPublisher
}

func NewAttemptService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, grading GradingService, publisher events.EventPublisher) AttemptService {
	return &attemptService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		grading:   grading,
		publisher: publisher,
	}
}

// inTx runs fn inside one database transaction. A nil db runs fn directly
// against a repository that manages its own consistency.
func (s *attemptService) inTx(fn func(tx *gorm.DB) error) error {
	if s.db == nil {
		return fn(nil)
	}
	return s.db.Transaction(fn)
}

// ===== CORE ATTEMPT OPERATIONS =====

// Start begins or resumes the student's attempt on an exam. At most one
// completed attempt may ever exist per (exam, student); an in-progress one is
// resumed idempotently, or finalized first when its time limit has elapsed.
func (s *attemptService) Start(ctx context.Context, examID uint, studentID string) (*AttemptResponse, error) {
	s.logger.Info("Starting exam attempt",
		"exam_id", examID,
		"student_id", studentID)

	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, s.db, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	if !exam.IsActive {
		return nil, ErrExamNotActive
	}

	var resp *AttemptResponse
	for retried := false; ; retried = true {
		err = s.inTx(func(tx *gorm.DB) error {
			completed, err := s.repo.Attempt().HasCompletedAttempt(ctx, tx, exam.ID, studentID)
			if err != nil {
				return fmt.Errorf("failed to check completed attempts: %w", err)
			}
			if completed {
				return ErrExamAlreadyTaken
			}

			active, err := s.repo.Attempt().GetActiveAttempt(ctx, tx, exam.ID, studentID)
			switch {
			case err == nil:
				resp, err = s.resumeOrExpire(ctx, tx, active.ID, exam)
				return err
			case repositories.IsNotFoundError(err):
				resp, err = s.createAttempt(ctx, tx, exam, studentID)
				return err
			default:
				return fmt.Errorf("failed to check active attempt: %w", err)
			}
		})
		// A unique violation on (exam, student) means a concurrent Start
		// committed first. The aborted transaction is gone, so rerun once
		// and resume the winning attempt.
		if repositories.IsDuplicateKeyError(err) && !retried {
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	if resp.Result != nil {
		s.publishCompleted(ctx, resp.Result, studentID)
	}

	return resp, nil
}

// GetQuestionsForAttempt serves the frozen assignment of the student's
// in-progress attempt. An attempt created before freezing existed gets its
// assignment frozen on this first access.
func (s *attemptService) GetQuestionsForAttempt(ctx context.Context, examID uint, studentID string) (*AttemptQuestionsResponse, error) {
	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, s.db, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	var resp *AttemptQuestionsResponse
	var result *AttemptResultResponse
	err = s.inTx(func(tx *gorm.DB) error {
		active, err := s.repo.Attempt().GetActiveAttempt(ctx, tx, exam.ID, studentID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrNoActiveAttempt
			}
			return fmt.Errorf("failed to get active attempt: %w", err)
		}

		attempt, err := s.repo.Attempt().GetByIDForUpdate(ctx, tx, active.ID)
		if err != nil {
			return fmt.Errorf("failed to lock attempt: %w", err)
		}
		if attempt.IsCompleted {
			return ErrAttemptAlreadyComplete
		}

		// Returning the sentinel here would roll the finalization back, so
		// it is carried out through result and raised after commit.
		if attempt.Expired(time.Now(), exam.DurationMinutes) {
			result, err = s.grading.FinalizeAttempt(ctx, tx, attempt, exam, true)
			return err
		}

		if len(attempt.AssignedQuestionIDs) == 0 {
			if err := s.freezeAssignment(ctx, tx, attempt, exam, studentID); err != nil {
				return err
			}
		}

		questions, err := s.repo.Question().GetByIDs(ctx, tx, attempt.AssignedQuestionIDs)
		if err != nil {
			return fmt.Errorf("failed to load assigned questions: %w", err)
		}

		resp = &AttemptQuestionsResponse{
			AttemptID:        attempt.PublicID,
			ExamID:           exam.PublicID,
			ExamTitle:        exam.Title,
			DurationMinutes:  exam.DurationMinutes,
			RemainingSeconds: remainingSeconds(attempt, exam),
			Questions:        questionsForStudent(questions, studentID, exam.RandomizeChoices),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result != nil {
		s.publishCompleted(ctx, result, studentID)
		return nil, ErrAttemptAlreadyComplete
	}

	return resp, nil
}

// SubmitAnswer records and grades one answer. Expiry is re-checked before and
// after grading; an expired attempt is finalized and the response carries the
// result instead of failing the request.
func (s *attemptService) SubmitAnswer(ctx context.Context, attemptID uint, req *SubmitAnswerRequest, studentID string) (*SubmitAnswerResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, NewValidationError("invalid answer submission", err)
	}

	var resp *SubmitAnswerResponse
	err := s.inTx(func(tx *gorm.DB) error {
		attempt, err := s.repo.Attempt().GetByIDForUpdate(ctx, tx, attemptID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAttemptNotFound
			}
			return fmt.Errorf("failed to lock attempt: %w", err)
		}

		if attempt.StudentID != studentID {
			return NewPermissionError(studentID, "attempt", attemptID, "answer")
		}
		if attempt.IsCompleted {
			return ErrAttemptAlreadyComplete
		}

		exam, err := s.repo.Exam().GetByID(ctx, tx, attempt.ExamID)
		if err != nil {
			return fmt.Errorf("failed to get exam: %w", err)
		}

		if attempt.Expired(time.Now(), exam.DurationMinutes) {
			result, err := s.grading.FinalizeAttempt(ctx, tx, attempt, exam, true)
			if err != nil {
				return err
			}
			resp = &SubmitAnswerResponse{
				QuestionID: req.QuestionID,
				TimedOut:   true,
				Message:    timeoutMessage,
				Result:     result,
			}
			return nil
		}

		if !attempt.IsAssigned(req.QuestionID) {
			return ErrQuestionNotAssigned
		}

		question, err := s.repo.Question().GetByIDWithChoices(ctx, tx, req.QuestionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrQuestionNotAssigned
			}
			return fmt.Errorf("failed to get question: %w", err)
		}

		resp, err = s.grading.EvaluateAnswer(ctx, tx, attempt, question, req)
		if err != nil {
			return err
		}

		// The answer above is kept even when grading pushed past the limit.
		if attempt.Expired(time.Now(), exam.DurationMinutes) {
			result, err := s.grading.FinalizeAttempt(ctx, tx, attempt, exam, true)
			if err != nil {
				return err
			}
			resp.TimedOut = true
			resp.Message = timeoutMessage
			resp.Result = result
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if resp.Result != nil {
		s.publishCompleted(ctx, resp.Result, studentID)
	}

	return resp, nil
}

// Submit finalizes the attempt at the student's request.
func (s *attemptService) Submit(ctx context.Context, attemptID uint, studentID string) (*AttemptResultResponse, error) {
	s.logger.Info("Submitting exam attempt",
		"attempt_id", attemptID,
		"student_id", studentID)

	var result *AttemptResultResponse
	err := s.inTx(func(tx *gorm.DB) error {
		attempt, err := s.repo.Attempt().GetByIDForUpdate(ctx, tx, attemptID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAttemptNotFound
			}
			return fmt.Errorf("failed to lock attempt: %w", err)
		}

		if attempt.StudentID != studentID {
			return NewPermissionError(studentID, "attempt", attemptID, "submit")
		}
		if attempt.IsCompleted {
			return ErrAttemptAlreadyComplete
		}

		exam, err := s.repo.Exam().GetByID(ctx, tx, attempt.ExamID)
		if err != nil {
			return fmt.Errorf("failed to get exam: %w", err)
		}

		timedOut := attempt.Expired(time.Now(), exam.DurationMinutes)
		result, err = s.grading.FinalizeAttempt(ctx, tx, attempt, exam, timedOut)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishCompleted(ctx, result, studentID)

	return result, nil
}

// ===== SWEEP =====

// ReconcileExpired finalizes abandoned in-progress attempts whose time limit
// has elapsed. Each attempt is handled in its own transaction under the same
// row lock as the request path, so a racing student call loses cleanly.
func (s *attemptService) ReconcileExpired(ctx context.Context, limit int) (int, error) {
	expired, err := s.repo.Attempt().ListExpiredInProgress(ctx, s.db, time.Now(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired attempts: %w", err)
	}

	finalized := 0
	for _, candidate := range expired {
		var result *AttemptResultResponse
		var studentID string
		err := s.inTx(func(tx *gorm.DB) error {
			attempt, err := s.repo.Attempt().GetByIDForUpdate(ctx, tx, candidate.ID)
			if err != nil {
				return err
			}
			// A request finalized it between listing and locking.
			if attempt.IsCompleted {
				return nil
			}

			exam, err := s.repo.Exam().GetByID(ctx, tx, attempt.ExamID)
			if err != nil {
				return err
			}
			if !attempt.Expired(time.Now(), exam.DurationMinutes) {
				return nil
			}

			studentID = attempt.StudentID
			result, err = s.grading.FinalizeAttempt(ctx, tx, attempt, exam, true)
			return err
		})
		if err != nil {
			s.logger.Error("Failed to reconcile expired attempt",
				"attempt_id", candidate.ID,
				"error", err)
			continue
		}
		if result != nil {
			s.publishCompleted(ctx, result, studentID)
			finalized++
		}
	}

	if finalized > 0 {
		s.logger.Info("Expired attempts reconciled", "count", finalized)
	}

	return finalized, nil
}

// ===== INTERNAL TRANSITIONS =====

// createAttempt runs selection, freezes the assignment and creates the row.
func (s *attemptService) createAttempt(ctx context.Context, tx *gorm.DB, exam *models.Exam, studentID string) (*AttemptResponse, error) {
	pool := make([]*models.Question, len(exam.Questions))
	for i := range exam.Questions {
		pool[i] = &exam.Questions[i]
	}
	selected := SelectQuestions(exam, pool, studentID)

	assigned := make([]uint, len(selected))
	for i, q := range selected {
		assigned[i] = q.ID
	}

	attempt := &models.ExamAttempt{
		PublicID:            uuid.New(),
		ExamID:              exam.ID,
		StudentID:           studentID,
		StartTime:           time.Now(),
		AssignedQuestionIDs: assigned,
	}
	if err := s.repo.Attempt().Create(ctx, tx, attempt); err != nil {
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	s.logger.Info("Exam attempt created",
		"attempt_id", attempt.ID,
		"exam_id", exam.ID,
		"student_id", studentID,
		"assigned_questions", len(assigned))

	return &AttemptResponse{
		AttemptID:        attempt.PublicID,
		ExamID:           exam.PublicID,
		ExamTitle:        exam.Title,
		StartTime:        attempt.StartTime,
		DurationMinutes:  exam.DurationMinutes,
		RemainingSeconds: remainingSeconds(attempt, exam),
		TotalQuestions:   len(assigned),
	}, nil
}

// resumeOrExpire locks an in-progress attempt and either resumes it or, when
// its time limit has elapsed, finalizes it and reports the result.
func (s *attemptService) resumeOrExpire(ctx context.Context, tx *gorm.DB, attemptID uint, exam *models.Exam) (*AttemptResponse, error) {
	attempt, err := s.repo.Attempt().GetByIDForUpdate(ctx, tx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock attempt: %w", err)
	}
	if attempt.IsCompleted {
		return nil, ErrExamAlreadyTaken
	}

	if attempt.Expired(time.Now(), exam.DurationMinutes) {
		result, err := s.grading.FinalizeAttempt(ctx, tx, attempt, exam, true)
		if err != nil {
			return nil, err
		}
		return &AttemptResponse{
			AttemptID:       attempt.PublicID,
			ExamID:          exam.PublicID,
			ExamTitle:       exam.Title,
			StartTime:       attempt.StartTime,
			DurationMinutes: exam.DurationMinutes,
			TotalQuestions:  len(attempt.AssignedQuestionIDs),
			IsCompleted:     true,
			Message:         timeoutMessage,
			Result:          result,
		}, nil
	}

	s.logger.Info("Resuming existing attempt",
		"attempt_id", attempt.ID,
		"student_id", attempt.StudentID)

	return &AttemptResponse{
		AttemptID:        attempt.PublicID,
		ExamID:           exam.PublicID,
		ExamTitle:        exam.Title,
		StartTime:        attempt.StartTime,
		DurationMinutes:  exam.DurationMinutes,
		RemainingSeconds: remainingSeconds(attempt, exam),
		TotalQuestions:   len(attempt.AssignedQuestionIDs),
		Resumed:          true,
	}, nil
}

// freezeAssignment selects and persists the assignment for a legacy attempt
// created without one.
func (s *attemptService) freezeAssignment(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt, exam *models.Exam, studentID string) error {
	pool := make([]*models.Question, len(exam.Questions))
	for i := range exam.Questions {
		pool[i] = &exam.Questions[i]
	}
	selected := SelectQuestions(exam, pool, studentID)

	assigned := make([]uint, len(selected))
	for i, q := range selected {
		assigned[i] = q.ID
	}
	attempt.AssignedQuestionIDs = assigned

	if err := s.repo.Attempt().Update(ctx, tx, attempt); err != nil {
		return fmt.Errorf("failed to freeze assignment: %w", err)
	}
	return nil
}
