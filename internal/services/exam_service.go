package services

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/cbt-portal/exam-service/internal/cache"
	"github.com/cbt-portal/exam-service/internal/models"
	"github.com/cbt-portal/exam-service/internal/repositories"
	"github.com/cbt-portal/exam-service/internal/validator"
)

type examService struct {
	repo         repositories.Repository
	db           *gorm.DB
	logger       *slog.Logger
	cacheManager *cache.CacheManager
}

func NewExamService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, cacheManager *cache.CacheManager) ExamService {
	return &examService{
		repo:         repo,
		db:           db,
		logger:       logger,
		cacheManager: cacheManager,
	}
}

// ListAvailable returns active exams a student may start, ordered by title.
func (s *examService) ListAvailable(ctx context.Context, studentClass *string) (*ExamListResponse, error) {
	filters := repositories.ExamFilters{
		StudentClass: studentClass,
		SortBy:       "title",
		SortOrder:    "asc",
	}

	exams, total, err := s.repo.Exam().ListActive(ctx, s.db, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list available exams: %w", err)
	}

	summaries := make([]*ExamSummary, 0, len(exams))
	for _, exam := range exams {
		count, err := s.repo.Exam().CountQuestions(ctx, s.db, exam.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count questions: %w", err)
		}
		summaries = append(summaries, &ExamSummary{
			ID:              exam.ID,
			PublicID:        exam.PublicID,
			Title:           exam.Title,
			Description:     exam.Description,
			DurationMinutes: exam.DurationMinutes,
			PassMark:        exam.PassMark,
			StudentClass:    exam.StudentClass,
			QuestionCount:   exam.QuestionsToAsk(int(count)),
		})
	}

	return &ExamListResponse{Exams: summaries, Total: total}, nil
}

func (s *examService) GetByID(ctx context.Context, id uint) (*models.Exam, error) {
	exam, err := s.repo.Exam().GetByID(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	return exam, nil
}

// GetStatistics reports the exam's pool composition. Cached; attempts don't
// change it but question edits invalidate it.
func (s *examService) GetStatistics(ctx context.Context, examID uint) (*repositories.ExamStatistics, error) {
	cacheKey := fmt.Sprintf("exam:%d:config", examID)
	var stats repositories.ExamStatistics

	err := s.cacheManager.Stats.CacheOrExecute(ctx, cacheKey, &stats, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		return s.computeStatistics(ctx, examID)
	})
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, ErrExamNotFound
		}
		return nil, err
	}

	return &stats, nil
}

func (s *examService) computeStatistics(ctx context.Context, examID uint) (*repositories.ExamStatistics, error) {
	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, s.db, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	stats := &repositories.ExamStatistics{
		TotalQuestionsAvailable:    len(exam.Questions),
		QuestionsToAsk:             exam.QuestionsToAsk(len(exam.Questions)),
		RandomizationEnabled:       exam.RandomizeQuestions,
		ChoiceRandomizationEnabled: exam.RandomizeChoices,
		QuestionTypeDistribution:   make(map[models.QuestionType]int),
		DifficultyDistribution:     make(map[models.DifficultyLevel]int),
	}
	for _, q := range exam.Questions {
		stats.QuestionTypeDistribution[q.Type]++
		stats.DifficultyDistribution[q.Difficulty]++
	}

	return stats, nil
}

// ValidateConfiguration reports issues that would make the exam ungradable
// or surprising for students.
func (s *examService) ValidateConfiguration(ctx context.Context, examID uint) (*ExamValidationReport, error) {
	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, s.db, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	questions := make([]*models.Question, len(exam.Questions))
	for i := range exam.Questions {
		questions[i] = &exam.Questions[i]
	}

	issues := validator.ValidateExamConfiguration(exam, questions)

	return &ExamValidationReport{
		ExamID: exam.ID,
		Valid:  len(issues) == 0,
		Issues: issues,
	}, nil
}

// PreviewStudentQuestions shows what a given student would be served,
// without creating an attempt. Diagnostics only; grading data is stripped
// the same way as in the serving path.
func (s *examService) PreviewStudentQuestions(ctx context.Context, examID uint, studentID string, limit int) (*ExamPreviewResponse, error) {
	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, s.db, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	pool := make([]*models.Question, len(exam.Questions))
	for i := range exam.Questions {
		pool[i] = &exam.Questions[i]
	}
	selected := SelectQuestions(exam, pool, studentID)

	if limit > 0 && limit < len(selected) {
		selected = selected[:limit]
	}

	return &ExamPreviewResponse{
		ExamID:    exam.ID,
		StudentID: studentID,
		Questions: questionsForStudent(selected, studentID, exam.RandomizeChoices),
	}, nil
}
