package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/cbt-portal/exam-service/internal/models"
	"github.com/cbt-portal/exam-service/internal/repositories"
)

// mockRepository is an in-memory repositories.Repository for service tests.
// Transactions are a no-op; callers pass a nil tx.
type mockRepository struct {
	exams     map[uint]*models.Exam
	questions map[uint]*models.Question
	choices   map[uint]*models.Choice
	attempts  map[uint]*models.ExamAttempt
	answers   []*models.StudentAnswer

	nextAnswerID uint

	// activeLookupMisses makes GetActiveAttempt report not-found that many
	// times, opening the window two concurrent Start calls race through.
	activeLookupMisses int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		exams:     make(map[uint]*models.Exam),
		questions: make(map[uint]*models.Question),
		choices:   make(map[uint]*models.Choice),
		attempts:  make(map[uint]*models.ExamAttempt),
	}
}

// addQuestion registers a question and its choices for lookups.
func (m *mockRepository) addQuestion(q *models.Question) {
	m.questions[q.ID] = q
	for i := range q.Choices {
		m.choices[q.Choices[i].ID] = &q.Choices[i]
	}
}

func (m *mockRepository) Exam() repositories.ExamRepository         { return &mockExamRepo{m} }
func (m *mockRepository) Question() repositories.QuestionRepository { return &mockQuestionRepo{m} }
func (m *mockRepository) Attempt() repositories.AttemptRepository   { return &mockAttemptRepo{m} }
func (m *mockRepository) Answer() repositories.AnswerRepository     { return &mockAnswerRepo{m} }

func (m *mockRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(m)
}
func (m *mockRepository) Ping(ctx context.Context) error { return nil }
func (m *mockRepository) Close() error                   { return nil }

type mockExamRepo struct{ m *mockRepository }

func (r *mockExamRepo) Create(ctx context.Context, tx *gorm.DB, exam *models.Exam) error {
	r.m.exams[exam.ID] = exam
	return nil
}

func (r *mockExamRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	exam, ok := r.m.exams[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return exam, nil
}

func (r *mockExamRepo) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	exam, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	exam.Questions = exam.Questions[:0]
	for _, q := range r.m.questions {
		if q.ExamID == id {
			exam.Questions = append(exam.Questions, *q)
		}
	}
	return exam, nil
}

func (r *mockExamRepo) Update(ctx context.Context, tx *gorm.DB, exam *models.Exam) error {
	r.m.exams[exam.ID] = exam
	return nil
}

func (r *mockExamRepo) ListActive(ctx context.Context, tx *gorm.DB, filters repositories.ExamFilters) ([]*models.Exam, int64, error) {
	var out []*models.Exam
	for _, e := range r.m.exams {
		if e.IsActive {
			out = append(out, e)
		}
	}
	return out, int64(len(out)), nil
}

func (r *mockExamRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.ExamFilters) ([]*models.Exam, int64, error) {
	var out []*models.Exam
	for _, e := range r.m.exams {
		out = append(out, e)
	}
	return out, int64(len(out)), nil
}

func (r *mockExamRepo) CountQuestions(ctx context.Context, tx *gorm.DB, examID uint) (int64, error) {
	var n int64
	for _, q := range r.m.questions {
		if q.ExamID == examID {
			n++
		}
	}
	return n, nil
}

type mockQuestionRepo struct{ m *mockRepository }

func (r *mockQuestionRepo) Create(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	r.m.addQuestion(question)
	return nil
}

func (r *mockQuestionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	q, ok := r.m.questions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return q, nil
}

func (r *mockQuestionRepo) GetByIDWithChoices(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *mockQuestionRepo) Update(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	r.m.addQuestion(question)
	return nil
}

func (r *mockQuestionRepo) GetByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.Question, error) {
	var out []*models.Question
	for _, q := range r.m.questions {
		if q.ExamID == examID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (r *mockQuestionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error) {
	out := make([]*models.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := r.m.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (r *mockQuestionRepo) GetChoice(ctx context.Context, tx *gorm.DB, choiceID uint) (*models.Choice, error) {
	c, ok := r.m.choices[choiceID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return c, nil
}

type mockAttemptRepo struct{ m *mockRepository }

func (r *mockAttemptRepo) Create(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error {
	for _, a := range r.m.attempts {
		if a.ExamID == attempt.ExamID && a.StudentID == attempt.StudentID {
			return gorm.ErrDuplicatedKey
		}
	}
	if attempt.ID == 0 {
		attempt.ID = uint(len(r.m.attempts) + 1)
	}
	r.m.attempts[attempt.ID] = attempt
	return nil
}

func (r *mockAttemptRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error) {
	a, ok := r.m.attempts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return a, nil
}

func (r *mockAttemptRepo) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *mockAttemptRepo) Update(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error {
	r.m.attempts[attempt.ID] = attempt
	return nil
}

func (r *mockAttemptRepo) GetActiveAttempt(ctx context.Context, tx *gorm.DB, examID uint, studentID string) (*models.ExamAttempt, error) {
	if r.m.activeLookupMisses > 0 {
		r.m.activeLookupMisses--
		return nil, repositories.ErrNotFound
	}
	for _, a := range r.m.attempts {
		if a.ExamID == examID && a.StudentID == studentID && !a.IsCompleted {
			return a, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *mockAttemptRepo) HasCompletedAttempt(ctx context.Context, tx *gorm.DB, examID uint, studentID string) (bool, error) {
	for _, a := range r.m.attempts {
		if a.ExamID == examID && a.StudentID == studentID && a.IsCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (r *mockAttemptRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.ExamAttempt, int64, error) {
	var out []*models.ExamAttempt
	for _, a := range r.m.attempts {
		out = append(out, a)
	}
	return out, int64(len(out)), nil
}

func (r *mockAttemptRepo) GetCompletedByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters repositories.AttemptFilters) ([]*models.ExamAttempt, int64, error) {
	var out []*models.ExamAttempt
	for _, a := range r.m.attempts {
		if a.StudentID == studentID && a.IsCompleted {
			if exam, ok := r.m.exams[a.ExamID]; ok {
				a.Exam = *exam
			}
			out = append(out, a)
		}
	}
	return out, int64(len(out)), nil
}

func (r *mockAttemptRepo) ListExpiredInProgress(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.ExamAttempt, error) {
	var out []*models.ExamAttempt
	for _, a := range r.m.attempts {
		if a.IsCompleted {
			continue
		}
		exam, ok := r.m.exams[a.ExamID]
		if !ok {
			continue
		}
		if a.Expired(now, exam.DurationMinutes) {
			out = append(out, a)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type mockAnswerRepo struct{ m *mockRepository }

func (r *mockAnswerRepo) Create(ctx context.Context, tx *gorm.DB, answer *models.StudentAnswer) error {
	r.m.nextAnswerID++
	answer.ID = r.m.nextAnswerID
	stored := *answer
	r.m.answers = append(r.m.answers, &stored)
	return nil
}

func (r *mockAnswerRepo) Update(ctx context.Context, tx *gorm.DB, answer *models.StudentAnswer) error {
	for i, a := range r.m.answers {
		if a.ID == answer.ID {
			stored := *answer
			r.m.answers[i] = &stored
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (r *mockAnswerRepo) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.StudentAnswer, error) {
	for _, a := range r.m.answers {
		if a.AttemptID == attemptID && a.QuestionID == questionID {
			return a, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *mockAnswerRepo) DeleteByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) error {
	kept := r.m.answers[:0]
	for _, a := range r.m.answers {
		if !(a.AttemptID == attemptID && a.QuestionID == questionID) {
			kept = append(kept, a)
		}
	}
	r.m.answers = kept
	return nil
}

func (r *mockAnswerRepo) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.StudentAnswer, error) {
	var out []*models.StudentAnswer
	for _, a := range r.m.answers {
		if a.AttemptID == attemptID {
			row := *a
			if q, ok := r.m.questions[a.QuestionID]; ok {
				row.Question = *q
			}
			out = append(out, &row)
		}
	}
	return out, nil
}
