package services

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cbt-portal/exam-service/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestGradingService(repo *mockRepository) *gradingService {
	return &gradingService{repo: repo, logger: testLogger()}
}

func strPtr(s string) *string { return &s }
func uintPtr(v uint) *uint    { return &v }

func fillBlankQuestion(id uint, answer *string, points int64) *models.Question {
	return &models.Question{
		ID:            id,
		ExamID:        1,
		Type:          models.FillInBlank,
		Points:        decimal.NewFromInt(points),
		CorrectAnswer: answer,
	}
}

func TestGradingService_EvaluateAnswer_FillBlank(t *testing.T) {
	tests := []struct {
		name          string
		correctAnswer *string
		submitted     string
		wantCorrect   bool
		wantScore     string
	}{
		{name: "exact match", correctAnswer: strPtr("Paris"), submitted: "Paris", wantCorrect: true, wantScore: "10"},
		{name: "case and whitespace normalized", correctAnswer: strPtr("New York"), submitted: "  new   YORK ", wantCorrect: true, wantScore: "10"},
		{name: "wrong answer", correctAnswer: strPtr("Paris"), submitted: "London", wantCorrect: false, wantScore: "0"},
		{name: "empty submission", correctAnswer: strPtr("Paris"), submitted: "", wantCorrect: false, wantScore: "0"},
		{name: "no canonical answer configured", correctAnswer: nil, submitted: "anything", wantCorrect: false, wantScore: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepository()
			question := fillBlankQuestion(10, tt.correctAnswer, 10)
			repo.addQuestion(question)
			attempt := &models.ExamAttempt{ID: 1, ExamID: 1, StudentID: "s-1"}

			svc := newTestGradingService(repo)
			resp, err := svc.EvaluateAnswer(context.Background(), nil, attempt, question, &SubmitAnswerRequest{
				QuestionID: question.ID,
				AnswerText: tt.submitted,
			})
			if err != nil {
				t.Fatalf("EvaluateAnswer failed: %v", err)
			}
			if resp.IsCorrect != tt.wantCorrect {
				t.Errorf("IsCorrect = %v, want %v", resp.IsCorrect, tt.wantCorrect)
			}
			if !resp.Score.Equal(decimal.RequireFromString(tt.wantScore)) {
				t.Errorf("Score = %s, want %s", resp.Score, tt.wantScore)
			}
			if len(repo.answers) != 1 {
				t.Fatalf("expected 1 stored answer, got %d", len(repo.answers))
			}
		})
	}
}

func TestGradingService_EvaluateAnswer_FillBlank_Resubmission(t *testing.T) {
	repo := newMockRepository()
	question := fillBlankQuestion(10, strPtr("Paris"), 10)
	repo.addQuestion(question)
	attempt := &models.ExamAttempt{ID: 1, ExamID: 1, StudentID: "s-1"}
	svc := newTestGradingService(repo)
	ctx := context.Background()

	if _, err := svc.EvaluateAnswer(ctx, nil, attempt, question, &SubmitAnswerRequest{QuestionID: 10, AnswerText: "London"}); err != nil {
		t.Fatalf("first submission failed: %v", err)
	}
	resp, err := svc.EvaluateAnswer(ctx, nil, attempt, question, &SubmitAnswerRequest{QuestionID: 10, AnswerText: "Paris"})
	if err != nil {
		t.Fatalf("resubmission failed: %v", err)
	}

	if !resp.IsCorrect {
		t.Error("resubmission should be graded correct")
	}
	if len(repo.answers) != 1 {
		t.Fatalf("resubmission must replace the row, got %d rows", len(repo.answers))
	}
	if repo.answers[0].AnswerText != "Paris" {
		t.Errorf("stored answer = %q, want %q", repo.answers[0].AnswerText, "Paris")
	}
}

func multipleChoiceQuestion(id uint, points int64) *models.Question {
	return &models.Question{
		ID:     id,
		ExamID: 1,
		Type:   models.MultipleChoice,
		Points: decimal.NewFromInt(points),
		Choices: []models.Choice{
			{ID: 101, QuestionID: id, Text: "right", IsCorrect: true},
			{ID: 102, QuestionID: id, Text: "wrong"},
			{ID: 103, QuestionID: id, Text: "also wrong"},
		},
	}
}

func TestGradingService_EvaluateAnswer_MultipleChoice(t *testing.T) {
	tests := []struct {
		name        string
		chosen      *uint
		wantCorrect bool
		wantScore   string
	}{
		{name: "correct choice", chosen: uintPtr(101), wantCorrect: true, wantScore: "5"},
		{name: "wrong choice", chosen: uintPtr(102), wantCorrect: false, wantScore: "0"},
		{name: "unknown choice treated as absent", chosen: uintPtr(999), wantCorrect: false, wantScore: "0"},
		{name: "no choice", chosen: nil, wantCorrect: false, wantScore: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepository()
			question := multipleChoiceQuestion(20, 5)
			repo.addQuestion(question)
			attempt := &models.ExamAttempt{ID: 1, ExamID: 1, StudentID: "s-1"}

			svc := newTestGradingService(repo)
			resp, err := svc.EvaluateAnswer(context.Background(), nil, attempt, question, &SubmitAnswerRequest{
				QuestionID:     question.ID,
				ChosenChoiceID: tt.chosen,
			})
			if err != nil {
				t.Fatalf("EvaluateAnswer failed: %v", err)
			}
			if resp.IsCorrect != tt.wantCorrect {
				t.Errorf("IsCorrect = %v, want %v", resp.IsCorrect, tt.wantCorrect)
			}
			if !resp.Score.Equal(decimal.RequireFromString(tt.wantScore)) {
				t.Errorf("Score = %s, want %s", resp.Score, tt.wantScore)
			}
		})
	}
}

func TestGradingService_EvaluateAnswer_ChoiceOfOtherQuestion(t *testing.T) {
	repo := newMockRepository()
	question := multipleChoiceQuestion(20, 5)
	repo.addQuestion(question)
	other := &models.Question{
		ID: 30, ExamID: 1, Type: models.TrueFalse, Points: decimal.NewFromInt(1),
		Choices: []models.Choice{{ID: 301, QuestionID: 30, Text: "True", IsCorrect: true}},
	}
	repo.addQuestion(other)
	attempt := &models.ExamAttempt{ID: 1, ExamID: 1, StudentID: "s-1"}

	svc := newTestGradingService(repo)
	_, err := svc.EvaluateAnswer(context.Background(), nil, attempt, question, &SubmitAnswerRequest{
		QuestionID:     question.ID,
		ChosenChoiceID: uintPtr(301),
	})
	if err == nil {
		t.Fatal("expected error for a choice belonging to another question")
	}
	if KindOf(err) != KindInvalidReference {
		t.Errorf("error kind = %q, want %q", KindOf(err), KindInvalidReference)
	}
	if len(repo.answers) != 0 {
		t.Errorf("no answer row should be written, got %d", len(repo.answers))
	}
}

func multiSelectQuestion(id uint, points int64) *models.Question {
	// Two correct choices out of four.
	return &models.Question{
		ID:     id,
		ExamID: 1,
		Type:   models.MultiSelect,
		Points: decimal.NewFromInt(points),
		Choices: []models.Choice{
			{ID: 201, QuestionID: id, IsCorrect: true},
			{ID: 202, QuestionID: id, IsCorrect: true},
			{ID: 203, QuestionID: id},
			{ID: 204, QuestionID: id},
		},
	}
}

func TestGradingService_EvaluateAnswer_MultiSelect(t *testing.T) {
	tests := []struct {
		name        string
		selected    []uint
		wantCorrect bool
		wantScore   string
	}{
		{name: "exact match", selected: []uint{201, 202}, wantCorrect: true, wantScore: "10"},
		{name: "half credit", selected: []uint{201}, wantCorrect: false, wantScore: "5"},
		{name: "wrong cancels right", selected: []uint{201, 203}, wantCorrect: false, wantScore: "0"},
		{name: "superset not correct", selected: []uint{201, 202, 203}, wantCorrect: false, wantScore: "5"},
		{name: "clamped at zero", selected: []uint{203, 204}, wantCorrect: false, wantScore: "0"},
		{name: "duplicates collapsed", selected: []uint{201, 201, 202}, wantCorrect: true, wantScore: "10"},
		{name: "unknown ids dropped", selected: []uint{201, 202, 999}, wantCorrect: true, wantScore: "10"},
		{name: "empty selection", selected: nil, wantCorrect: false, wantScore: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepository()
			question := multiSelectQuestion(40, 10)
			repo.addQuestion(question)
			attempt := &models.ExamAttempt{ID: 1, ExamID: 1, StudentID: "s-1"}

			svc := newTestGradingService(repo)
			resp, err := svc.EvaluateAnswer(context.Background(), nil, attempt, question, &SubmitAnswerRequest{
				QuestionID:        question.ID,
				SelectedChoiceIDs: tt.selected,
			})
			if err != nil {
				t.Fatalf("EvaluateAnswer failed: %v", err)
			}
			if resp.IsCorrect != tt.wantCorrect {
				t.Errorf("IsCorrect = %v, want %v", resp.IsCorrect, tt.wantCorrect)
			}
			if !resp.Score.Equal(decimal.RequireFromString(tt.wantScore)) {
				t.Errorf("Score = %s, want %s", resp.Score, tt.wantScore)
			}

			// One row per valid selected choice plus the summary row.
			summaries := 0
			for _, a := range repo.answers {
				if a.ChosenChoiceID == nil {
					summaries++
				}
			}
			if summaries != 1 {
				t.Errorf("expected exactly 1 summary row, got %d", summaries)
			}
		})
	}
}

func TestGradingService_EvaluateAnswer_MultiSelectRewrite(t *testing.T) {
	repo := newMockRepository()
	question := multiSelectQuestion(40, 10)
	repo.addQuestion(question)
	attempt := &models.ExamAttempt{ID: 1, ExamID: 1, StudentID: "s-1"}
	svc := newTestGradingService(repo)
	ctx := context.Background()

	if _, err := svc.EvaluateAnswer(ctx, nil, attempt, question, &SubmitAnswerRequest{
		QuestionID: 40, SelectedChoiceIDs: []uint{201, 203},
	}); err != nil {
		t.Fatalf("first submission failed: %v", err)
	}
	if _, err := svc.EvaluateAnswer(ctx, nil, attempt, question, &SubmitAnswerRequest{
		QuestionID: 40, SelectedChoiceIDs: []uint{201, 202},
	}); err != nil {
		t.Fatalf("resubmission failed: %v", err)
	}

	// Two per-choice rows plus one summary row; the first set is gone.
	if len(repo.answers) != 3 {
		t.Fatalf("expected 3 rows after rewrite, got %d", len(repo.answers))
	}
	var summary *models.StudentAnswer
	for _, a := range repo.answers {
		if a.ChosenChoiceID == nil {
			summary = a
		}
	}
	if summary == nil {
		t.Fatal("summary row missing")
	}
	if summary.AnswerText != "201,202" {
		t.Errorf("summary AnswerText = %q, want %q", summary.AnswerText, "201,202")
	}
	if !summary.Score.Equal(decimal.NewFromInt(10)) {
		t.Errorf("summary Score = %s, want 10", summary.Score)
	}
}

func TestGradingService_EvaluateAnswer_MultiSelectUngradable(t *testing.T) {
	repo := newMockRepository()
	question := &models.Question{
		ID: 50, ExamID: 1, Type: models.MultiSelect, Points: decimal.NewFromInt(10),
		Choices: []models.Choice{{ID: 501, QuestionID: 50}, {ID: 502, QuestionID: 50}},
	}
	repo.addQuestion(question)
	attempt := &models.ExamAttempt{ID: 1, ExamID: 1, StudentID: "s-1"}

	svc := newTestGradingService(repo)
	_, err := svc.EvaluateAnswer(context.Background(), nil, attempt, question, &SubmitAnswerRequest{
		QuestionID: 50, SelectedChoiceIDs: []uint{501},
	})
	if KindOf(err) != KindUngradable {
		t.Fatalf("error kind = %q, want %q", KindOf(err), KindUngradable)
	}
	if len(repo.answers) != 0 {
		t.Errorf("no rows may be written for an ungradable question, got %d", len(repo.answers))
	}
}

func TestGradingService_FinalizeAttempt(t *testing.T) {
	repo := newMockRepository()
	exam := &models.Exam{ID: 1, Title: "Final", PassMark: 60, DurationMinutes: 30}
	repo.exams[1] = exam

	mc := multipleChoiceQuestion(20, 5)
	ms := multiSelectQuestion(40, 10)
	fb := fillBlankQuestion(10, strPtr("Paris"), 10)
	tf := &models.Question{ID: 60, ExamID: 1, Type: models.TrueFalse, Points: decimal.NewFromInt(2),
		Choices: []models.Choice{{ID: 601, QuestionID: 60, IsCorrect: true}, {ID: 602, QuestionID: 60}}}
	unanswered := fillBlankQuestion(70, strPtr("x"), 1)
	for _, q := range []*models.Question{mc, ms, fb, tf, unanswered} {
		repo.addQuestion(q)
	}

	attempt := &models.ExamAttempt{
		ID: 1, ExamID: 1, StudentID: "s-1",
		StartTime:           time.Now().Add(-10 * time.Minute),
		AssignedQuestionIDs: []uint{10, 20, 40, 60, 70},
	}
	repo.attempts[1] = attempt

	svc := newTestGradingService(repo)
	ctx := context.Background()

	// Three correct, one partial multi-select, one unanswered.
	if _, err := svc.EvaluateAnswer(ctx, nil, attempt, fb, &SubmitAnswerRequest{QuestionID: 10, AnswerText: "paris"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.EvaluateAnswer(ctx, nil, attempt, mc, &SubmitAnswerRequest{QuestionID: 20, ChosenChoiceID: uintPtr(101)}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.EvaluateAnswer(ctx, nil, attempt, ms, &SubmitAnswerRequest{QuestionID: 40, SelectedChoiceIDs: []uint{201}}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.EvaluateAnswer(ctx, nil, attempt, tf, &SubmitAnswerRequest{QuestionID: 60, ChosenChoiceID: uintPtr(601)}); err != nil {
		t.Fatal(err)
	}

	result, err := svc.FinalizeAttempt(ctx, nil, attempt, exam, false)
	if err != nil {
		t.Fatalf("FinalizeAttempt failed: %v", err)
	}

	// 10 + 5 + 5 + 2; the multi-select per-choice row must not be
	// double-counted.
	if !result.Score.Equal(decimal.NewFromInt(22)) {
		t.Errorf("Score = %s, want 22", result.Score)
	}
	if result.CorrectAnswers != 3 {
		t.Errorf("CorrectAnswers = %d, want 3", result.CorrectAnswers)
	}
	if result.TotalQuestions != 5 {
		t.Errorf("TotalQuestions = %d, want 5", result.TotalQuestions)
	}
	if !result.Percentage.Equal(decimal.NewFromInt(60)) {
		t.Errorf("Percentage = %s, want 60", result.Percentage)
	}
	if !result.Passed {
		t.Error("Passed = false, want true at the exact pass mark")
	}
	if !attempt.IsCompleted || attempt.EndTime == nil {
		t.Error("attempt must be marked completed with an end time")
	}
}

func TestNormalizeAnswer(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Paris", "paris"},
		{"  New   York  ", "new york"},
		{"\tAnswer\nwith breaks ", "answer with breaks"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := normalizeAnswer(tt.in); got != tt.want {
			t.Errorf("normalizeAnswer(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseSelectedIDs(t *testing.T) {
	tests := []struct {
		name string
		req  SubmitAnswerRequest
		want []uint
	}{
		{name: "id list wins", req: SubmitAnswerRequest{SelectedChoiceIDs: []uint{1, 2}, AnswerText: "3,4"}, want: []uint{1, 2}},
		{name: "comma text", req: SubmitAnswerRequest{AnswerText: "3, 4 ,5"}, want: []uint{3, 4, 5}},
		{name: "non numeric dropped", req: SubmitAnswerRequest{AnswerText: "3,x,5"}, want: []uint{3, 5}},
		{name: "empty", req: SubmitAnswerRequest{}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSelectedIDs(&tt.req)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestGradingService_EvaluateAnswer_MismatchedPayload(t *testing.T) {
	repo := newMockRepository()
	fb := fillBlankQuestion(10, strPtr("Paris"), 10)
	mc := multipleChoiceQuestion(20, 5)
	ms := multiSelectQuestion(40, 10)
	repo.addQuestion(fb)
	repo.addQuestion(mc)
	repo.addQuestion(ms)

	svc := newTestGradingService(repo)
	attempt := &models.ExamAttempt{ID: 1, ExamID: 1, StudentID: "s-1"}
	ctx := context.Background()

	tests := []struct {
		name     string
		question *models.Question
		req      *SubmitAnswerRequest
	}{
		{name: "choice id on text question", question: fb, req: &SubmitAnswerRequest{QuestionID: 10, ChosenChoiceID: uintPtr(101)}},
		{name: "id list on text question", question: fb, req: &SubmitAnswerRequest{QuestionID: 10, SelectedChoiceIDs: []uint{101}}},
		{name: "id list on single choice", question: mc, req: &SubmitAnswerRequest{QuestionID: 20, SelectedChoiceIDs: []uint{101}}},
		{name: "text on single choice", question: mc, req: &SubmitAnswerRequest{QuestionID: 20, AnswerText: "101"}},
		{name: "single id on multi select", question: ms, req: &SubmitAnswerRequest{QuestionID: 40, ChosenChoiceID: uintPtr(201)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.EvaluateAnswer(ctx, nil, attempt, tt.question, tt.req)
			if KindOf(err) != KindValidation {
				t.Fatalf("error kind = %q, want %q", KindOf(err), KindValidation)
			}
		})
	}

	if len(repo.answers) != 0 {
		t.Errorf("answer rows written = %d, want 0", len(repo.answers))
	}
}
