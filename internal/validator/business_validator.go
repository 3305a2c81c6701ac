package validator

import (
	"fmt"
	"strings"

	"github.com/cbt-portal/exam-service/internal/models"
)

// ValidateExamConfiguration checks an exam's selection and grading
// configuration against its question pool. The returned issues mirror what an
// operator needs to fix before the exam can be served; an empty slice means
// the exam is gradable as configured.
//
// Choice gradability (>= 1 correct choice per choice-backed question) is
// deliberately validated here, out of band, rather than enforced at write
// time: bulk question import may create and replace choices between attempts.
func ValidateExamConfiguration(exam *models.Exam, questions []*models.Question) []string {
	var issues []string

	if len(questions) == 0 {
		issues = append(issues, "no questions have been added to this exam")
		return issues
	}

	if exam.TotalQuestionsToAsk != nil && *exam.TotalQuestionsToAsk > len(questions) {
		issues = append(issues, fmt.Sprintf(
			"cannot ask %d questions when only %d are available",
			*exam.TotalQuestionsToAsk, len(questions)))
	}

	choiceQuestionsWithoutCorrect := 0
	fillBlankWithoutAnswer := 0
	for _, q := range questions {
		switch {
		case q.Type.HasChoices():
			if len(q.CorrectChoiceIDs()) == 0 {
				choiceQuestionsWithoutCorrect++
			}
		case q.Type == models.FillInBlank:
			if q.CorrectAnswer == nil || strings.TrimSpace(*q.CorrectAnswer) == "" {
				fillBlankWithoutAnswer++
			}
		}
	}

	if choiceQuestionsWithoutCorrect > 0 {
		issues = append(issues, fmt.Sprintf(
			"%d choice questions don't have a correct choice marked", choiceQuestionsWithoutCorrect))
	}
	if fillBlankWithoutAnswer > 0 {
		issues = append(issues, fmt.Sprintf(
			"%d fill-in-blank questions don't have a correct answer set", fillBlankWithoutAnswer))
	}

	return issues
}

// ValidateQuestionCap enforces the activation invariant: a configured
// question cap must not exceed the owned pool.
func ValidateQuestionCap(exam *models.Exam, poolSize int) ValidationErrors {
	if exam.TotalQuestionsToAsk == nil {
		return nil
	}
	if *exam.TotalQuestionsToAsk > poolSize {
		return ValidationErrors{{
			Field:   "total_questions_to_ask",
			Message: fmt.Sprintf("exceeds question pool size %d", poolSize),
			Value:   *exam.TotalQuestionsToAsk,
			Rule:    "business_logic",
		}}
	}
	return nil
}
