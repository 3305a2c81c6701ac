package services

import (
	"strconv"
	"strings"

	"github.com/cbt-portal/exam-service/internal/models"
)

// checkAnswerShape rejects payload fields that belong to a different question
// type. Ignoring them would grade only half the submission.
func checkAnswerShape(questionType models.QuestionType, req *SubmitAnswerRequest) error {
	switch questionType {
	case models.FillInBlank:
		if req.ChosenChoiceID != nil || len(req.SelectedChoiceIDs) > 0 {
			return NewValidationError("choice selections are not valid for a text question", nil)
		}
	case models.MultipleChoice, models.TrueFalse:
		if len(req.SelectedChoiceIDs) > 0 || req.AnswerText != "" {
			return NewValidationError("this question takes a single chosen choice id", nil)
		}
	case models.MultiSelect:
		if req.ChosenChoiceID != nil {
			return NewValidationError("multi-select answers are submitted as selected choice ids", nil)
		}
	}
	return nil
}

// normalizeAnswer prepares free-text answers for comparison: trim, collapse
// internal whitespace runs to single spaces, lowercase. "  New   York " and
// "new york" compare equal.
func normalizeAnswer(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// parseSelectedIDs extracts the multi-select choice ids from a request. The
// id list wins when present; otherwise AnswerText is read as comma-delimited
// numbers. Non-numeric tokens are dropped silently.
func parseSelectedIDs(req *SubmitAnswerRequest) []uint {
	if len(req.SelectedChoiceIDs) > 0 {
		return req.SelectedChoiceIDs
	}

	var ids []uint
	for _, token := range strings.Split(req.AnswerText, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		id, err := strconv.ParseUint(token, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids
}

// joinIDs renders ids as the comma-delimited form stored on summary rows.
func joinIDs(ids []uint) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ",")
}
