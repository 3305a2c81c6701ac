package services

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"

	"github.com/cbt-portal/exam-service/internal/models"
)

// Deterministic per-student selection. The same (exam, student) pair must be
// served the same question sequence on every call, without storing anything:
// the permutation is derived from a stable seed, never from global rand state.

// stableSeed hashes a key to a rand seed with FNV-64a.
func stableSeed(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}

// selectionKey is the seed key for an exam's question order.
func selectionKey(exam *models.Exam, studentID string) string {
	return fmt.Sprintf("%s_%s", exam.PublicID, studentID)
}

// SelectQuestions returns the questions this student is asked on this exam,
// in serving order. With randomization off the persisted order is kept; with
// it on, a seeded permutation is applied. Either way the list is truncated to
// the exam's cap. An empty pool yields an empty slice.
func SelectQuestions(exam *models.Exam, questions []*models.Question, studentID string) []*models.Question {
	if len(questions) == 0 {
		return []*models.Question{}
	}

	ordered := make([]*models.Question, len(questions))
	copy(ordered, questions)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	if exam.RandomizeQuestions {
		rng := rand.New(rand.NewSource(stableSeed(selectionKey(exam, studentID))))
		perm := rng.Perm(len(ordered))
		shuffled := make([]*models.Question, len(ordered))
		for i, p := range perm {
			shuffled[i] = ordered[p]
		}
		ordered = shuffled
	}

	count := exam.QuestionsToAsk(len(ordered))
	return ordered[:count]
}

// ShuffleChoices returns the question's choices in this student's serving
// order. Each question gets an independent seed so choice order does not
// correlate across questions.
func ShuffleChoices(question *models.Question, studentID string, randomize bool) []models.Choice {
	ordered := make([]models.Choice, len(question.Choices))
	copy(ordered, question.Choices)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	if !randomize || len(ordered) < 2 {
		return ordered
	}

	key := fmt.Sprintf("%s_%s", question.PublicID, studentID)
	rng := rand.New(rand.NewSource(stableSeed(key)))
	perm := rng.Perm(len(ordered))
	shuffled := make([]models.Choice, len(ordered))
	for i, p := range perm {
		shuffled[i] = ordered[p]
	}
	return shuffled
}
