package services

import (
	"testing"

	"github.com/google/uuid"

	"github.com/cbt-portal/exam-service/internal/models"
)

func questionPool(n int) []*models.Question {
	pool := make([]*models.Question, n)
	for i := range pool {
		pool[i] = &models.Question{ID: uint(i + 1), PublicID: uuid.New()}
	}
	return pool
}

func questionIDs(questions []*models.Question) []uint {
	ids := make([]uint, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	return ids
}

func equalIDs(a, b []uint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSelectQuestions_Deterministic(t *testing.T) {
	exam := &models.Exam{ID: 1, PublicID: uuid.New(), RandomizeQuestions: true}
	pool := questionPool(20)

	first := questionIDs(SelectQuestions(exam, pool, "student-1"))
	for i := 0; i < 5; i++ {
		again := questionIDs(SelectQuestions(exam, pool, "student-1"))
		if !equalIDs(first, again) {
			t.Fatalf("selection not stable: %v vs %v", first, again)
		}
	}
}

func TestSelectQuestions_PoolOrderIndependent(t *testing.T) {
	exam := &models.Exam{ID: 1, PublicID: uuid.New(), RandomizeQuestions: true}
	pool := questionPool(20)

	// Reversed input must yield the same serving order; selection sorts the
	// pool by id before permuting.
	reversed := make([]*models.Question, len(pool))
	for i, q := range pool {
		reversed[len(pool)-1-i] = q
	}

	a := questionIDs(SelectQuestions(exam, pool, "student-1"))
	b := questionIDs(SelectQuestions(exam, reversed, "student-1"))
	if !equalIDs(a, b) {
		t.Fatalf("selection depends on input order: %v vs %v", a, b)
	}
}

func TestSelectQuestions_NoRandomizationKeepsOrder(t *testing.T) {
	exam := &models.Exam{ID: 1, PublicID: uuid.New()}
	pool := questionPool(5)

	got := questionIDs(SelectQuestions(exam, pool, "student-1"))
	want := []uint{1, 2, 3, 4, 5}
	if !equalIDs(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSelectQuestions_Truncation(t *testing.T) {
	askThree := 3
	tests := []struct {
		name      string
		randomize bool
		ask       *int
		poolSize  int
		wantLen   int
	}{
		{name: "cap below pool", ask: &askThree, poolSize: 10, wantLen: 3},
		{name: "cap below pool randomized", randomize: true, ask: &askThree, poolSize: 10, wantLen: 3},
		{name: "cap above pool", ask: &askThree, poolSize: 2, wantLen: 2},
		{name: "no cap serves pool", poolSize: 4, wantLen: 4},
		{name: "empty pool", randomize: true, poolSize: 0, wantLen: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exam := &models.Exam{
				ID:                  1,
				PublicID:            uuid.New(),
				RandomizeQuestions:  tt.randomize,
				TotalQuestionsToAsk: tt.ask,
			}
			got := SelectQuestions(exam, questionPool(tt.poolSize), "student-1")
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestSelectQuestions_NoDuplicates(t *testing.T) {
	exam := &models.Exam{ID: 1, PublicID: uuid.New(), RandomizeQuestions: true}
	pool := questionPool(30)

	seen := make(map[uint]bool)
	for _, q := range SelectQuestions(exam, pool, "student-1") {
		if seen[q.ID] {
			t.Fatalf("question %d served twice", q.ID)
		}
		seen[q.ID] = true
	}
	if len(seen) != len(pool) {
		t.Fatalf("selection dropped questions: %d of %d", len(seen), len(pool))
	}
}

func TestSelectQuestions_VariesAcrossStudents(t *testing.T) {
	exam := &models.Exam{ID: 1, PublicID: uuid.New(), RandomizeQuestions: true}
	pool := questionPool(30)

	// With 30 questions, two of ten students sharing one permutation would
	// mean a broken seed.
	orders := make(map[string][]uint)
	base := questionIDs(SelectQuestions(exam, pool, "student-0"))
	allSame := true
	for i := 1; i < 10; i++ {
		id := "student-" + string(rune('0'+i))
		orders[id] = questionIDs(SelectQuestions(exam, pool, id))
		if !equalIDs(base, orders[id]) {
			allSame = false
		}
	}
	if allSame {
		t.Fatal("every student received the identical permutation")
	}
}

func TestShuffleChoices(t *testing.T) {
	question := &models.Question{
		ID:       1,
		PublicID: uuid.New(),
		Type:     models.MultipleChoice,
		Choices: []models.Choice{
			{ID: 4}, {ID: 2}, {ID: 1}, {ID: 3},
		},
	}

	t.Run("no randomization sorts by id", func(t *testing.T) {
		got := ShuffleChoices(question, "student-1", false)
		for i, c := range got {
			if c.ID != uint(i+1) {
				t.Fatalf("choice order %v not sorted", got)
			}
		}
	})

	t.Run("deterministic per student", func(t *testing.T) {
		first := ShuffleChoices(question, "student-1", true)
		again := ShuffleChoices(question, "student-1", true)
		for i := range first {
			if first[i].ID != again[i].ID {
				t.Fatal("choice shuffle not stable for one student")
			}
		}
	})

	t.Run("keeps the full choice set", func(t *testing.T) {
		got := ShuffleChoices(question, "student-1", true)
		if len(got) != len(question.Choices) {
			t.Fatalf("len = %d, want %d", len(got), len(question.Choices))
		}
		seen := make(map[uint]bool)
		for _, c := range got {
			seen[c.ID] = true
		}
		for _, c := range question.Choices {
			if !seen[c.ID] {
				t.Fatalf("choice %d missing after shuffle", c.ID)
			}
		}
	})

	t.Run("single choice untouched", func(t *testing.T) {
		q := &models.Question{ID: 2, PublicID: uuid.New(), Choices: []models.Choice{{ID: 7}}}
		got := ShuffleChoices(q, "student-1", true)
		if len(got) != 1 || got[0].ID != 7 {
			t.Fatalf("unexpected result %v", got)
		}
	})
}
