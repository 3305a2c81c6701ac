package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types published by this service.
const (
	EventAttemptCompleted = "attempt.completed"
)

const (
	eventSource  = "exam-service"
	eventVersion = "1.0"
)

// Event is the envelope wrapping every published payload.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewEvent builds an envelope for the given type and payload.
func NewEvent(eventType string, data interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    eventSource,
		Version:   eventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// AttemptCompletedEvent is emitted exactly once when an attempt reaches its
// terminal state, whether by explicit submission or by timeout.
type AttemptCompletedEvent struct {
	AttemptID   uuid.UUID       `json:"attempt_id"`
	ExamID      uuid.UUID       `json:"exam_id"`
	ExamTitle   string          `json:"exam_title"`
	StudentID   string          `json:"student_id"`
	Score       decimal.Decimal `json:"score"`
	Percentage  decimal.Decimal `json:"percentage"`
	Passed      bool            `json:"passed"`
	TimedOut    bool            `json:"timed_out"`
	CompletedAt time.Time       `json:"completed_at"`
}
