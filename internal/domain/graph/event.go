package graph

import (
	"time"

	"github.com/google/uuid"
)

// PracticeItem is one answered exercise inside a practice event.
type PracticeItem struct {
	KnowledgePoint string  `json:"knowledge_point"`
	Dimension      string  `json:"dimension,omitempty"`
	Correct        bool    `json:"correct"`
	ResponseTimeMs int     `json:"response_time_ms"`
	Difficulty     float64 `json:"difficulty,omitempty"`
}

// PracticeEvent is the inbound practice submission. Delivery is
// at-least-once; PracticeID is the idempotency key.
type PracticeEvent struct {
	PracticeID  string         `json:"practice_id"`
	LearnerID   uuid.UUID      `json:"learner_id"`
	Items       []PracticeItem `json:"items"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

// Empty reports whether the event carries no scorable items.
func (e PracticeEvent) Empty() bool {
	return len(e.Items) == 0
}
