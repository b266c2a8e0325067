package types

import (
	"time"

	"github.com/google/uuid"
)

// PracticeRecord is the idempotency ledger: one row per practice_id that has
// mutated a graph. Inserted in the same transaction as the conditional write.
type PracticeRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	PracticeID string    `gorm:"column:practice_id;not null;uniqueIndex" json:"practice_id"`
	LearnerID  uuid.UUID `gorm:"type:uuid;not null;index" json:"learner_id"`
	RecordedAt time.Time `gorm:"column:recorded_at;not null;default:now()" json:"recorded_at"`
}

func (PracticeRecord) TableName() string { return "practice_record" }
