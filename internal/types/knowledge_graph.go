package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type KnowledgeGraph struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	LearnerID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"learner_id"`
	Nodes     datatypes.JSON `gorm:"type:jsonb;column:nodes" json:"nodes"`
	Edges     datatypes.JSON `gorm:"type:jsonb;column:edges" json:"edges"`
	Abilities datatypes.JSON `gorm:"type:jsonb;column:abilities" json:"abilities"`
	Coverage  datatypes.JSON `gorm:"type:jsonb;column:exam_coverage" json:"exam_coverage"`
	Baselines datatypes.JSON `gorm:"type:jsonb;column:baselines" json:"baselines"`
	Analysis  datatypes.JSON `gorm:"type:jsonb;column:ai_analysis" json:"ai_analysis"`
	CEFRLevel string         `gorm:"column:cefr_level;not null;default:''" json:"cefr_level"`
	Version   int            `gorm:"column:version;not null;default:0" json:"version"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (KnowledgeGraph) TableName() string { return "knowledge_graph" }
