package graphstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/skillgraph-backend/internal/domain/graph"
	"github.com/yungbote/skillgraph-backend/internal/platform/logger"
	"github.com/yungbote/skillgraph-backend/internal/types"
)

// Store is the persistence boundary for one learner's knowledge graph.
// It performs state transfer and conflict detection only; no business logic.
type Store interface {
	// Get returns the current document, or a CodeNotFound error.
	Get(ctx context.Context, learnerID uuid.UUID) (*graph.Document, error)

	// Create inserts the learner's first document at version 0. A concurrent
	// duplicate create surfaces as CodeConflict.
	Create(ctx context.Context, learnerID uuid.UUID, doc *graph.Document) error

	// UpdateByVersion performs the single atomic conditional write:
	// UPDATE ... WHERE learner_id = ? AND version = expectedVersion. Zero
	// affected rows surfaces as CodeConflict. When practiceID is non-empty
	// the idempotency ledger row is inserted in the same transaction, so a
	// duplicate delivery can never mutate the graph twice.
	UpdateByVersion(ctx context.Context, learnerID uuid.UUID, doc *graph.Document, expectedVersion int, practiceID string) error

	// SeenPractice reports whether practiceID has already mutated a graph.
	SeenPractice(ctx context.Context, practiceID string) (bool, error)
}

type store struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStore(db *gorm.DB, baseLog *logger.Logger) Store {
	return &store{db: db, log: baseLog.With("repo", "GraphStore")}
}

func (s *store) Get(ctx context.Context, learnerID uuid.UUID) (*graph.Document, error) {
	const op = "GraphStore.Get"
	if learnerID == uuid.Nil {
		return nil, graph.NewError(graph.CodeValidation, op, "missing learner_id", nil)
	}
	var row types.KnowledgeGraph
	if err := s.db.WithContext(ctx).
		Where("learner_id = ?", learnerID).
		First(&row).Error; err != nil {
		return nil, MapError(op, err)
	}
	doc, err := toDocument(&row)
	if err != nil {
		return nil, graph.Wrap(graph.CodeInternal, op, err)
	}
	return doc, nil
}

func (s *store) Create(ctx context.Context, learnerID uuid.UUID, doc *graph.Document) error {
	const op = "GraphStore.Create"
	if learnerID == uuid.Nil {
		return graph.NewError(graph.CodeValidation, op, "missing learner_id", nil)
	}
	if doc == nil {
		return graph.NewError(graph.CodeValidation, op, "missing document", nil)
	}
	if doc.Version != 0 {
		return graph.NewError(graph.CodeValidation, op, "new documents start at version 0", nil)
	}
	row, err := toModel(learnerID, doc)
	if err != nil {
		return graph.Wrap(graph.CodeInternal, op, err)
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return MapError(op, err)
	}
	return nil
}

func (s *store) UpdateByVersion(ctx context.Context, learnerID uuid.UUID, doc *graph.Document, expectedVersion int, practiceID string) error {
	const op = "GraphStore.UpdateByVersion"
	if learnerID == uuid.Nil {
		return graph.NewError(graph.CodeValidation, op, "missing learner_id", nil)
	}
	if doc == nil {
		return graph.NewError(graph.CodeValidation, op, "missing document", nil)
	}
	if expectedVersion < 0 {
		return graph.NewError(graph.CodeValidation, op, "expectedVersion must be >= 0", nil)
	}

	row, err := toModel(learnerID, doc)
	if err != nil {
		return graph.Wrap(graph.CodeInternal, op, err)
	}
	now := time.Now().UTC()
	updates := map[string]any{
		"nodes":         row.Nodes,
		"edges":         row.Edges,
		"abilities":     row.Abilities,
		"exam_coverage": row.Coverage,
		"baselines":     row.Baselines,
		"ai_analysis":   row.Analysis,
		"cefr_level":    row.CEFRLevel,
		"version":       expectedVersion + 1,
		"updated_at":    now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if practiceID != "" {
			rec := &types.PracticeRecord{
				PracticeID: practiceID,
				LearnerID:  learnerID,
				RecordedAt: now,
			}
			if err := tx.Create(rec).Error; err != nil {
				return err
			}
		}
		res := tx.Model(&types.KnowledgeGraph{}).
			Where("learner_id = ? AND version = ?", learnerID, expectedVersion).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return graph.NewError(graph.CodeConflict, op, "version changed since read", nil)
		}
		return nil
	})
	if err != nil {
		return MapError(op, err)
	}

	doc.Version = expectedVersion + 1
	doc.UpdatedAt = now
	return nil
}

func (s *store) SeenPractice(ctx context.Context, practiceID string) (bool, error) {
	const op = "GraphStore.SeenPractice"
	if practiceID == "" {
		return false, graph.NewError(graph.CodeValidation, op, "missing practice_id", nil)
	}
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&types.PracticeRecord{}).
		Where("practice_id = ?", practiceID).
		Count(&count).Error; err != nil {
		return false, MapError(op, err)
	}
	return count > 0, nil
}
