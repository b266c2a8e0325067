package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/skillgraph-backend/internal/data/repos/graphstore"
	"github.com/yungbote/skillgraph-backend/internal/domain/graph"
	"github.com/yungbote/skillgraph-backend/internal/platform/logger"
)

// KnowledgeGraphSnapshot is the read-model view of one learner's graph.
type KnowledgeGraphSnapshot struct {
	LearnerID       uuid.UUID                `json:"learner_id"`
	Abilities       map[string]graph.Ability `json:"abilities"`
	CEFRLevel       string                   `json:"cefr_level"`
	Nodes           []graph.Node             `json:"nodes,omitempty"`
	Edges           []graph.Edge             `json:"edges,omitempty"`
	Coverage        graph.Coverage           `json:"exam_coverage"`
	WeakPoints      []graph.WeakPoint        `json:"weak_points,omitempty"`
	Recommendations []graph.Recommendation   `json:"recommendations,omitempty"`
	AnalysisSource  string                   `json:"analysis_source"`
	Version         int                      `json:"version"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

// SnapshotCache is the read-through cache the service consults first.
// Implemented by the Redis snapshot cache; nil disables caching.
type SnapshotCache interface {
	Get(ctx context.Context, learnerID uuid.UUID, out any) (bool, error)
	Set(ctx context.Context, learnerID uuid.UUID, v any)
}

// SnapshotService assembles read-only graph snapshots.
type SnapshotService interface {
	GetSnapshot(ctx context.Context, learnerID uuid.UUID) (*KnowledgeGraphSnapshot, error)
}

// CacheObserver counts snapshot cache lookups. Nil disables counting.
type CacheObserver interface {
	IncSnapshotCache(result string)
}

type snapshotService struct {
	store graphstore.Store
	cache SnapshotCache
	obs   CacheObserver
	log   *logger.Logger
}

func NewSnapshotService(store graphstore.Store, cache SnapshotCache, obs CacheObserver, baseLog *logger.Logger) SnapshotService {
	return &snapshotService{
		store: store,
		cache: cache,
		obs:   obs,
		log:   baseLog.With("service", "SnapshotService"),
	}
}

func (s *snapshotService) GetSnapshot(ctx context.Context, learnerID uuid.UUID) (*KnowledgeGraphSnapshot, error) {
	const op = "SnapshotService.GetSnapshot"
	if learnerID == uuid.Nil {
		return nil, graph.NewError(graph.CodeValidation, op, "missing learner_id", nil)
	}

	if s.cache != nil {
		var snap KnowledgeGraphSnapshot
		hit, err := s.cache.Get(ctx, learnerID, &snap)
		if err != nil {
			s.log.Warn("snapshot cache read failed", "learner_id", learnerID, "error", err)
		} else if hit {
			if s.obs != nil {
				s.obs.IncSnapshotCache("hit")
			}
			return &snap, nil
		}
		if s.obs != nil {
			s.obs.IncSnapshotCache("miss")
		}
	}

	doc, err := s.store.Get(ctx, learnerID)
	if err != nil {
		return nil, err
	}

	snap := &KnowledgeGraphSnapshot{
		LearnerID:       learnerID,
		Abilities:       doc.Abilities,
		CEFRLevel:       doc.CEFRLevel,
		Nodes:           doc.Nodes,
		Edges:           doc.Edges,
		Coverage:        doc.Coverage,
		WeakPoints:      doc.Analysis.WeakPoints,
		Recommendations: doc.Analysis.Recommendations,
		AnalysisSource:  doc.Analysis.Source,
		Version:         doc.Version,
		UpdatedAt:       doc.UpdatedAt,
	}

	if s.cache != nil {
		s.cache.Set(ctx, learnerID, snap)
	}
	return snap, nil
}
