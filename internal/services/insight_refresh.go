package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/skillgraph-backend/internal/data/repos/graphstore"
	"github.com/yungbote/skillgraph-backend/internal/domain/graph"
	"github.com/yungbote/skillgraph-backend/internal/engine"
	"github.com/yungbote/skillgraph-backend/internal/insight"
	"github.com/yungbote/skillgraph-backend/internal/platform/envutil"
	"github.com/yungbote/skillgraph-backend/internal/platform/logger"
)

// RefreshLimiter gates how often the provider is consulted per learner.
type RefreshLimiter interface {
	Allow(ctx context.Context, learnerID uuid.UUID) bool
}

type allowAll struct{}

func (allowAll) Allow(context.Context, uuid.UUID) bool { return true }

// InsightRefreshService re-runs the AI estimate over a learner's current
// graph and merges its suggestions into the stored analysis. Rule-derived
// weak points always survive the merge; the provider only adds texture.
type InsightRefreshService interface {
	// Refresh returns the learner's document, enriched when the limiter and
	// provider allow it. Provider failures degrade to the current document.
	Refresh(ctx context.Context, learnerID uuid.UUID) (*graph.Document, error)
}

type insightRefreshService struct {
	store    graphstore.Store
	provider insight.Provider
	limiter  RefreshLimiter
	ranker   *engine.Ranker
	log      *logger.Logger
	cfg      engine.Config
	tracer   trace.Tracer

	providerTimeout time.Duration
	now             func() time.Time
}

func NewInsightRefreshService(store graphstore.Store, provider insight.Provider, limiter RefreshLimiter, baseLog *logger.Logger, cfg engine.Config) InsightRefreshService {
	if limiter == nil {
		limiter = allowAll{}
	}
	return &insightRefreshService{
		store:           store,
		provider:        provider,
		limiter:         limiter,
		ranker:          engine.NewRanker(cfg),
		log:             baseLog.With("service", "InsightRefreshService"),
		cfg:             cfg,
		tracer:          otel.Tracer("skillgraph/services"),
		providerTimeout: envutil.Duration("INSIGHT_PROVIDER_TIMEOUT", 15*time.Second),
		now:             time.Now,
	}
}

func (s *insightRefreshService) Refresh(ctx context.Context, learnerID uuid.UUID) (*graph.Document, error) {
	const op = "InsightRefreshService.Refresh"
	if learnerID == uuid.Nil {
		return nil, graph.NewError(graph.CodeValidation, op, "missing learner_id", nil)
	}

	ctx, span := s.tracer.Start(ctx, "insight.refresh", trace.WithAttributes(
		attribute.String("insight.provider", s.provider.Name()),
	))
	defer span.End()

	doc, err := s.store.Get(ctx, learnerID)
	if err != nil {
		return nil, err
	}

	if !s.limiter.Allow(ctx, learnerID) {
		s.log.Debug("refresh rate-limited", "learner_id", learnerID)
		return doc, nil
	}

	est, err := s.estimate(ctx, learnerID, doc)
	if err != nil {
		s.log.Warn("insight provider failed, keeping rule analysis",
			"learner_id", learnerID,
			"provider", s.provider.Name(),
			"error", err,
		)
		return doc, nil
	}

	aiRecs := s.toRecommendations(est)

	// Merge under the same conditional-write discipline as practice updates;
	// a racing practice event invalidates the weak points we merged against.
	for attempt := 0; attempt < s.cfg.MaxUpdateAttempts; attempt++ {
		now := s.now().UTC()
		next := doc.Clone()
		rule := s.ranker.RuleRecommendations(next, next.Analysis.WeakPoints)
		next.Analysis.Recommendations = s.ranker.Merge(rule, aiRecs)
		next.Analysis.Source = graph.SourceAI
		next.Analysis.GeneratedAt = now

		err = s.store.UpdateByVersion(ctx, learnerID, next, doc.Version, "")
		if err == nil {
			s.log.Info("merged AI insight", "learner_id", learnerID, "version", next.Version)
			return next, nil
		}
		if !graph.IsCode(err, graph.CodeConflict) {
			return nil, err
		}
		doc, err = s.store.Get(ctx, learnerID)
		if err != nil {
			return nil, err
		}
	}
	return nil, graph.NewError(graph.CodeRetryable, op, "conditional write attempts exhausted", nil)
}

func (s *insightRefreshService) estimate(ctx context.Context, learnerID uuid.UUID, doc *graph.Document) (*insight.Estimate, error) {
	ratings := make(map[string]float64, len(doc.Abilities))
	for dim, a := range doc.Abilities {
		ratings[dim] = a.Score
	}

	var summary strings.Builder
	fmt.Fprintf(&summary, "Current CEFR band: %s. Practices recorded: %d.\n", doc.CEFRLevel, doc.Coverage.TotalPractices)
	for _, wp := range doc.Analysis.WeakPoints {
		fmt.Fprintf(&summary, "Weak point: %s (level %.0f, %s priority)\n", wp.KnowledgePoint, wp.CurrentLevel, wp.Priority)
	}

	pctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	return s.provider.Estimate(pctx, insight.Request{
		LearnerID:        learnerID,
		SelfRatings:      ratings,
		PlacementSummary: summary.String(),
	})
}

func (s *insightRefreshService) toRecommendations(est *insight.Estimate) []graph.Recommendation {
	now := s.now().UTC()
	recs := make([]graph.Recommendation, 0, len(est.Narratives))
	for _, text := range est.Narratives {
		recs = append(recs, graph.Recommendation{
			SuggestionText: text,
			Priority:       graph.PriorityMedium,
			Source:         graph.SourceAI,
			DetectedAt:     now,
		})
	}
	return recs
}
