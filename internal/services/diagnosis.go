package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/skillgraph-backend/internal/data/repos/graphstore"
	"github.com/yungbote/skillgraph-backend/internal/domain/graph"
	"github.com/yungbote/skillgraph-backend/internal/engine"
	"github.com/yungbote/skillgraph-backend/internal/insight"
	"github.com/yungbote/skillgraph-backend/internal/platform/envutil"
	"github.com/yungbote/skillgraph-backend/internal/platform/logger"
)

// DiagnosisResult pairs one batch entry with its outcome.
type DiagnosisResult struct {
	LearnerID uuid.UUID
	Document  *graph.Document
	Err       error
}

// DiagnosisService seeds a learner's first knowledge graph. Bootstrap can
// degrade to neutral defaults but never blocks on the insight provider.
type DiagnosisService interface {
	// DiagnoseInitial creates the learner's graph from intake material.
	// Idempotent: an existing graph is returned untouched.
	DiagnoseInitial(ctx context.Context, req insight.Request) (*graph.Document, error)

	// DiagnoseBatch runs DiagnoseInitial for many learners with bounded
	// concurrency. One learner's failure does not abort the rest.
	DiagnoseBatch(ctx context.Context, reqs []insight.Request) []DiagnosisResult

	// BootstrapFallback creates a neutral graph without consulting the
	// provider. Used when a practice event races ahead of diagnosis.
	BootstrapFallback(ctx context.Context, learnerID uuid.UUID) (*graph.Document, error)
}

// DiagnosisObserver counts completed diagnoses by analysis source.
// Satisfied by the metrics registry; nil disables counting.
type DiagnosisObserver interface {
	IncDiagnosis(source string)
}

type diagnosisService struct {
	store    graphstore.Store
	provider insight.Provider
	obs      DiagnosisObserver
	log      *logger.Logger
	cfg      engine.Config
	tracer   trace.Tracer

	providerTimeout  time.Duration
	batchConcurrency int
	now              func() time.Time
}

func NewDiagnosisService(store graphstore.Store, provider insight.Provider, obs DiagnosisObserver, baseLog *logger.Logger, cfg engine.Config) DiagnosisService {
	return &diagnosisService{
		store:            store,
		provider:         provider,
		obs:              obs,
		log:              baseLog.With("service", "DiagnosisService"),
		cfg:              cfg,
		tracer:           otel.Tracer("skillgraph/services"),
		providerTimeout:  envutil.Duration("DIAGNOSIS_PROVIDER_TIMEOUT", 10*time.Second),
		batchConcurrency: envutil.Int("DIAGNOSIS_BATCH_CONCURRENCY", 4),
		now:              time.Now,
	}
}

func (s *diagnosisService) DiagnoseInitial(ctx context.Context, req insight.Request) (*graph.Document, error) {
	const op = "DiagnosisService.DiagnoseInitial"
	if req.LearnerID == uuid.Nil {
		return nil, graph.NewError(graph.CodeValidation, op, "missing learner_id", nil)
	}

	ctx, span := s.tracer.Start(ctx, "diagnosis.initial", trace.WithAttributes(
		attribute.String("insight.provider", s.provider.Name()),
	))
	defer span.End()

	existing, err := s.store.Get(ctx, req.LearnerID)
	if err == nil {
		s.log.Debug("graph already exists, diagnosis is a no-op", "learner_id", req.LearnerID)
		return existing, nil
	}
	if !graph.IsCode(err, graph.CodeNotFound) {
		return nil, err
	}

	doc := s.estimateDocument(ctx, req)
	span.SetAttributes(attribute.String("analysis.source", doc.Analysis.Source))
	return s.createOrReturnExisting(ctx, req.LearnerID, doc)
}

func (s *diagnosisService) DiagnoseBatch(ctx context.Context, reqs []insight.Request) []DiagnosisResult {
	results := make([]DiagnosisResult, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			doc, err := s.DiagnoseInitial(gctx, req)
			results[i] = DiagnosisResult{LearnerID: req.LearnerID, Document: doc, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *diagnosisService) BootstrapFallback(ctx context.Context, learnerID uuid.UUID) (*graph.Document, error) {
	const op = "DiagnosisService.BootstrapFallback"
	if learnerID == uuid.Nil {
		return nil, graph.NewError(graph.CodeValidation, op, "missing learner_id", nil)
	}
	return s.createOrReturnExisting(ctx, learnerID, s.neutralDocument(s.now().UTC()))
}

// estimateDocument asks the provider for a starting estimate, falling back to
// neutral defaults on any provider failure.
func (s *diagnosisService) estimateDocument(ctx context.Context, req insight.Request) *graph.Document {
	now := s.now().UTC()

	pctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	est, err := s.provider.Estimate(pctx, req)
	if err != nil {
		s.log.Warn("insight provider failed, using neutral defaults",
			"learner_id", req.LearnerID,
			"provider", s.provider.Name(),
			"error", err,
		)
		return s.neutralDocument(now)
	}

	doc := s.neutralDocument(now)
	for dim, score := range est.Abilities {
		if !graph.IsDimension(dim) {
			continue
		}
		doc.Abilities[dim] = graph.Ability{Score: score, ConfidenceCount: 0, LastUpdated: now}
	}
	doc.CEFRLevel = est.CEFRLevel
	if doc.CEFRLevel == "" {
		doc.CEFRLevel = engine.DeriveCEFR(doc.Abilities)
	}

	recs := make([]graph.Recommendation, 0, len(est.Narratives))
	for _, text := range est.Narratives {
		recs = append(recs, graph.Recommendation{
			SuggestionText: text,
			Priority:       graph.PriorityMedium,
			Source:         graph.SourceAI,
			DetectedAt:     now,
		})
	}
	doc.Analysis = graph.Analysis{
		Recommendations: recs,
		Source:          graph.SourceAI,
		GeneratedAt:     now,
	}
	return doc
}

func (s *diagnosisService) neutralDocument(now time.Time) *graph.Document {
	abilities := make(map[string]graph.Ability, len(graph.Dimensions))
	for _, dim := range graph.Dimensions {
		abilities[dim] = graph.Ability{Score: 50, ConfidenceCount: 0, LastUpdated: now}
	}
	doc := &graph.Document{
		Abilities: abilities,
		Baselines: map[string]graph.Baseline{},
		Analysis: graph.Analysis{
			Source:      graph.SourceFallback,
			GeneratedAt: now,
		},
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	doc.CEFRLevel = engine.DeriveCEFR(doc.Abilities)
	return doc
}

// createOrReturnExisting inserts doc at version 0; when a concurrent create
// wins the race, the winner's document is returned instead.
func (s *diagnosisService) createOrReturnExisting(ctx context.Context, learnerID uuid.UUID, doc *graph.Document) (*graph.Document, error) {
	err := s.store.Create(ctx, learnerID, doc)
	if err == nil {
		if s.obs != nil {
			s.obs.IncDiagnosis(doc.Analysis.Source)
		}
		s.log.Info("created initial graph",
			"learner_id", learnerID,
			"cefr_level", doc.CEFRLevel,
			"source", doc.Analysis.Source,
		)
		return doc, nil
	}
	if graph.IsCode(err, graph.CodeConflict) {
		return s.store.Get(ctx, learnerID)
	}
	return nil, err
}
