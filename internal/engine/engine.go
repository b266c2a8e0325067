package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/skillgraph-backend/internal/data/repos/graphstore"
	"github.com/yungbote/skillgraph-backend/internal/domain/graph"
	"github.com/yungbote/skillgraph-backend/internal/platform/logger"
)

// Metrics receives engine-level observability events.
type Metrics interface {
	ObservePracticeUpdate(status string, dur time.Duration)
	IncConflict()
	IncRetry()
}

type noopMetrics struct{}

func (noopMetrics) ObservePracticeUpdate(string, time.Duration) {}
func (noopMetrics) IncConflict()                                {}
func (noopMetrics) IncRetry()                                   {}

// Bootstrapper covers the cold-start path the engine delegates to when a
// practice event arrives for a learner with no graph yet. Implemented by the
// diagnosis service; the engine only needs the degraded fallback variant.
type Bootstrapper interface {
	BootstrapFallback(ctx context.Context, learnerID uuid.UUID) (*graph.Document, error)
}

// Invalidator drops any cached snapshot after a successful mutation.
type Invalidator interface {
	Invalidate(ctx context.Context, learnerID uuid.UUID)
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, uuid.UUID) {}

// Engine converts practice events into bounded ability-score updates under
// optimistic concurrency. The read -> compute -> conditional-write loop is
// explicit here because a conflicted delta must be recomputed against fresh
// state, never replayed.
type Engine struct {
	store       graphstore.Store
	boot        Bootstrapper
	ranker      *Ranker
	classifiers []AnomalyClassifier
	log         *logger.Logger
	cfg         Config
	metrics     Metrics
	invalidator Invalidator
	tracer      trace.Tracer
	now         func() time.Time
}

type Option func(*Engine)

// WithMetrics attaches engine metrics.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithInvalidator attaches a snapshot-cache invalidator.
func WithInvalidator(inv Invalidator) Option {
	return func(e *Engine) {
		if inv != nil {
			e.invalidator = inv
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func New(store graphstore.Store, boot Bootstrapper, baseLog *logger.Logger, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		boot:        boot,
		ranker:      NewRanker(cfg),
		classifiers: DefaultClassifiers(),
		log:         baseLog.With("service", "RuleEngine"),
		cfg:         cfg.normalized(),
		metrics:     noopMetrics{},
		invalidator: noopInvalidator{},
		tracer:      otel.Tracer("skillgraph/engine"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective tunables.
func (e *Engine) Config() Config { return e.cfg }

// UpdateFromPractice applies one practice event to the learner's graph and
// returns the resulting document.
//
// Guarantees:
//   - every ability score stays within [0,100]
//   - a practice_id mutates the graph at most once; duplicates return the
//     current document unchanged
//   - on version conflict the delta is recomputed from fresh state, with
//     bounded attempts; exhaustion surfaces as a retryable error
//   - a missing graph bootstraps neutral defaults instead of failing
func (e *Engine) UpdateFromPractice(ctx context.Context, event graph.PracticeEvent) (*graph.Document, error) {
	const op = "RuleEngine.UpdateFromPractice"
	start := e.now()

	ctx, span := e.tracer.Start(ctx, "engine.update_from_practice", trace.WithAttributes(
		attribute.String("practice.id", event.PracticeID),
		attribute.Int("practice.items", len(event.Items)),
	))
	defer span.End()

	if event.LearnerID == uuid.Nil {
		return nil, graph.NewError(graph.CodeValidation, op, "missing learner_id", nil)
	}
	if event.PracticeID == "" {
		return nil, graph.NewError(graph.CodeValidation, op, "missing practice_id", nil)
	}

	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxUpdateAttempts; attempt++ {
		if attempt > 0 {
			e.metrics.IncRetry()
		}

		doc, err := e.store.Get(ctx, event.LearnerID)
		if graph.IsCode(err, graph.CodeNotFound) {
			// Practice recording must never be blocked by missing diagnosis
			// state: bootstrap neutral defaults and continue degraded.
			e.log.Warn("graph missing on update, bootstrapping fallback", "learner_id", event.LearnerID)
			doc, err = e.boot.BootstrapFallback(ctx, event.LearnerID)
		}
		if err != nil {
			e.metrics.ObservePracticeUpdate("error", e.now().Sub(start))
			span.SetStatus(codes.Error, "load graph")
			return nil, err
		}

		// Malformed event: advisory no-op, no version increment.
		if event.Empty() {
			e.log.Warn("practice event has no items, skipping", "practice_id", event.PracticeID)
			e.metrics.ObservePracticeUpdate("empty", e.now().Sub(start))
			return doc, nil
		}

		// Idempotence guard against at-least-once delivery.
		seen, err := e.store.SeenPractice(ctx, event.PracticeID)
		if err != nil {
			return nil, err
		}
		if seen {
			e.log.Debug("duplicate practice event, returning current graph", "practice_id", event.PracticeID)
			e.metrics.ObservePracticeUpdate("duplicate", e.now().Sub(start))
			return doc, nil
		}

		next, analysis := e.AnalyzePractice(doc, event, e.now().UTC())

		err = e.store.UpdateByVersion(ctx, event.LearnerID, next, doc.Version, event.PracticeID)
		if graph.IsCode(err, graph.CodeConflict) {
			// Someone else won the conditional write. Recompute against the
			// fresh document; the stale delta is worthless because anomaly
			// baselines and coverage counters have moved.
			e.metrics.IncConflict()
			lastErr = err
			continue
		}
		if err != nil {
			e.metrics.ObservePracticeUpdate("error", e.now().Sub(start))
			span.SetStatus(codes.Error, "conditional write")
			return nil, err
		}

		e.invalidator.Invalidate(ctx, event.LearnerID)
		e.metrics.ObservePracticeUpdate("ok", e.now().Sub(start))
		span.SetAttributes(
			attribute.Int("graph.version", next.Version),
			attribute.Int("analysis.anomalies", len(analysis.Flags)),
		)
		return next, nil
	}

	e.metrics.ObservePracticeUpdate("conflict_exhausted", e.now().Sub(start))
	span.SetStatus(codes.Error, "retries exhausted")
	return nil, graph.Wrap(graph.CodeRetryable, op, lastErr)
}

// PracticeAnalysis reports what one event did beyond the score deltas.
type PracticeAnalysis struct {
	// Flags maps dimension -> anomaly flags raised for this event.
	Flags map[string][]AnomalyFlag
	// WeakPoints is the full recomputed weak-point list.
	WeakPoints []graph.WeakPoint
}

// AnalyzePractice computes the next document for one event. Pure over
// (document, event, now): no I/O, no mutation of the input document.
func (e *Engine) AnalyzePractice(doc *graph.Document, event graph.PracticeEvent, now time.Time) (*graph.Document, *PracticeAnalysis) {
	next := doc.Clone()
	analysis := &PracticeAnalysis{Flags: map[string][]AnomalyFlag{}}

	// Resolve each item to a node up front so dimension aggregation can use
	// stored node metadata for knowledge points seen before.
	for _, item := range event.Items {
		if item.KnowledgePoint == "" {
			continue
		}
		next.EnsureNode(item.KnowledgePoint, "", item.Dimension)
	}

	dims := aggregateByDimension(next, event.Items)

	// Classify anomalies against the persisted baselines before they absorb
	// this event's observations.
	dampened := map[string]bool{}
	for dim, s := range dims {
		flags := RunClassifiers(e.classifiers, s, next.Baselines[dim], e.cfg)
		if len(flags) > 0 {
			analysis.Flags[dim] = flags
			dampened[dim] = true
		}
	}

	// Ability updates: one bounded step per dimension that had items.
	// Dimensions untouched by the event are a strict no-op.
	for dim, s := range dims {
		if !graph.IsDimension(dim) {
			continue
		}
		next.Abilities[dim] = UpdateAbility(next.Abilities[dim], s.Performance, dampened[dim], now, e.cfg)
	}

	// Knowledge-point updates share the ability math; a node inherits the
	// dampening decision of its dimension.
	for id, s := range aggregateByNode(event.Items) {
		n := next.Node(id)
		if n == nil {
			continue
		}
		UpdateNode(n, s.Performance, dampened[n.Dimension], now, e.cfg)
	}

	// Baselines absorb the new observations after classification.
	for dim, s := range dims {
		next.Baselines[dim] = AppendBaseline(next.Baselines[dim], s.Performance, s.MeanResponseMs, e.cfg.BaselineWindow)
	}

	updateCoverage(next, event.SubmittedAt, now)
	next.CEFRLevel = DeriveCEFR(next.Abilities)

	analysis.WeakPoints = DetectWeakPoints(next, now, e.cfg)
	rule := e.ranker.RuleRecommendations(next, analysis.WeakPoints)
	next.Analysis = graph.Analysis{
		WeakPoints:      analysis.WeakPoints,
		Recommendations: e.ranker.Merge(rule, AISuggestions(doc.Analysis)),
		Source:          graph.SourceRule,
		GeneratedAt:     now,
	}
	next.UpdatedAt = now

	return next, analysis
}

// aggregateByDimension folds items into one weighted sample per dimension.
// Item difficulty weights the contribution; unweighted items count as 1.
func aggregateByDimension(doc *graph.Document, items []graph.PracticeItem) map[string]Sample {
	type acc struct {
		weight, correct, timeMs float64
		count                   int
	}
	accs := map[string]*acc{}
	for _, item := range items {
		dim := resolveDimension(doc, item)
		if dim == "" {
			continue
		}
		a := accs[dim]
		if a == nil {
			a = &acc{}
			accs[dim] = a
		}
		w := item.Difficulty
		if w <= 0 {
			w = 1
		}
		a.weight += w
		if item.Correct {
			a.correct += w
		}
		a.timeMs += float64(item.ResponseTimeMs)
		a.count++
	}

	out := map[string]Sample{}
	for dim, a := range accs {
		if a.weight == 0 {
			continue
		}
		s := Sample{
			Dimension:   dim,
			Performance: 100 * a.correct / a.weight,
			Items:       a.count,
		}
		if a.count > 0 {
			s.MeanResponseMs = a.timeMs / float64(a.count)
		}
		out[dim] = s
	}
	return out
}

func aggregateByNode(items []graph.PracticeItem) map[string]Sample {
	type acc struct {
		weight, correct float64
		count           int
	}
	accs := map[string]*acc{}
	for _, item := range items {
		if item.KnowledgePoint == "" {
			continue
		}
		a := accs[item.KnowledgePoint]
		if a == nil {
			a = &acc{}
			accs[item.KnowledgePoint] = a
		}
		w := item.Difficulty
		if w <= 0 {
			w = 1
		}
		a.weight += w
		if item.Correct {
			a.correct += w
		}
		a.count++
	}

	out := map[string]Sample{}
	for id, a := range accs {
		if a.weight == 0 {
			continue
		}
		out[id] = Sample{Performance: 100 * a.correct / a.weight, Items: a.count}
	}
	return out
}

func resolveDimension(doc *graph.Document, item graph.PracticeItem) string {
	if n := doc.Node(item.KnowledgePoint); n != nil && n.Dimension != "" {
		return n.Dimension
	}
	if graph.IsDimension(item.Dimension) {
		return item.Dimension
	}
	return ""
}

func updateCoverage(doc *graph.Document, submittedAt, now time.Time) {
	if submittedAt.IsZero() {
		submittedAt = now
	}
	doc.Coverage.TotalPractices++

	cutoff := now.AddDate(0, 0, -7)
	recent := doc.Coverage.RecentPractices[:0]
	for _, t := range doc.Coverage.RecentPractices {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if submittedAt.After(cutoff) {
		recent = append(recent, submittedAt)
	}
	doc.Coverage.RecentPractices = recent
	doc.Coverage.PracticesLast7d = len(recent)

	distinct := 0
	for i := range doc.Nodes {
		if doc.Nodes[i].LastPracticedAt != nil {
			distinct++
		}
	}
	doc.Coverage.DistinctPoints = distinct
}
