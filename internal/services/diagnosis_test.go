package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/skillgraph-backend/internal/domain/graph"
	"github.com/yungbote/skillgraph-backend/internal/engine"
	"github.com/yungbote/skillgraph-backend/internal/insight"
)

func abilityEstimate(score float64) map[string]float64 {
	out := map[string]float64{}
	for _, d := range graph.Dimensions {
		out[d] = score
	}
	return out
}

func TestDiagnoseInitial_UsesProviderEstimate(t *testing.T) {
	store := newFakeGraphStore()
	est := abilityEstimate(55)
	est["reading"] = 80
	provider := insight.NewMockProvider(insight.MockResponse{Estimate: &insight.Estimate{
		Abilities:  est,
		CEFRLevel:  "B2",
		Narratives: []string{"Focus on listening comprehension first."},
	}})
	svc := NewDiagnosisService(store, provider, nil, testLogger(t), engine.DefaultConfig())
	learnerID := uuid.New()

	doc, err := svc.DiagnoseInitial(context.Background(), insight.Request{LearnerID: learnerID})
	if err != nil {
		t.Fatalf("diagnose failed: %v", err)
	}

	if doc.Version != 0 {
		t.Fatalf("initial graph must start at version 0, got %d", doc.Version)
	}
	if doc.Abilities["reading"].Score != 80 || doc.Abilities["grammar"].Score != 55 {
		t.Fatalf("provider abilities not applied: %+v", doc.Abilities)
	}
	if doc.CEFRLevel != "B2" {
		t.Fatalf("expected CEFR B2, got %q", doc.CEFRLevel)
	}
	if doc.Analysis.Source != graph.SourceAI {
		t.Fatalf("expected ai analysis source, got %q", doc.Analysis.Source)
	}
	if len(doc.Analysis.Recommendations) != 1 || doc.Analysis.Recommendations[0].Source != graph.SourceAI {
		t.Fatalf("expected one ai recommendation, got %v", doc.Analysis.Recommendations)
	}
	if store.createCalls != 1 {
		t.Fatalf("expected one create, got %d", store.createCalls)
	}
}

func TestDiagnoseInitial_ProviderFailureFallsBackNeutral(t *testing.T) {
	store := newFakeGraphStore()
	provider := insight.NewMockProvider() // empty queue: always unavailable
	svc := NewDiagnosisService(store, provider, nil, testLogger(t), engine.DefaultConfig())
	learnerID := uuid.New()

	doc, err := svc.DiagnoseInitial(context.Background(), insight.Request{LearnerID: learnerID})
	if err != nil {
		t.Fatalf("bootstrap must not fail on provider outage: %v", err)
	}

	for _, dim := range graph.Dimensions {
		if doc.Abilities[dim].Score != 50 {
			t.Fatalf("expected neutral 50 for %s, got %v", dim, doc.Abilities[dim].Score)
		}
	}
	if doc.CEFRLevel != "B1" {
		t.Fatalf("expected B1 from neutral scores, got %q", doc.CEFRLevel)
	}
	if doc.Analysis.Source != graph.SourceFallback {
		t.Fatalf("expected fallback source, got %q", doc.Analysis.Source)
	}
}

func TestDiagnoseInitial_ExistingGraphIsNoOp(t *testing.T) {
	store := newFakeGraphStore()
	provider := insight.NewMockProvider()
	svc := NewDiagnosisService(store, provider, nil, testLogger(t), engine.DefaultConfig())
	learnerID := uuid.New()

	seeded := &graph.Document{
		Abilities: map[string]graph.Ability{"reading": {Score: 72}},
		CEFRLevel: "C1",
	}
	if err := store.Create(context.Background(), learnerID, seeded); err != nil {
		t.Fatalf("seed: %v", err)
	}

	doc, err := svc.DiagnoseInitial(context.Background(), insight.Request{LearnerID: learnerID})
	if err != nil {
		t.Fatalf("diagnose failed: %v", err)
	}
	if doc.CEFRLevel != "C1" {
		t.Fatalf("existing graph must be returned untouched, got %q", doc.CEFRLevel)
	}
	if provider.CallCount() != 0 {
		t.Fatalf("provider must not be consulted for an existing graph")
	}
}

func TestDiagnoseInitial_CreateRaceReturnsWinner(t *testing.T) {
	store := newFakeGraphStore()
	provider := insight.NewMockProvider()
	svc := NewDiagnosisService(store, provider, nil, testLogger(t), engine.DefaultConfig())
	learnerID := uuid.New()

	// Another instance creates the graph between our existence check and
	// our create.
	winner := &graph.Document{CEFRLevel: "A2", Abilities: map[string]graph.Ability{}}
	if err := store.Create(context.Background(), learnerID, winner); err != nil {
		t.Fatalf("seed winner: %v", err)
	}
	store.notFoundOnce = true

	doc, err := svc.DiagnoseInitial(context.Background(), insight.Request{LearnerID: learnerID})
	if err != nil {
		t.Fatalf("race must resolve to the winner: %v", err)
	}
	if doc.CEFRLevel != "A2" {
		t.Fatalf("expected winner's document, got %q", doc.CEFRLevel)
	}
}

func TestDiagnoseBatch_OneFailureDoesNotAbort(t *testing.T) {
	store := newFakeGraphStore()
	provider := insight.NewMockProvider()
	svc := NewDiagnosisService(store, provider, nil, testLogger(t), engine.DefaultConfig())

	reqs := []insight.Request{
		{LearnerID: uuid.New()},
		{}, // missing learner_id
		{LearnerID: uuid.New()},
	}
	results := svc.DiagnoseBatch(context.Background(), reqs)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Fatalf("valid entries must succeed: %v / %v", results[0].Err, results[2].Err)
	}
	if !graph.IsCode(results[1].Err, graph.CodeValidation) {
		t.Fatalf("expected validation error for entry 1, got %v", results[1].Err)
	}
	if results[0].LearnerID != reqs[0].LearnerID || results[2].LearnerID != reqs[2].LearnerID {
		t.Fatalf("results must align with input order")
	}
}

func TestBootstrapFallback_NeutralDocument(t *testing.T) {
	store := newFakeGraphStore()
	svc := NewDiagnosisService(store, insight.NewMockProvider(), nil, testLogger(t), engine.DefaultConfig())
	learnerID := uuid.New()

	doc, err := svc.BootstrapFallback(context.Background(), learnerID)
	if err != nil {
		t.Fatalf("fallback failed: %v", err)
	}
	if doc.Abilities["writing"].Score != 50 || doc.Analysis.Source != graph.SourceFallback {
		t.Fatalf("expected neutral fallback document, got %+v", doc)
	}
	// Fallback never consults the provider.
	if p := svc.(*diagnosisService).provider.(*insight.MockProvider); p.CallCount() != 0 {
		t.Fatalf("provider must not be called, got %d calls", p.CallCount())
	}
}
