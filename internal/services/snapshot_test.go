package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/skillgraph-backend/internal/domain/graph"
)

type fakeSnapshotCache struct {
	entries map[uuid.UUID]*KnowledgeGraphSnapshot
	sets    int
}

func newFakeSnapshotCache() *fakeSnapshotCache {
	return &fakeSnapshotCache{entries: map[uuid.UUID]*KnowledgeGraphSnapshot{}}
}

func (f *fakeSnapshotCache) Get(_ context.Context, learnerID uuid.UUID, out any) (bool, error) {
	snap, ok := f.entries[learnerID]
	if !ok {
		return false, nil
	}
	*out.(*KnowledgeGraphSnapshot) = *snap
	return true, nil
}

func (f *fakeSnapshotCache) Set(_ context.Context, learnerID uuid.UUID, v any) {
	f.sets++
	snap := v.(*KnowledgeGraphSnapshot)
	f.entries[learnerID] = snap
}

func TestGetSnapshot_CacheHitSkipsStore(t *testing.T) {
	store := newFakeGraphStore()
	cache := newFakeSnapshotCache()
	learnerID := uuid.New()
	cache.entries[learnerID] = &KnowledgeGraphSnapshot{LearnerID: learnerID, CEFRLevel: "B2", Version: 4}

	svc := NewSnapshotService(store, cache, nil, testLogger(t))
	snap, err := svc.GetSnapshot(context.Background(), learnerID)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if snap.CEFRLevel != "B2" || snap.Version != 4 {
		t.Fatalf("expected cached snapshot, got %+v", snap)
	}
	if store.getCalls != 0 {
		t.Fatalf("cache hit must not read the store")
	}
}

func TestGetSnapshot_MissAssemblesAndPopulates(t *testing.T) {
	store := newFakeGraphStore()
	cache := newFakeSnapshotCache()
	learnerID := uuid.New()
	err := store.Create(context.Background(), learnerID, &graph.Document{
		Abilities: map[string]graph.Ability{"reading": {Score: 70}},
		CEFRLevel: "B2",
		Analysis: graph.Analysis{
			WeakPoints: []graph.WeakPoint{{KnowledgePoint: "kp"}},
			Source:     graph.SourceRule,
		},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc := NewSnapshotService(store, cache, nil, testLogger(t))
	snap, err := svc.GetSnapshot(context.Background(), learnerID)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if snap.LearnerID != learnerID || snap.CEFRLevel != "B2" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.AnalysisSource != graph.SourceRule || len(snap.WeakPoints) != 1 {
		t.Fatalf("analysis not projected: %+v", snap)
	}
	if cache.sets != 1 {
		t.Fatalf("expected cache populated on miss, got %d sets", cache.sets)
	}
}

func TestGetSnapshot_NilCacheWorks(t *testing.T) {
	store := newFakeGraphStore()
	learnerID := uuid.New()
	err := store.Create(context.Background(), learnerID, &graph.Document{
		Abilities: map[string]graph.Ability{},
		CEFRLevel: "A2",
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc := NewSnapshotService(store, nil, nil, testLogger(t))
	snap, err := svc.GetSnapshot(context.Background(), learnerID)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if snap.CEFRLevel != "A2" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestGetSnapshot_MissingGraphPropagates(t *testing.T) {
	store := newFakeGraphStore()
	svc := NewSnapshotService(store, nil, nil, testLogger(t))

	_, err := svc.GetSnapshot(context.Background(), uuid.New())
	if !graph.IsCode(err, graph.CodeNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}
