package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/skillgraph-backend/internal/domain/graph"
	"github.com/yungbote/skillgraph-backend/internal/platform/logger"
)

// fakeGraphStore backs the service tests without Postgres.
type fakeGraphStore struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*graph.Document
	seen map[string]bool

	getCalls          int
	createCalls       int
	updateCalls       int
	notFoundOnce      bool
	conflictsToInject int
}

func newFakeGraphStore() *fakeGraphStore {
	return &fakeGraphStore{
		docs: map[uuid.UUID]*graph.Document{},
		seen: map[string]bool{},
	}
}

func (f *fakeGraphStore) Get(_ context.Context, learnerID uuid.UUID) (*graph.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.notFoundOnce {
		f.notFoundOnce = false
		return nil, graph.NewError(graph.CodeNotFound, "fake.Get", "no graph", nil)
	}
	doc, ok := f.docs[learnerID]
	if !ok {
		return nil, graph.NewError(graph.CodeNotFound, "fake.Get", "no graph", nil)
	}
	return doc.Clone(), nil
}

func (f *fakeGraphStore) Create(_ context.Context, learnerID uuid.UUID, doc *graph.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if _, ok := f.docs[learnerID]; ok {
		return graph.NewError(graph.CodeConflict, "fake.Create", "exists", nil)
	}
	f.docs[learnerID] = doc.Clone()
	return nil
}

func (f *fakeGraphStore) UpdateByVersion(_ context.Context, learnerID uuid.UUID, doc *graph.Document, expectedVersion int, practiceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	cur, ok := f.docs[learnerID]
	if !ok {
		return graph.NewError(graph.CodeNotFound, "fake.Update", "no graph", nil)
	}
	if f.conflictsToInject > 0 {
		f.conflictsToInject--
		cur.Version++
		return graph.NewError(graph.CodeConflict, "fake.Update", "version changed", nil)
	}
	if cur.Version != expectedVersion {
		return graph.NewError(graph.CodeConflict, "fake.Update", "version changed", nil)
	}
	next := doc.Clone()
	next.Version = expectedVersion + 1
	f.docs[learnerID] = next
	if practiceID != "" {
		f.seen[practiceID] = true
	}
	doc.Version = expectedVersion + 1
	return nil
}

func (f *fakeGraphStore) SeenPractice(_ context.Context, practiceID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[practiceID], nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}
