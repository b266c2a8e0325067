package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/yungbote/skillgraph-backend/internal/domain/graph"
)

func TestDetectWeakPoints_RequiresMinimumSamples(t *testing.T) {
	now := time.Now()
	doc := &graph.Document{
		Nodes: []graph.Node{
			{ID: "tenses", Score: 30, ConfidenceCount: 1},
			{ID: "articles", Score: 30, ConfidenceCount: 2},
		},
	}

	wps := DetectWeakPoints(doc, now, DefaultConfig())
	if len(wps) != 1 {
		t.Fatalf("expected 1 weak point, got %d", len(wps))
	}
	if wps[0].KnowledgePoint != "articles" {
		t.Fatalf("single-sample node must not qualify, got %q", wps[0].KnowledgePoint)
	}
}

func TestDetectWeakPoints_ThresholdBoundary(t *testing.T) {
	now := time.Now()
	doc := &graph.Document{
		Nodes: []graph.Node{
			{ID: "at-threshold", Score: 60, ConfidenceCount: 5},
			{ID: "below", Score: 59.9, ConfidenceCount: 5},
		},
	}

	wps := DetectWeakPoints(doc, now, DefaultConfig())
	if len(wps) != 1 || wps[0].KnowledgePoint != "below" {
		t.Fatalf("only scores strictly below threshold qualify, got %v", wps)
	}
}

func TestDetectWeakPoints_PriorityBands(t *testing.T) {
	now := time.Now()
	doc := &graph.Document{
		Nodes: []graph.Node{
			{ID: "severe", Score: 40, ConfidenceCount: 3},   // deficit 20 -> high
			{ID: "moderate", Score: 50, ConfidenceCount: 3}, // deficit 10 -> medium
			{ID: "mild", Score: 57, ConfidenceCount: 3},     // deficit 3 -> low
		},
	}

	wps := DetectWeakPoints(doc, now, DefaultConfig())
	got := map[string]string{}
	for _, wp := range wps {
		got[wp.KnowledgePoint] = wp.Priority
	}
	if got["severe"] != graph.PriorityHigh {
		t.Fatalf("expected high priority, got %q", got["severe"])
	}
	if got["moderate"] != graph.PriorityMedium {
		t.Fatalf("expected medium priority, got %q", got["moderate"])
	}
	if got["mild"] != graph.PriorityLow {
		t.Fatalf("expected low priority, got %q", got["mild"])
	}
}

func TestDetectWeakPoints_RankedByWeightedDeficit(t *testing.T) {
	now := time.Now()
	doc := &graph.Document{
		Nodes: []graph.Node{
			{ID: "light", Score: 30, ConfidenceCount: 3, ExamWeight: 0.5},
			{ID: "heavy", Score: 40, ConfidenceCount: 3, ExamWeight: 3},
		},
	}

	// light: 30 deficit * 0.5 = 15; heavy: 20 deficit * 3 = 60
	wps := DetectWeakPoints(doc, now, DefaultConfig())
	if len(wps) != 2 || wps[0].KnowledgePoint != "heavy" {
		t.Fatalf("exam weight must drive ranking, got %v", wps)
	}
}

func TestDetectWeakPoints_RecencyDecaysRank(t *testing.T) {
	now := time.Now()
	old := now.AddDate(0, 0, -28) // two half-lives: weight 0.25
	doc := &graph.Document{
		Nodes: []graph.Node{
			{ID: "stale", Score: 30, ConfidenceCount: 3, LastPracticedAt: &old},
			{ID: "fresh", Score: 40, ConfidenceCount: 3, LastPracticedAt: &now},
		},
	}

	// stale: 30 * 0.25 = 7.5; fresh: 20 * 1 = 20
	wps := DetectWeakPoints(doc, now, DefaultConfig())
	if wps[0].KnowledgePoint != "fresh" {
		t.Fatalf("recently practiced weakness must outrank stale one, got %v", wps)
	}
}

func TestDetectWeakPoints_ReasonNamesEvidence(t *testing.T) {
	now := time.Now()
	doc := &graph.Document{
		Nodes: []graph.Node{{ID: "idioms", Score: 35, ConfidenceCount: 4}},
	}

	wps := DetectWeakPoints(doc, now, DefaultConfig())
	if len(wps) != 1 {
		t.Fatalf("expected 1 weak point, got %d", len(wps))
	}
	if !strings.Contains(wps[0].Reason, "35") || !strings.Contains(wps[0].Reason, "4 samples") {
		t.Fatalf("reason should cite score and sample count, got %q", wps[0].Reason)
	}
}
