package engine

import (
	"fmt"
	"sort"

	"github.com/yungbote/skillgraph-backend/internal/domain/graph"
)

// Ranker merges rule-derived suggestions with any AI-derived ones into a
// prioritized, capped list. Rule suggestions are regenerated on every
// mutation (they cost nothing); AI suggestions only change on an explicit
// refresh and are carried through otherwise.
type Ranker struct {
	cfg Config
}

func NewRanker(cfg Config) *Ranker {
	return &Ranker{cfg: cfg.normalized()}
}

// RuleRecommendations derives one templated suggestion per weak point.
func (r *Ranker) RuleRecommendations(doc *graph.Document, weakPoints []graph.WeakPoint) []graph.Recommendation {
	out := make([]graph.Recommendation, 0, len(weakPoints))
	for _, wp := range weakPoints {
		rec := graph.Recommendation{
			SuggestionText: fmt.Sprintf("Practice %s: current level %.0f is below target.", labelFor(doc, wp.KnowledgePoint), wp.CurrentLevel),
			Priority:       wp.Priority,
			Source:         graph.SourceRule,
			DetectedAt:     wp.DetectedAt,
		}
		if n := doc.Node(wp.KnowledgePoint); n != nil {
			rec.RelatedAbility = n.Dimension
		}
		out = append(out, rec)
	}
	return out
}

// Merge combines regenerated rule suggestions with the surviving AI ones,
// orders by priority then recency, and caps the list length.
func (r *Ranker) Merge(rule, ai []graph.Recommendation) []graph.Recommendation {
	merged := make([]graph.Recommendation, 0, len(rule)+len(ai))
	merged = append(merged, rule...)
	merged = append(merged, ai...)

	sort.SliceStable(merged, func(i, j int) bool {
		pi, pj := priorityRank(merged[i].Priority), priorityRank(merged[j].Priority)
		if pi != pj {
			return pi > pj
		}
		return merged[i].DetectedAt.After(merged[j].DetectedAt)
	})

	if len(merged) > r.cfg.MaxRecommendations {
		merged = merged[:r.cfg.MaxRecommendations]
	}
	return merged
}

// AISuggestions extracts the AI-sourced entries from an existing analysis so
// they survive a rule-only recompute.
func AISuggestions(analysis graph.Analysis) []graph.Recommendation {
	var out []graph.Recommendation
	for _, rec := range analysis.Recommendations {
		if rec.Source == graph.SourceAI {
			out = append(out, rec)
		}
	}
	return out
}

func priorityRank(p string) int {
	switch p {
	case graph.PriorityHigh:
		return 3
	case graph.PriorityMedium:
		return 2
	case graph.PriorityLow:
		return 1
	default:
		return 0
	}
}

func labelFor(doc *graph.Document, knowledgePoint string) string {
	if n := doc.Node(knowledgePoint); n != nil && n.Label != "" {
		return n.Label
	}
	return knowledgePoint
}
