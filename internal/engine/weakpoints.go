package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/yungbote/skillgraph-backend/internal/domain/graph"
)

// DetectWeakPoints scans the knowledge points and returns ranked weak
// points. A node qualifies only when its score sits below the threshold AND
// it has enough samples behind it; a low score on one attempt is noise, not
// a weak point.
func DetectWeakPoints(doc *graph.Document, now time.Time, cfg Config) []graph.WeakPoint {
	cfg = cfg.normalized()

	type candidate struct {
		wp   graph.WeakPoint
		rank float64
		last time.Time
	}
	var candidates []candidate

	for i := range doc.Nodes {
		n := &doc.Nodes[i]
		if n.Score >= cfg.WeakThreshold || n.ConfidenceCount < cfg.MinSamples {
			continue
		}
		deficit := cfg.WeakThreshold - n.Score
		weight := n.ExamWeight
		if weight <= 0 {
			weight = 1
		}
		var last time.Time
		if n.LastPracticedAt != nil {
			last = *n.LastPracticedAt
		}
		candidates = append(candidates, candidate{
			wp: graph.WeakPoint{
				KnowledgePoint: n.ID,
				Priority:       priorityForDeficit(deficit, cfg),
				CurrentLevel:   n.Score,
				Reason: fmt.Sprintf("score %.0f below threshold %.0f after %d samples",
					n.Score, cfg.WeakThreshold, n.ConfidenceCount),
				DetectedAt: now,
			},
			rank: deficit * weight * recencyWeight(last, now, cfg.RecencyHalfLifeDays),
			last: last,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].rank != candidates[j].rank {
			return candidates[i].rank > candidates[j].rank
		}
		return candidates[i].last.After(candidates[j].last)
	})

	out := make([]graph.WeakPoint, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.wp)
	}
	return out
}

func priorityForDeficit(deficit float64, cfg Config) string {
	switch {
	case deficit >= cfg.HighPriorityDeficit:
		return graph.PriorityHigh
	case deficit >= cfg.MediumPriorityDeficit:
		return graph.PriorityMedium
	default:
		return graph.PriorityLow
	}
}

// recencyWeight decays exponentially with the age of the last practice, so
// stale weaknesses rank below the ones a learner is hitting right now.
func recencyWeight(last, now time.Time, halfLifeDays float64) float64 {
	if last.IsZero() || halfLifeDays <= 0 {
		return 1
	}
	days := now.Sub(last).Hours() / 24
	if days <= 0 {
		return 1
	}
	return math.Pow(0.5, days/halfLifeDays)
}
