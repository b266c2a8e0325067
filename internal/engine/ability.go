package engine

import (
	"time"

	"github.com/yungbote/skillgraph-backend/internal/domain/graph"
)

// UpdateAbility applies one observed performance sample (percentage correct,
// 0-100) to an ability. Pure function: callers own the write-back.
//
// The learning rate shrinks as confidence grows but is floored so the model
// stays adaptive after many samples, and ceilinged so a single event cannot
// overreact. A dampened sample (anomalous observation) still moves the score
// but does not advance confidence_count.
func UpdateAbility(cur graph.Ability, observed float64, dampened bool, now time.Time, cfg Config) graph.Ability {
	cfg = cfg.normalized()

	k := cfg.KBase / (1 + float64(cur.ConfidenceCount))
	k = clamp(k, cfg.KFloor, cfg.KCeil)

	next := graph.Ability{
		Score:           clamp(cur.Score+k*(observed-cur.Score), 0, 100),
		ConfidenceCount: cur.ConfidenceCount,
		LastUpdated:     now,
	}
	if !dampened {
		next.ConfidenceCount++
	}
	if next.ConfidenceCount > cfg.MaxConfidence {
		next.ConfidenceCount = cfg.MaxConfidence
	}
	return next
}

// UpdateNode applies the same bounded update to a knowledge-point node.
func UpdateNode(n *graph.Node, observed float64, dampened bool, now time.Time, cfg Config) {
	if n == nil {
		return
	}
	updated := UpdateAbility(graph.Ability{
		Score:           n.Score,
		ConfidenceCount: n.ConfidenceCount,
	}, observed, dampened, now, cfg)
	n.Score = updated.Score
	n.ConfidenceCount = updated.ConfidenceCount
	t := now
	n.LastPracticedAt = &t
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
