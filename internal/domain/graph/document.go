package graph

import (
	"time"
)

// Dimensions is the fixed set of skill axes tracked per learner.
var Dimensions = []string{"listening", "reading", "speaking", "writing", "grammar", "vocabulary"}

// IsDimension reports whether name is one of the tracked skill axes.
func IsDimension(name string) bool {
	for _, d := range Dimensions {
		if d == name {
			return true
		}
	}
	return false
}

// Analysis sources.
const (
	SourceRule     = "rule"
	SourceAI       = "ai"
	SourceFallback = "fallback"
)

// Weak-point priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Ability tracks one skill dimension as a bounded 0-100 score.
type Ability struct {
	Score           float64   `json:"score"`
	ConfidenceCount int       `json:"confidence_count"`
	LastUpdated     time.Time `json:"last_updated"`
}

// Node is one knowledge point with its mastery counters. Nodes are created
// lazily the first time a practice event references the knowledge point.
type Node struct {
	ID              string     `json:"id"`
	Label           string     `json:"label,omitempty"`
	Dimension       string     `json:"dimension,omitempty"`
	ExamWeight      float64    `json:"exam_weight"`
	Score           float64    `json:"score"`
	ConfidenceCount int        `json:"confidence_count"`
	LastPracticedAt *time.Time `json:"last_practiced_at,omitempty"`
}

// Edge is a read-only relation between knowledge points, used as ranking
// context only. The rule engine never mutates edges.
type Edge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Relation string `json:"relation"`
}

// Coverage holds practice exposure counters. RecentPractices keeps the
// submission times inside the trailing window so the 7-day counter can be
// recomputed deterministically on every mutation.
type Coverage struct {
	TotalPractices  int         `json:"total_practices"`
	DistinctPoints  int         `json:"distinct_knowledge_points"`
	PracticesLast7d int         `json:"practices_last_7_days"`
	RecentPractices []time.Time `json:"recent_practices,omitempty"`
}

// Baseline is a short rolling window of recent observations for one
// dimension, persisted inside the document so anomaly detection needs no
// extra read on the hot path.
type Baseline struct {
	Performances []float64 `json:"performances,omitempty"`
	SpeedsMs     []float64 `json:"speeds_ms,omitempty"`
}

// WeakPoint flags an under-mastered knowledge point.
type WeakPoint struct {
	KnowledgePoint string    `json:"knowledge_point"`
	Priority       string    `json:"priority"`
	CurrentLevel   float64   `json:"current_level"`
	Reason         string    `json:"reason"`
	DetectedAt     time.Time `json:"detected_at"`
}

// Recommendation is one prioritized study suggestion.
type Recommendation struct {
	SuggestionText string    `json:"suggestion_text"`
	RelatedAbility string    `json:"related_ability,omitempty"`
	Priority       string    `json:"priority"`
	Source         string    `json:"source"`
	DetectedAt     time.Time `json:"detected_at"`
}

// Analysis is the derived diagnosis attached to a graph.
type Analysis struct {
	WeakPoints      []WeakPoint      `json:"weak_points,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	Source          string           `json:"source"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// Document is the full typed knowledge graph for one learner. It is the
// single in-memory representation; persistence marshals it to and from the
// JSONB columns at exactly one boundary (the graph repo).
type Document struct {
	Nodes        []Node              `json:"nodes,omitempty"`
	Edges        []Edge              `json:"edges,omitempty"`
	Abilities    map[string]Ability  `json:"abilities"`
	Coverage     Coverage            `json:"exam_coverage"`
	Baselines    map[string]Baseline `json:"baselines,omitempty"`
	Analysis     Analysis            `json:"ai_analysis"`
	CEFRLevel    string              `json:"cefr_level"`
	Version      int                 `json:"version"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Node returns a pointer to the node with the given knowledge-point id,
// or nil when the graph does not track it yet.
func (d *Document) Node(id string) *Node {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i]
		}
	}
	return nil
}

// EnsureNode returns the node for id, appending a fresh one when missing.
func (d *Document) EnsureNode(id, label, dimension string) *Node {
	if n := d.Node(id); n != nil {
		if n.Dimension == "" && dimension != "" {
			n.Dimension = dimension
		}
		return n
	}
	d.Nodes = append(d.Nodes, Node{
		ID:         id,
		Label:      label,
		Dimension:  dimension,
		ExamWeight: 1.0,
		Score:      50,
	})
	return &d.Nodes[len(d.Nodes)-1]
}

// Clone returns a deep copy. The rule engine computes every delta on a copy
// so a conflicted conditional write never leaks partial mutations.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.Nodes = append([]Node(nil), d.Nodes...)
	out.Edges = append([]Edge(nil), d.Edges...)
	out.Abilities = make(map[string]Ability, len(d.Abilities))
	for k, v := range d.Abilities {
		out.Abilities[k] = v
	}
	out.Baselines = make(map[string]Baseline, len(d.Baselines))
	for k, v := range d.Baselines {
		b := Baseline{
			Performances: append([]float64(nil), v.Performances...),
			SpeedsMs:     append([]float64(nil), v.SpeedsMs...),
		}
		out.Baselines[k] = b
	}
	out.Coverage.RecentPractices = append([]time.Time(nil), d.Coverage.RecentPractices...)
	out.Analysis.WeakPoints = append([]WeakPoint(nil), d.Analysis.WeakPoints...)
	out.Analysis.Recommendations = append([]Recommendation(nil), d.Analysis.Recommendations...)
	return &out
}
