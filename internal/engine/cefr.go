package engine

import (
	"github.com/yungbote/skillgraph-backend/internal/domain/graph"
)

// CEFR bands derived from the mean ability score. Recomputed on every
// mutation so the stored level can never drift from the abilities map.
var cefrBands = []struct {
	floor float64
	level string
}{
	{90, "C2"},
	{75, "C1"},
	{60, "B2"},
	{45, "B1"},
	{30, "A2"},
	{0, "A1"},
}

// DeriveCEFR maps the mean score of the tracked dimensions to a CEFR band.
func DeriveCEFR(abilities map[string]graph.Ability) string {
	if len(abilities) == 0 {
		return "A1"
	}
	var sum float64
	var n int
	for _, d := range graph.Dimensions {
		a, ok := abilities[d]
		if !ok {
			continue
		}
		sum += a.Score
		n++
	}
	if n == 0 {
		return "A1"
	}
	avg := sum / float64(n)
	for _, band := range cefrBands {
		if avg >= band.floor {
			return band.level
		}
	}
	return "A1"
}
