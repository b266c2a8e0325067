package insight

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/skillgraph-backend/internal/domain/graph"
	"github.com/yungbote/skillgraph-backend/internal/platform/logger"
	"github.com/yungbote/skillgraph-backend/internal/platform/openai"
)

const estimateSystemPrompt = `You are a language-proficiency assessor. ` +
	`Given a learner's self-reported levels and placement notes, estimate their ` +
	`current ability per skill dimension on a 0-100 scale, assign an overall ` +
	`CEFR band, and suggest up to three short study focuses. Be conservative: ` +
	`when evidence is thin, stay close to 50.`

type openAIProvider struct {
	client openai.Client
	log    *logger.Logger
}

// NewOpenAIProvider builds a Provider backed by the OpenAI structured-output
// client.
func NewOpenAIProvider(client openai.Client, log *logger.Logger) Provider {
	return &openAIProvider{
		client: client,
		log:    log.With("service", "InsightProvider"),
	}
}

func (p *openAIProvider) Name() string { return "openai" }

func (p *openAIProvider) Estimate(ctx context.Context, req Request) (*Estimate, error) {
	obj, err := p.client.GenerateJSON(ctx, estimateSystemPrompt, buildUserPrompt(req), "ability_estimate", estimateSchema())
	if err != nil {
		return nil, &ErrProviderUnavailable{Err: err}
	}

	est, err := parseEstimate(obj)
	if err != nil {
		return nil, fmt.Errorf("insight: malformed estimate: %w", err)
	}
	return est, nil
}

func buildUserPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Self-reported levels (0-100):\n")
	if len(req.SelfRatings) == 0 {
		b.WriteString("  none provided\n")
	}
	for _, dim := range graph.Dimensions {
		if v, ok := req.SelfRatings[dim]; ok {
			fmt.Fprintf(&b, "  %s: %.0f\n", dim, v)
		}
	}
	if req.PlacementSummary != "" {
		b.WriteString("Placement notes:\n")
		b.WriteString(req.PlacementSummary)
		b.WriteString("\n")
	}
	return b.String()
}

func estimateSchema() map[string]any {
	abilityProps := map[string]any{}
	for _, dim := range graph.Dimensions {
		abilityProps[dim] = map[string]any{"type": "number", "minimum": 0, "maximum": 100}
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"abilities": map[string]any{
				"type":                 "object",
				"properties":           abilityProps,
				"required":             graph.Dimensions,
				"additionalProperties": false,
			},
			"cefr_level": map[string]any{
				"type": "string",
				"enum": []string{"A1", "A2", "B1", "B2", "C1", "C2"},
			},
			"narratives": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string"},
				"maxItems": 3,
			},
		},
		"required":             []string{"abilities", "cefr_level", "narratives"},
		"additionalProperties": false,
	}
}

func parseEstimate(obj map[string]any) (*Estimate, error) {
	rawAbilities, ok := obj["abilities"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("missing abilities object")
	}

	est := &Estimate{Abilities: map[string]float64{}}
	for _, dim := range graph.Dimensions {
		v, ok := rawAbilities[dim].(float64)
		if !ok {
			return nil, fmt.Errorf("missing ability for %s", dim)
		}
		if v < 0 {
			v = 0
		}
		if v > 100 {
			v = 100
		}
		est.Abilities[dim] = v
	}

	if lvl, ok := obj["cefr_level"].(string); ok {
		switch lvl {
		case "A1", "A2", "B1", "B2", "C1", "C2":
			est.CEFRLevel = lvl
		}
	}

	if raw, ok := obj["narratives"].([]any); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok && s != "" {
				est.Narratives = append(est.Narratives, s)
			}
		}
	}
	return est, nil
}
