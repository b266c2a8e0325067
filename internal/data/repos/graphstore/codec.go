package graphstore

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/skillgraph-backend/internal/domain/graph"
	"github.com/yungbote/skillgraph-backend/internal/types"
)

// The JSONB columns are marshaled here and nowhere else. Everything above
// this package works with graph.Document.

func toModel(learnerID uuid.UUID, doc *graph.Document) (*types.KnowledgeGraph, error) {
	nodes, err := marshalJSONB(doc.Nodes)
	if err != nil {
		return nil, fmt.Errorf("marshal nodes: %w", err)
	}
	edges, err := marshalJSONB(doc.Edges)
	if err != nil {
		return nil, fmt.Errorf("marshal edges: %w", err)
	}
	abilities, err := marshalJSONB(doc.Abilities)
	if err != nil {
		return nil, fmt.Errorf("marshal abilities: %w", err)
	}
	coverage, err := marshalJSONB(doc.Coverage)
	if err != nil {
		return nil, fmt.Errorf("marshal exam_coverage: %w", err)
	}
	baselines, err := marshalJSONB(doc.Baselines)
	if err != nil {
		return nil, fmt.Errorf("marshal baselines: %w", err)
	}
	analysis, err := marshalJSONB(doc.Analysis)
	if err != nil {
		return nil, fmt.Errorf("marshal ai_analysis: %w", err)
	}
	return &types.KnowledgeGraph{
		LearnerID: learnerID,
		Nodes:     nodes,
		Edges:     edges,
		Abilities: abilities,
		Coverage:  coverage,
		Baselines: baselines,
		Analysis:  analysis,
		CEFRLevel: doc.CEFRLevel,
		Version:   doc.Version,
	}, nil
}

func toDocument(row *types.KnowledgeGraph) (*graph.Document, error) {
	doc := &graph.Document{
		Abilities: map[string]graph.Ability{},
		Baselines: map[string]graph.Baseline{},
		CEFRLevel: row.CEFRLevel,
		Version:   row.Version,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if err := unmarshalJSONB(row.Nodes, &doc.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := unmarshalJSONB(row.Edges, &doc.Edges); err != nil {
		return nil, fmt.Errorf("unmarshal edges: %w", err)
	}
	if err := unmarshalJSONB(row.Abilities, &doc.Abilities); err != nil {
		return nil, fmt.Errorf("unmarshal abilities: %w", err)
	}
	if err := unmarshalJSONB(row.Coverage, &doc.Coverage); err != nil {
		return nil, fmt.Errorf("unmarshal exam_coverage: %w", err)
	}
	if err := unmarshalJSONB(row.Baselines, &doc.Baselines); err != nil {
		return nil, fmt.Errorf("unmarshal baselines: %w", err)
	}
	if err := unmarshalJSONB(row.Analysis, &doc.Analysis); err != nil {
		return nil, fmt.Errorf("unmarshal ai_analysis: %w", err)
	}
	if doc.Abilities == nil {
		doc.Abilities = map[string]graph.Ability{}
	}
	if doc.Baselines == nil {
		doc.Baselines = map[string]graph.Baseline{}
	}
	return doc, nil
}

func marshalJSONB(v any) (datatypes.JSON, error) {
	if v == nil {
		return datatypes.JSON([]byte("null")), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func unmarshalJSONB(raw datatypes.JSON, out any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
