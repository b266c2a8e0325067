package insight

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Request carries the intake material a cold-start estimate is built from.
type Request struct {
	LearnerID uuid.UUID

	// SelfRatings maps dimension -> self-reported level on a 0-100 scale.
	// Missing dimensions are allowed.
	SelfRatings map[string]float64

	// PlacementSummary is free text describing the learner's placement
	// answers, study history, or goals. May be empty.
	PlacementSummary string
}

// Estimate is a provider's judgment of a learner's starting point.
type Estimate struct {
	// Abilities maps dimension -> estimated score in [0,100].
	Abilities map[string]float64

	// CEFRLevel is the provider's overall band (A1..C2). May be empty,
	// in which case the caller derives it from the ability scores.
	CEFRLevel string

	// Narratives are short study suggestions in priority order.
	Narratives []string
}

// Provider estimates initial abilities from intake material.
type Provider interface {
	Estimate(ctx context.Context, req Request) (*Estimate, error)
	Name() string
}

// ErrProviderUnavailable wraps transport or quota failures so callers can
// distinguish "provider down" from "provider answered garbage".
type ErrProviderUnavailable struct {
	Err error
}

func (e *ErrProviderUnavailable) Error() string {
	if e.Err == nil {
		return "insight provider unavailable"
	}
	return fmt.Sprintf("insight provider unavailable: %v", e.Err)
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }

type disabledProvider struct{}

// Disabled returns a Provider that always reports unavailable. Used when no
// provider is configured so diagnosis falls through to neutral defaults.
func Disabled() Provider { return disabledProvider{} }

func (disabledProvider) Name() string { return "disabled" }

func (disabledProvider) Estimate(context.Context, Request) (*Estimate, error) {
	return nil, &ErrProviderUnavailable{}
}
