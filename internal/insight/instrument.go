package insight

import (
	"context"
	"time"
)

// CallObserver records provider call outcomes. Satisfied by the
// observability metrics registry.
type CallObserver interface {
	ObserveInsightCall(provider, status string, dur time.Duration)
}

type instrumented struct {
	inner Provider
	obs   CallObserver
}

// Instrument wraps a provider with call metrics.
func Instrument(p Provider, obs CallObserver) Provider {
	if obs == nil {
		return p
	}
	return &instrumented{inner: p, obs: obs}
}

func (i *instrumented) Name() string { return i.inner.Name() }

func (i *instrumented) Estimate(ctx context.Context, req Request) (*Estimate, error) {
	start := time.Now()
	est, err := i.inner.Estimate(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	i.obs.ObserveInsightCall(i.inner.Name(), status, time.Since(start))
	return est, err
}
