package engine

import (
	"math"

	"github.com/yungbote/skillgraph-backend/internal/domain/graph"
)

// AnomalyFlag labels one advisory anomaly on a practice sample. Flags never
// block or revert an ability update; they only dampen confidence growth.
type AnomalyFlag string

const (
	FlagSuddenDrop      AnomalyFlag = "sudden_drop"
	FlagSuspiciousSpeed AnomalyFlag = "suspicious_speed"
)

// Sample is the per-dimension aggregate of one practice event.
type Sample struct {
	Dimension      string
	Performance    float64 // percentage correct, 0-100
	MeanResponseMs float64
	Items          int
}

// AnomalyClassifier is one rule over a sample and its rolling baseline.
// Returns the flag and true when the rule applies.
type AnomalyClassifier interface {
	Name() string
	Classify(s Sample, base graph.Baseline, cfg Config) (AnomalyFlag, bool)
}

// DefaultClassifiers returns the classifier chain in evaluation order.
// Suspicious speed is checked first: an implausibly fast event says more
// about guessing than its score says about ability.
func DefaultClassifiers() []AnomalyClassifier {
	return []AnomalyClassifier{
		&SuspiciousSpeedClassifier{},
		&SuddenDropClassifier{},
	}
}

// RunClassifiers evaluates the whole chain and collects every flag that
// applies. Flags are advisory metadata, so none shadows another.
func RunClassifiers(classifiers []AnomalyClassifier, s Sample, base graph.Baseline, cfg Config) []AnomalyFlag {
	var flags []AnomalyFlag
	for _, c := range classifiers {
		if flag, ok := c.Classify(s, base, cfg); ok {
			flags = append(flags, flag)
		}
	}
	return flags
}

// SuspiciousSpeedClassifier flags events answered implausibly fast,
// suggesting guessing rather than performance.
type SuspiciousSpeedClassifier struct{}

func (c *SuspiciousSpeedClassifier) Name() string { return "suspicious-speed" }

func (c *SuspiciousSpeedClassifier) Classify(s Sample, _ graph.Baseline, cfg Config) (AnomalyFlag, bool) {
	if s.MeanResponseMs > 0 && s.MeanResponseMs < cfg.SuspiciousSpeedMs {
		return FlagSuspiciousSpeed, true
	}
	return "", false
}

// SuddenDropClassifier flags a performance sample whose z-score against the
// rolling baseline falls below the configured threshold.
type SuddenDropClassifier struct{}

func (c *SuddenDropClassifier) Name() string { return "sudden-drop" }

func (c *SuddenDropClassifier) Classify(s Sample, base graph.Baseline, cfg Config) (AnomalyFlag, bool) {
	if len(base.Performances) < cfg.MinBaselineSamples {
		return "", false
	}
	m := mean(base.Performances)
	sd := stddev(base.Performances, m)
	if sd == 0 {
		return "", false
	}
	z := (s.Performance - m) / sd
	if z <= -cfg.ZThreshold {
		return FlagSuddenDrop, true
	}
	return "", false
}

// AppendBaseline pushes one observation into the rolling window, evicting
// the oldest entries beyond the configured size.
func AppendBaseline(base graph.Baseline, performance, speedMs float64, window int) graph.Baseline {
	base.Performances = appendBounded(base.Performances, performance, window)
	if speedMs > 0 {
		base.SpeedsMs = appendBounded(base.SpeedsMs, speedMs, window)
	}
	return base
}

func appendBounded(vals []float64, v float64, window int) []float64 {
	vals = append(append([]float64(nil), vals...), v)
	if window > 0 && len(vals) > window {
		vals = vals[len(vals)-window:]
	}
	return vals
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stddev(vals []float64, m float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(vals)))
}
