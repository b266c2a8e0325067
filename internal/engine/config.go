package engine

// Config groups every tunable the rule engine uses. One value is built at
// startup and injected everywhere, so behavior stays deterministic and
// testable instead of depending on scattered literals.
type Config struct {
	// Learning-rate step: k_effective = KBase / (1 + confidence_count),
	// clamped to [KFloor, KCeil].
	KBase  float64 `yaml:"k_base"`
	KFloor float64 `yaml:"k_floor"`
	KCeil  float64 `yaml:"k_ceil"`

	// MaxConfidence caps confidence_count growth.
	MaxConfidence int `yaml:"max_confidence"`

	// Weak-point detection.
	WeakThreshold float64 `yaml:"weak_threshold"`
	MinSamples    int     `yaml:"min_samples"`

	// Deficit (WeakThreshold - score) cutoffs for priority bands.
	HighPriorityDeficit   float64 `yaml:"high_priority_deficit"`
	MediumPriorityDeficit float64 `yaml:"medium_priority_deficit"`

	// RecencyHalfLifeDays controls the exponential recency weight used when
	// ranking weak points.
	RecencyHalfLifeDays float64 `yaml:"recency_half_life_days"`

	// Anomaly detection.
	ZThreshold         float64 `yaml:"z_threshold"`
	SuspiciousSpeedMs  float64 `yaml:"suspicious_speed_ms"`
	BaselineWindow     int     `yaml:"baseline_window"`
	MinBaselineSamples int     `yaml:"min_baseline_samples"`

	// MaxRecommendations caps the ranked suggestion list.
	MaxRecommendations int `yaml:"max_recommendations"`

	// MaxUpdateAttempts bounds the conditional-write retry loop.
	MaxUpdateAttempts int `yaml:"max_update_attempts"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		KBase:                 0.3,
		KFloor:                0.05,
		KCeil:                 0.5,
		MaxConfidence:         50,
		WeakThreshold:         60,
		MinSamples:            2,
		HighPriorityDeficit:   15,
		MediumPriorityDeficit: 7,
		RecencyHalfLifeDays:   14,
		ZThreshold:            2.0,
		SuspiciousSpeedMs:     1500,
		BaselineWindow:        10,
		MinBaselineSamples:    3,
		MaxRecommendations:    10,
		MaxUpdateAttempts:     5,
	}
}

// normalized fills zero values with defaults so a partially specified
// config file cannot disable clamping or retries by accident.
func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.KBase <= 0 {
		c.KBase = def.KBase
	}
	if c.KFloor <= 0 {
		c.KFloor = def.KFloor
	}
	if c.KCeil <= 0 {
		c.KCeil = def.KCeil
	}
	if c.MaxConfidence <= 0 {
		c.MaxConfidence = def.MaxConfidence
	}
	if c.WeakThreshold <= 0 {
		c.WeakThreshold = def.WeakThreshold
	}
	if c.MinSamples <= 0 {
		c.MinSamples = def.MinSamples
	}
	if c.HighPriorityDeficit <= 0 {
		c.HighPriorityDeficit = def.HighPriorityDeficit
	}
	if c.MediumPriorityDeficit <= 0 {
		c.MediumPriorityDeficit = def.MediumPriorityDeficit
	}
	if c.RecencyHalfLifeDays <= 0 {
		c.RecencyHalfLifeDays = def.RecencyHalfLifeDays
	}
	if c.ZThreshold <= 0 {
		c.ZThreshold = def.ZThreshold
	}
	if c.SuspiciousSpeedMs <= 0 {
		c.SuspiciousSpeedMs = def.SuspiciousSpeedMs
	}
	if c.BaselineWindow <= 0 {
		c.BaselineWindow = def.BaselineWindow
	}
	if c.MinBaselineSamples <= 0 {
		c.MinBaselineSamples = def.MinBaselineSamples
	}
	if c.MaxRecommendations <= 0 {
		c.MaxRecommendations = def.MaxRecommendations
	}
	if c.MaxUpdateAttempts <= 0 {
		c.MaxUpdateAttempts = def.MaxUpdateAttempts
	}
	return c
}
