package models

import "time"

// EstimatorConfig carries the ability estimator's numerical tunables.
// Explicit and passed by value — nothing in internal/estimator reaches
// for a global, matching the teacher's "configuration as an explicit
// record" convention (internal/config.Config).
type EstimatorConfig struct {
	ThetaMin        float64
	ThetaMax        float64
	Tolerance       float64
	MaxIterations   int
	StepHaltTol     float64 // largest allowed log-likelihood decrease per step
	EAPGridPoints   int
}

// DefaultEstimatorConfig returns the values spec.md §4.2 hard-codes.
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		ThetaMin:      -4,
		ThetaMax:      4,
		Tolerance:     1e-3,
		MaxIterations: 100,
		StepHaltTol:   -1e-10,
		EAPGridPoints: 41,
	}
}

// ConvergenceConfig carries the four stop-criteria thresholds a
// convergence Controller checks, in the order spec.md §4.4 specifies.
type ConvergenceConfig struct {
	SEThreshold  float64
	MaxTests     int
	Timeout      time.Duration
	StableWindow int
	StableDelta  float64
}

// DefaultConvergenceConfig returns spec.md §4.4's defaults.
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		SEThreshold:  0.3,
		MaxTests:     100,
		Timeout:      30 * time.Minute,
		StableWindow: 5,
		StableDelta:  0.1,
	}
}

// NoiseConfig carries the noise isolator's replication/warm-up tunables.
type NoiseConfig struct {
	WarmupCount     int
	Replications    int
	CVThreshold     float64
}

// DefaultNoiseConfig returns spec.md §4.5's defaults.
func DefaultNoiseConfig() NoiseConfig {
	return NoiseConfig{
		WarmupCount:  3,
		Replications: 1,
		CVThreshold:  0.15,
	}
}

// EngineConfig bundles every tunable the executor threads through to its
// collaborators, so a caller configures the whole run from one record.
type EngineConfig struct {
	Estimator   EstimatorConfig
	Convergence ConvergenceConfig
	Noise       NoiseConfig
}

// DefaultEngineConfig composes the three defaults above.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Estimator:   DefaultEstimatorConfig(),
		Convergence: DefaultConvergenceConfig(),
		Noise:       DefaultNoiseConfig(),
	}
}
