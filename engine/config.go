package engine

import (
	"fmt"

	"github.com/lccanon/simdeg/estimator"
	"github.com/lccanon/simdeg/types"
)

// Config holds the decision thresholds of one engine.
type Config struct {
	// MergeThreshold is the estimate a cross cell must strictly exceed
	// before its two groups merge.
	MergeThreshold float64 `yaml:"mergeThreshold"`

	// ErrorTolerance is the error a cross cell must stay strictly below
	// before its two groups merge.
	ErrorTolerance float64 `yaml:"errorTolerance"`

	// Level is the confidence level of every cell estimator.
	Level float64 `yaml:"level"`

	// RunGuard enables the successive-identical-sample reset on cells.
	RunGuard bool `yaml:"runGuard"`

	// Readaptation enables recalibration after the largest group changes.
	// Only the collusion engine reads it.
	Readaptation bool `yaml:"readaptation"`
}

// DefaultAgreementConfig returns the tuned agreement thresholds.
func DefaultAgreementConfig() Config {
	return Config{
		MergeThreshold: 0.99,
		ErrorTolerance: 1.0 / 3.0,
		Level:          estimator.DefaultLevel,
	}
}

// DefaultCollusionConfig returns the tuned collusion thresholds.
func DefaultCollusionConfig() Config {
	return Config{
		MergeThreshold: 0.99,
		ErrorTolerance: 1.0 / 3.0,
		Level:          estimator.DefaultLevel,
		RunGuard:       true,
		Readaptation:   true,
	}
}

// Validate checks the thresholds.
//
// Returns:
//   - error: ErrInvalidConfig describing the first invalid field
func (c Config) Validate() error {
	if c.MergeThreshold <= 0 || c.MergeThreshold >= 1 {
		return fmt.Errorf("merge threshold %v must be in (0,1): %w", c.MergeThreshold, types.ErrInvalidConfig)
	}
	if c.ErrorTolerance <= 0 || c.ErrorTolerance > 1 {
		return fmt.Errorf("error tolerance %v must be in (0,1]: %w", c.ErrorTolerance, types.ErrInvalidConfig)
	}
	if c.Level <= 0 || c.Level >= 1 {
		return fmt.Errorf("confidence level %v must be in (0,1): %w", c.Level, types.ErrInvalidConfig)
	}

	return nil
}

// estimatorOptions returns the estimator options matching the config.
func (c Config) estimatorOptions() []estimator.Option {
	opts := []estimator.Option{estimator.WithLevel(c.Level)}
	if c.RunGuard {
		opts = append(opts, estimator.WithRunGuard())
	}

	return opts
}
