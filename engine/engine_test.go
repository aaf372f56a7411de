package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lccanon/simdeg/internal/logger"
	"github.com/lccanon/simdeg/internal/metrics"
	"github.com/lccanon/simdeg/types"
)

// recordingMetrics keeps the engine events tests assert on.
type recordingMetrics struct {
	*metrics.NopMetrics

	merges        int
	splits        map[string]int
	observations  map[int]int
	readaptations []int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		NopMetrics:   metrics.NewNop(),
		splits:       make(map[string]int),
		observations: make(map[int]int),
	}
}

func (r *recordingMetrics) RecordMerge(_ string, _ int)        { r.merges++ }
func (r *recordingMetrics) RecordSplit(_ string, reason string) { r.splits[reason]++ }
func (r *recordingMetrics) RecordObservation(_ string, outcome int) {
	r.observations[outcome]++
}
func (r *recordingMetrics) RecordReadaptation(cells int) {
	r.readaptations = append(r.readaptations, cells)
}

var _ types.MetricsCollector = (*recordingMetrics)(nil)

func testOptions(t *testing.T, m types.MetricsCollector) []Option {
	t.Helper()

	opts := []Option{WithLogger(logger.NewTest(t)), WithDebug(true)}
	if m != nil {
		opts = append(opts, WithMetrics(m))
	}

	return opts
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultAgreementConfig().Validate())
	require.NoError(t, DefaultCollusionConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold too high", func(c *Config) { c.MergeThreshold = 1 }},
		{"threshold zero", func(c *Config) { c.MergeThreshold = 0 }},
		{"tolerance zero", func(c *Config) { c.ErrorTolerance = 0 }},
		{"tolerance above one", func(c *Config) { c.ErrorTolerance = 1.5 }},
		{"level one", func(c *Config) { c.Level = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultAgreementConfig()
			tt.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), types.ErrInvalidConfig)

			_, err := NewAgreement[string](cfg)
			require.ErrorIs(t, err, types.ErrInvalidConfig)
			_, err = NewCollusion[string](cfg)
			require.ErrorIs(t, err, types.ErrInvalidConfig)
		})
	}
}

func TestAgreementPolicy_Merge(t *testing.T) {
	policy, err := NewAgreementPolicy(DefaultAgreementConfig())
	require.NoError(t, err)

	t.Run("keeps the precise input when estimates disagree", func(t *testing.T) {
		precise := policy.Fresh()
		for range 300 {
			require.NoError(t, precise.SetSample(0))
		}
		noisy := policy.Fresh()
		for range 3 {
			require.NoError(t, noisy.SetSample(1))
		}
		require.False(t, precise.Overlaps(noisy))

		m := policy.Merge(noisy, precise)
		require.NotSame(t, precise, m)
		require.Equal(t, precise.Estimate(), m.Estimate())
		require.Equal(t, precise.Error(), m.Error())
	})

	t.Run("combines overlapping inputs", func(t *testing.T) {
		a, b := policy.Fresh(), policy.Fresh()
		for range 5 {
			require.NoError(t, a.SetSample(1))
			require.NoError(t, b.SetSample(1))
		}
		m := policy.Merge(a, b)
		require.Equal(t, 10, m.Samples())
		require.Less(t, m.Error(), a.Error())
	})

	t.Run("self cells are certain", func(t *testing.T) {
		require.Greater(t, policy.Self().Estimate(), 0.9999)
	})
}

func TestCollusionPolicy(t *testing.T) {
	policy, err := NewCollusionPolicy(DefaultCollusionConfig())
	require.NoError(t, err)

	require.InDelta(t, 0.5, policy.Self().Estimate(), 1e-12)
	require.True(t, policy.Fresh().Guarded())
	require.NotSame(t, policy.Fresh(), policy.Fresh())

	a, b := policy.Fresh(), policy.Fresh()
	for range 300 {
		require.NoError(t, a.SetSample(0))
	}
	require.NoError(t, b.SetSample(1))
	m := policy.Merge(b, a)
	require.Equal(t, 301, m.Samples())
}
