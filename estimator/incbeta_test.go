package estimator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegIncBeta(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		x    float64
		want float64
	}{
		{"uniform is identity", 1, 1, 0.3, 0.3},
		{"Beta(2,1) is x squared", 2, 1, 0.6, 0.36},
		{"Beta(1,3)", 1, 3, 0.2, 1 - math.Pow(0.8, 3)},
		{"symmetric midpoint", 7, 7, 0.5, 0.5},
		{"large symmetric midpoint", 250, 250, 0.5, 0.5},
		{"below support", 3, 4, 0, 0},
		{"above support", 3, 4, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := regIncBeta(tt.a, tt.b, tt.x)
			require.True(t, ok)
			require.InDelta(t, tt.want, got, 1e-10)
		})
	}
}

func TestRegIncBeta_Reflection(t *testing.T) {
	for _, x := range []float64{0.05, 0.3, 0.71, 0.99} {
		left, ok := regIncBeta(4, 9, x)
		require.True(t, ok)
		right, ok := regIncBeta(9, 4, 1-x)
		require.True(t, ok)
		require.InDelta(t, 1.0, left+right, 1e-12, "x=%v", x)
	}
}

func TestInvRegIncBeta_RoundTrip(t *testing.T) {
	shapes := [][2]float64{{1, 1}, {2, 5}, {30, 2}, {1.5, 40.25}, {200, 300}}
	probs := []float64{0.001, 0.025, 0.5, 0.975, 0.999}

	for _, s := range shapes {
		for _, p := range probs {
			x, ok := invRegIncBeta(s[0], s[1], p)
			require.True(t, ok, "shape=%v p=%v", s, p)
			got, ok := regIncBeta(s[0], s[1], x)
			require.True(t, ok)
			require.InDelta(t, p, got, 1e-9, "shape=%v p=%v", s, p)
		}
	}
}

func TestHalfWidth_Table(t *testing.T) {
	for _, shape := range [][2]float64{{1, 1}, {5, 9}, {32, 32}} {
		exact, ok := exactHalfWidth(shape[0], shape[1], DefaultLevel)
		require.True(t, ok)
		require.InDelta(t, exact, halfWidth(shape[0], shape[1], DefaultLevel), 1e-15)
	}
}

func TestHalfWidth_Interpolated(t *testing.T) {
	for _, shape := range [][2]float64{{1.5, 1}, {2.3, 7.8}, {20.5, 30.5}, {31.9, 32}} {
		exact, ok := exactHalfWidth(shape[0], shape[1], DefaultLevel)
		require.True(t, ok)

		got, ok := tableHalfWidth(shape[0], shape[1])
		require.True(t, ok, "shape=%v", shape)
		require.InDelta(t, exact, got, 1e-2, "shape=%v", shape)
		require.InDelta(t, got, halfWidth(shape[0], shape[1], DefaultLevel), 1e-15)
	}

	t.Run("outside the grid", func(t *testing.T) {
		for _, shape := range [][2]float64{{0.5, 2}, {2, 32.5}, {40, 40}} {
			_, ok := tableHalfWidth(shape[0], shape[1])
			require.False(t, ok, "shape=%v", shape)
		}
	})

	t.Run("other levels are computed", func(t *testing.T) {
		exact, ok := exactHalfWidth(2.5, 3.5, 0.9)
		require.True(t, ok)
		require.InDelta(t, exact, halfWidth(2.5, 3.5, 0.9), 1e-12)
	})
}

func TestTableIndex(t *testing.T) {
	i, ok := tableIndex(1)
	require.True(t, ok)
	require.Equal(t, 0, i)

	i, ok = tableIndex(32)
	require.True(t, ok)
	require.Equal(t, 31, i)

	for _, shape := range []float64{0, 33, 2.5} {
		_, ok := tableIndex(shape)
		require.False(t, ok, "shape=%v", shape)
	}
}

func TestNormalHalfWidth(t *testing.T) {
	require.InDelta(t, 1.959963984540054, zScore(0.975), 1e-9)
	require.LessOrEqual(t, normalHalfWidth(1, 1, 0.999999), 0.5)
}
