package kriging

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geomodel3d/internal/models"
	"geomodel3d/pkg/variogram"
)

// cornerSamples places four samples at the corners of a 100 x 100 site
// with a symmetric elevation pattern.
func cornerSamples() []models.Sample {
	return []models.Sample{
		{ID: "sw", X: 0, Y: 0, Z: 0},
		{ID: "se", X: 100, Y: 0, Z: 1},
		{ID: "nw", X: 0, Y: 100, Z: 1},
		{ID: "ne", X: 100, Y: 100, Z: 0},
	}
}

func testModel() variogram.Model {
	return variogram.Model{Kind: variogram.Exponential, Range: 50, Sill: 1, Nugget: 0, Dim: 2}
}

func TestOrdinaryKrigingCornerPattern(t *testing.T) {
	engine, err := NewEngine(cornerSamples(), testModel(), Ordinary)
	require.NoError(t, err)

	// The center is equidistant from all four samples, so symmetry forces
	// the estimate to their mean.
	value, variance, err := engine.EstimateAt(50, 50)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, value, 1e-9)
	assert.Positive(t, variance)
}

func TestOrdinaryKrigingExactAtSamples(t *testing.T) {
	samples := cornerSamples()
	engine, err := NewEngine(samples, testModel(), Ordinary)
	require.NoError(t, err)

	for _, s := range samples {
		value, variance, err := engine.EstimateAt(s.X, s.Y)
		require.NoError(t, err)
		assert.InDelta(t, s.Z, value, 1e-8, "sample %s", s.ID)
		assert.InDelta(t, 0, variance, 1e-8, "sample %s", s.ID)
	}
}

func TestInterpolateVarianceNonNegative(t *testing.T) {
	engine, err := NewEngine(cornerSamples(), testModel(), Ordinary)
	require.NoError(t, err)

	grid := GridDef{OriginX: -10, OriginY: -10, Spacing: 10, NX: 13, NY: 13}
	field, err := engine.Interpolate(context.Background(), grid)
	require.NoError(t, err)
	require.Len(t, field.Values, grid.NodeCount())
	require.Len(t, field.Variance, grid.NodeCount())

	for i, v := range field.Variance {
		assert.GreaterOrEqual(t, v, 0.0, "node %d", i)
		assert.False(t, math.IsNaN(field.Values[i]), "node %d", i)
	}
}

func TestInterpolateDeterministic(t *testing.T) {
	engine, err := NewEngine(cornerSamples(), testModel(), Ordinary)
	require.NoError(t, err)

	grid := GridDef{OriginX: 0, OriginY: 0, Spacing: 20, NX: 6, NY: 6}
	a, err := engine.Interpolate(context.Background(), grid)
	require.NoError(t, err)
	b, err := engine.Interpolate(context.Background(), grid)
	require.NoError(t, err)

	assert.Equal(t, a.Values, b.Values)
	assert.Equal(t, a.Variance, b.Variance)
}

func TestVariantsProduceFiniteEstimates(t *testing.T) {
	for _, variant := range []Variant{Ordinary, Universal, Simple} {
		engine, err := NewEngine(cornerSamples(), testModel(), variant)
		require.NoError(t, err, variant.String())

		value, variance, err := engine.EstimateAt(30, 70)
		require.NoError(t, err, variant.String())
		assert.False(t, math.IsNaN(value), variant.String())
		assert.GreaterOrEqual(t, variance, 0.0, variant.String())
	}
}

func TestSingularSystemSurfaced(t *testing.T) {
	// Two co-located samples with a zero-nugget model give identical
	// covariance rows.
	samples := []models.Sample{
		{ID: "a", X: 10, Y: 10, Z: 1},
		{ID: "b", X: 10, Y: 10, Z: 2},
		{ID: "c", X: 20, Y: 20, Z: 3},
	}
	engine, err := NewEngine(samples, testModel(), Ordinary)
	require.NoError(t, err)

	_, _, err = engine.EstimateAt(15, 15)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSingularSystem)
}

func TestNuggetRegularizesNearSingularSystem(t *testing.T) {
	samples := []models.Sample{
		{ID: "a", X: 10, Y: 10, Z: 1},
		{ID: "b", X: 10.000001, Y: 10, Z: 1.1},
		{ID: "c", X: 20, Y: 20, Z: 3},
	}
	raised := testModel().WithNugget(0.1)
	engine, err := NewEngine(samples, raised, Ordinary)
	require.NoError(t, err)

	_, _, err = engine.EstimateAt(15, 15)
	assert.NoError(t, err)
}

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine(cornerSamples()[:2], testModel(), Ordinary)
	assert.ErrorIs(t, err, models.ErrInsufficientSamples)

	bad := testModel()
	bad.Range = -1
	_, err = NewEngine(cornerSamples(), bad, Ordinary)
	assert.Error(t, err)

	withNaN := append(cornerSamples(), models.Sample{ID: "x", X: math.NaN(), Y: 0, Z: 0})
	_, err = NewEngine(withNaN, testModel(), Ordinary)
	assert.ErrorIs(t, err, models.ErrInvalidCoordinates)
}

func TestInterpolateHonorsCancellation(t *testing.T) {
	engine, err := NewEngine(cornerSamples(), testModel(), Ordinary)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	grid := GridDef{OriginX: 0, OriginY: 0, Spacing: 1, NX: 50, NY: 50}
	_, err = engine.Interpolate(ctx, grid)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNeighborLimitedKriging(t *testing.T) {
	// Enough samples to cross the conditioning cap and engage the KD-tree.
	var samples []models.Sample
	for j := 0; j < 8; j++ {
		for i := 0; i < 8; i++ {
			samples = append(samples, models.Sample{
				X: float64(i) * 10,
				Y: float64(j) * 10,
				Z: math.Sin(float64(i)*0.3) + math.Cos(float64(j)*0.4),
			})
		}
	}
	require.Greater(t, len(samples), DefaultMaxConditioning)

	engine, err := NewEngine(samples, testModel(), Ordinary)
	require.NoError(t, err)

	grid := GridDef{OriginX: 0, OriginY: 0, Spacing: 14, NX: 6, NY: 6}
	field, err := engine.Interpolate(context.Background(), grid)
	require.NoError(t, err)
	for i := range field.Values {
		assert.False(t, math.IsNaN(field.Values[i]))
		assert.GreaterOrEqual(t, field.Variance[i], 0.0)
	}
}

func TestParseVariantRoundTrip(t *testing.T) {
	for _, v := range []Variant{Ordinary, Universal, Simple} {
		parsed, err := ParseVariant(v.String())
		require.NoError(t, err)
		assert.Equal(t, v, parsed)
	}
	_, err := ParseVariant("indicator")
	assert.Error(t, err)
}

func BenchmarkInterpolate(b *testing.B) {
	engine, err := NewEngine(cornerSamples(), testModel(), Ordinary)
	if err != nil {
		b.Fatal(err)
	}
	grid := GridDef{OriginX: 0, OriginY: 0, Spacing: 5, NX: 21, NY: 21}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Interpolate(context.Background(), grid); err != nil {
			b.Fatal(err)
		}
	}
}
