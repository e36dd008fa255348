package pipeline

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geomodel3d/internal/models"
	"geomodel3d/pkg/config"
	"geomodel3d/pkg/recovery"
)

// surveySamples builds a 3 x 3 borehole grid over a 100 x 100 site with a
// gently dipping surface.
func surveySamples() []models.Sample {
	var samples []models.Sample
	for j := 0; j < 3; j++ {
		for i := 0; i < 3; i++ {
			samples = append(samples, models.Sample{
				ID:          fmt.Sprintf("BH-%d%d", i, j),
				X:           float64(i) * 50,
				Y:           float64(j) * 50,
				Z:           12 + 0.02*float64(i)*50 - 0.01*float64(j)*50,
				MaterialTag: "sandstone",
				LayerID:     1,
			})
		}
	}
	return samples
}

func surveyLayers() []models.MaterialLayer {
	return []models.MaterialLayer{
		{LayerID: 1, Name: "sandstone", Density: 2.35, Cohesion: 27, FrictionAngle: 35},
	}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	// Coarse grid keeps the tests fast.
	cfg.Grid.Resolution = 20
	return cfg
}

func TestRunHappyPath(t *testing.T) {
	p := New(testConfig(), nil)
	result, err := p.Run(context.Background(), surveySamples(), surveyLayers())
	require.NoError(t, err)

	require.NotNil(t, result.Field)
	require.NotNil(t, result.Scene)
	assert.NoError(t, result.Model.Validate())
	assert.Equal(t, "kriging", result.Stats.Method)
	assert.Equal(t, 9, result.Stats.SampleCount)
	assert.Equal(t, result.Field.Grid.NodeCount(), result.Stats.GridNodes)
	assert.Positive(t, result.Stats.Duration)

	// Every sample lies strictly inside the expanded grid.
	for _, s := range surveySamples() {
		assert.Greater(t, s.X, result.Field.Grid.OriginX)
		assert.Less(t, s.X, result.Field.Grid.MaxX())
	}
	for _, v := range result.Field.Variance {
		assert.GreaterOrEqual(t, v, 0.0)
	}

	// The surface entity is named for the dominant material, which maps
	// to a palette color.
	assert.Contains(t, result.Scene.Entities, "sandstone")
}

func TestRunCornerSurveyEndToEnd(t *testing.T) {
	// Four samples at the corners of a 100 x 100 square with a symmetric
	// elevation pattern, run through the whole pipeline with the fitted
	// (not hand-built) variogram. The grid node at the center must
	// estimate the data mean with positive variance.
	samples := []models.Sample{
		{ID: "sw", X: 0, Y: 0, Z: 0, MaterialTag: "sandstone"},
		{ID: "se", X: 100, Y: 0, Z: 1, MaterialTag: "sandstone"},
		{ID: "nw", X: 0, Y: 100, Z: 1, MaterialTag: "sandstone"},
		{ID: "ne", X: 100, Y: 100, Z: 0, MaterialTag: "sandstone"},
	}

	cfg := config.DefaultConfig()
	cfg.Grid.Resolution = 10

	p := New(cfg, nil)
	result, err := p.Run(context.Background(), samples, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Field)
	require.NoError(t, result.Model.Validate())
	assert.Equal(t, "kriging", result.Stats.Method)

	// Origin is -50 with 10-unit spacing, so (50, 50) is node (10, 10).
	grid := result.Field.Grid
	i := int((50 - grid.OriginX) / grid.Spacing)
	j := int((50 - grid.OriginY) / grid.Spacing)
	require.Equal(t, 50.0, grid.X(i))
	require.Equal(t, 50.0, grid.Y(j))
	assert.InDelta(t, 0.5, result.Field.At(i, j), 1e-6)
	assert.Positive(t, result.Field.VarianceAt(i, j))
}

func TestRunThreeSampleSurvey(t *testing.T) {
	// The smallest valid survey: three well-separated boreholes must run
	// to completion with a valid fitted model.
	samples := []models.Sample{
		{ID: "a", X: 0, Y: 0, Z: 5},
		{ID: "b", X: 60, Y: 0, Z: 6},
		{ID: "c", X: 30, Y: 51.96, Z: 7},
	}

	p := New(testConfig(), nil)
	result, err := p.Run(context.Background(), samples, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Field)
	require.NotNil(t, result.Scene)
	assert.NoError(t, result.Model.Validate())
	assert.Equal(t, 3, result.Stats.SampleCount)
	for _, diag := range result.Diagnostics {
		assert.NotEqual(t, recovery.SeverityError, diag.Severity)
		assert.NotEqual(t, recovery.SeverityCritical, diag.Severity)
	}
}

func TestRunDeterministicField(t *testing.T) {
	p := New(testConfig(), nil)

	a, err := p.Run(context.Background(), surveySamples(), surveyLayers())
	require.NoError(t, err)
	b, err := p.Run(context.Background(), surveySamples(), surveyLayers())
	require.NoError(t, err)

	assert.Equal(t, a.Field.Values, b.Field.Values)
	assert.Equal(t, a.Field.Variance, b.Field.Variance)
	assert.Equal(t, a.Model, b.Model)
}

func TestRunMergesDuplicates(t *testing.T) {
	samples := append(surveySamples(),
		models.Sample{ID: "dup", X: 0, Y: 0, Z: 20, MaterialTag: "sandstone"})

	p := New(testConfig(), nil)
	result, err := p.Run(context.Background(), samples, surveyLayers())
	require.NoError(t, err)

	assert.Equal(t, 9, result.Stats.SampleCount, "duplicate merged away")

	require.NotEmpty(t, result.Diagnostics)
	diag := result.Diagnostics[0]
	assert.Equal(t, recovery.DataValidation, diag.Kind)
	assert.Equal(t, recovery.SeverityWarning, diag.Severity)
	assert.True(t, diag.AutoFixed)
	assert.Contains(t, diag.ModifiedParams, "duplicate_handling")
}

func TestRunSynthesizesMissingSamples(t *testing.T) {
	samples := []models.Sample{
		{ID: "a", X: 10, Y: 10, Z: 5},
		{ID: "b", X: 60, Y: 40, Z: 7},
	}

	p := New(testConfig(), nil)
	result, err := p.Run(context.Background(), samples, nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.Stats.SampleCount, models.MinSamples)
	require.NotNil(t, result.Field)

	var found bool
	for _, diag := range result.Diagnostics {
		if diag.Kind == recovery.DataValidation && diag.AutoFixed && diag.UsedFallback {
			found = true
		}
	}
	assert.True(t, found, "synthesis recorded as an auto-fixed fallback")
}

func TestRunRejectsInvalidCoordinates(t *testing.T) {
	samples := append(surveySamples(),
		models.Sample{ID: "bad", X: math.NaN(), Y: 0, Z: 0})

	p := New(testConfig(), nil)
	result, err := p.Run(context.Background(), samples, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidCoordinates)

	require.NotEmpty(t, result.Diagnostics)
	diag := result.Diagnostics[0]
	assert.Equal(t, recovery.DataValidation, diag.Kind)
	assert.False(t, diag.AutoFixed)
}

func TestRunEmptyInputFails(t *testing.T) {
	p := New(testConfig(), nil)
	result, err := p.Run(context.Background(), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInsufficientSamples)
	assert.NotEmpty(t, result.Diagnostics)
}

func TestRunRecoversFromCoLocatedSurvey(t *testing.T) {
	// All samples at one location: duplicates merge down to a single
	// point, then synthesis rebuilds a usable conditioning set.
	samples := []models.Sample{
		{ID: "a", X: 25, Y: 25, Z: 5},
		{ID: "b", X: 25, Y: 25, Z: 6},
		{ID: "c", X: 25, Y: 25, Z: 7},
	}

	p := New(testConfig(), nil)
	result, err := p.Run(context.Background(), samples, nil)
	require.NoError(t, err)

	require.NotNil(t, result.Field)
	assert.GreaterOrEqual(t, len(result.Diagnostics), 2, "merge and synthesis both recorded")
}

func TestRunColinearSamplesNeverPanic(t *testing.T) {
	// Three colinear samples with a zero-nugget model are the classic
	// degenerate geometry; the run must finish or fail with a classified
	// error, never an unhandled linear-algebra panic.
	samples := []models.Sample{
		{ID: "a", X: 0, Y: 0, Z: 1},
		{ID: "b", X: 50, Y: 0, Z: 2},
		{ID: "c", X: 100, Y: 0, Z: 3},
	}

	for _, variant := range []string{"ordinary", "universal"} {
		cfg := testConfig()
		cfg.Interpolation.KrigingVariant = variant

		p := New(cfg, nil)
		result, err := p.Run(context.Background(), samples, nil)
		if err != nil {
			assert.NotEmpty(t, result.Diagnostics, variant)
			continue
		}
		require.NotNil(t, result.Field, variant)
		for _, v := range result.Field.Variance {
			assert.GreaterOrEqual(t, v, 0.0)
		}
	}
}

func TestRunWithUncertaintyAnalysis(t *testing.T) {
	cfg := testConfig()
	cfg.Output.RunUncertaintyAnalysis = true

	p := New(cfg, nil)
	result, err := p.Run(context.Background(), surveySamples(), surveyLayers())
	require.NoError(t, err)

	require.NotNil(t, result.Uncertainty)
	assert.Equal(t, result.Model.Range, result.Uncertainty.VariogramModel.Range)
	assert.False(t, math.IsNaN(result.Uncertainty.Quality.RMSE))
}

func TestRunUnknownConfigNamesFallBack(t *testing.T) {
	cfg := testConfig()
	cfg.Interpolation.KrigingVariant = "indicator"
	cfg.Interpolation.VariogramModel = "cubic"

	p := New(cfg, nil)
	result, err := p.Run(context.Background(), surveySamples(), surveyLayers())
	require.NoError(t, err)
	assert.Equal(t, "kriging", result.Stats.Method)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(testConfig(), nil)
	_, err := p.Run(ctx, surveySamples(), surveyLayers())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMergeDuplicatesAverages(t *testing.T) {
	samples := []models.Sample{
		{ID: "a", X: 1, Y: 1, Z: 10},
		{ID: "b", X: 2, Y: 2, Z: 5},
		{ID: "c", X: 1, Y: 1, Z: 20},
	}
	out := mergeDuplicates(samples)

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID, "first occurrence keeps its identity")
	assert.Equal(t, 15.0, out[0].Z)
	assert.Equal(t, 5.0, out[1].Z)
}

func TestSynthesizeSamplesDeterministic(t *testing.T) {
	base := []models.Sample{{ID: "a", X: 10, Y: 10, Z: 5}}

	first := synthesizeSamples(base, 4)
	second := synthesizeSamples(base, 4)
	require.Len(t, first, 4)
	assert.Equal(t, first, second)

	// Synthetic points are distinct from the base and from each other.
	seen := map[[2]float64]bool{}
	for _, s := range first {
		key := [2]float64{s.X, s.Y}
		assert.False(t, seen[key])
		seen[key] = true
	}
}

func TestFindDuplicate(t *testing.T) {
	assert.Empty(t, findDuplicate(surveySamples()))
	dup := append(surveySamples(), models.Sample{X: 0, Y: 0})
	assert.NotEmpty(t, findDuplicate(dup))
}
