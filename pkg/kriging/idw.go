package kriging

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"geomodel3d/internal/models"
)

// IDW is the inverse-distance-weighted fallback interpolator used when
// kriging is substituted by the recovery layer (singular systems,
// timeouts). It has no spatial-correlation model; the variance buffer is
// filled with the conditioning-data variance as a flat uncertainty bound.
type IDW struct {
	xs, ys, vals []float64
	variance     float64
}

// NewIDW builds an inverse-distance interpolator with the conventional
// power of 2.
func NewIDW(samples []models.Sample) (*IDW, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("idw over empty sample set: %w", models.ErrInsufficientSamples)
	}
	d := &IDW{
		xs:   make([]float64, len(samples)),
		ys:   make([]float64, len(samples)),
		vals: make([]float64, len(samples)),
	}
	for i, s := range samples {
		if !s.ValidCoordinates() {
			return nil, fmt.Errorf("sample %q: %w", s.ID, models.ErrInvalidCoordinates)
		}
		d.xs[i] = s.X
		d.ys[i] = s.Y
		d.vals[i] = s.Z
	}
	if len(d.vals) > 1 {
		d.variance = stat.Variance(d.vals, nil)
	}
	return d, nil
}

// Interpolate evaluates the weighted average over every grid node. The
// context is checked between rows.
func (d *IDW) Interpolate(ctx context.Context, grid GridDef) (*InterpolatedField, error) {
	field := &InterpolatedField{
		Grid:     grid,
		Values:   make([]float64, grid.NodeCount()),
		Variance: make([]float64, grid.NodeCount()),
	}
	for j := 0; j < grid.NY; j++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("idw interpolation aborted at row %d/%d: %w", j, grid.NY, err)
		}
		for i := 0; i < grid.NX; i++ {
			node := j*grid.NX + i
			field.Values[node] = d.EstimateAt(grid.X(i), grid.Y(j))
			field.Variance[node] = d.variance
		}
	}
	return field, nil
}

// EstimateAt returns the inverse-distance weighted average at a location.
// A target closer than 1e-10 to a sample snaps to that sample's value.
func (d *IDW) EstimateAt(x, y float64) float64 {
	weightedSum := 0.0
	totalWeight := 0.0
	for i := range d.vals {
		dist := hypot(x-d.xs[i], y-d.ys[i])
		if dist < 1e-10 {
			return d.vals[i]
		}
		w := 1.0 / (dist * dist)
		weightedSum += w * d.vals[i]
		totalWeight += w
	}
	if totalWeight > 0 {
		return weightedSum / totalWeight
	}
	return stat.Mean(d.vals, nil)
}
