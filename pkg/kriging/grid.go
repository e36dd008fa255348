package kriging

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"geomodel3d/internal/models"
)

// GridDef is the geometric definition of a regular horizontal grid:
// origin, uniform spacing, and node counts per axis. Nodes are stored in
// row-major order with x varying fastest.
type GridDef struct {
	OriginX float64
	OriginY float64
	Spacing float64
	NX      int
	NY      int
}

// GridForSamples derives grid bounds from the sample bounding box expanded
// by the given margins. With positive margins every sample lies strictly
// inside the grid extents.
func GridForSamples(samples []models.Sample, resolution, expandX, expandY float64) (GridDef, error) {
	if len(samples) == 0 {
		return GridDef{}, fmt.Errorf("grid derivation: %w", models.ErrInsufficientSamples)
	}
	if resolution <= 0 {
		return GridDef{}, fmt.Errorf("grid resolution must be positive, got %g", resolution)
	}
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = s.X
		ys[i] = s.Y
	}
	minX, maxX := floats.Min(xs)-expandX, floats.Max(xs)+expandX
	minY, maxY := floats.Min(ys)-expandY, floats.Max(ys)+expandY

	nx := int(math.Ceil((maxX-minX)/resolution)) + 1
	ny := int(math.Ceil((maxY-minY)/resolution)) + 1
	if nx < 2 {
		nx = 2
	}
	if ny < 2 {
		ny = 2
	}
	return GridDef{OriginX: minX, OriginY: minY, Spacing: resolution, NX: nx, NY: ny}, nil
}

// Coarsen returns a copy of the grid definition with the spacing scaled by
// factor and the node counts reduced to cover the same extents. Used by
// the resolution-reduction recovery strategy.
func (g GridDef) Coarsen(factor float64) GridDef {
	if factor <= 1 {
		return g
	}
	out := g
	out.Spacing = g.Spacing * factor
	out.NX = int(math.Ceil(float64(g.NX-1)/factor)) + 1
	out.NY = int(math.Ceil(float64(g.NY-1)/factor)) + 1
	if out.NX < 2 {
		out.NX = 2
	}
	if out.NY < 2 {
		out.NY = 2
	}
	return out
}

// X returns the world x coordinate of grid column i.
func (g GridDef) X(i int) float64 { return g.OriginX + float64(i)*g.Spacing }

// Y returns the world y coordinate of grid row j.
func (g GridDef) Y(j int) float64 { return g.OriginY + float64(j)*g.Spacing }

// NodeCount returns the total number of grid nodes.
func (g GridDef) NodeCount() int { return g.NX * g.NY }

// MaxX returns the world x coordinate of the last column.
func (g GridDef) MaxX() float64 { return g.X(g.NX - 1) }

// MaxY returns the world y coordinate of the last row.
func (g GridDef) MaxY() float64 { return g.Y(g.NY - 1) }

// InterpolatedField is the dense result of an interpolation pass: the
// estimated scalar per grid node and the co-located estimation variance,
// both in the grid's row-major node order. The two buffers always have
// identical shape and the variance is non-negative everywhere.
type InterpolatedField struct {
	Grid     GridDef
	Values   []float64
	Variance []float64
}

// At returns the interpolated value at grid column i, row j.
func (f *InterpolatedField) At(i, j int) float64 { return f.Values[j*f.Grid.NX+i] }

// VarianceAt returns the estimation variance at grid column i, row j.
func (f *InterpolatedField) VarianceAt(i, j int) float64 { return f.Variance[j*f.Grid.NX+i] }
