// Package kriging implements best-linear-unbiased spatial estimation over
// a regular grid from scattered borehole samples and a fitted variogram
// model. Ordinary, universal (linear drift) and simple variants are
// supported; every estimate carries its kriging variance.
package kriging

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/stat"

	"geomodel3d/internal/models"
	"geomodel3d/pkg/variogram"
)

// ErrSingularSystem is returned when the kriging covariance system is
// singular or near-singular, typically caused by co-located conditioning
// points or a zero-nugget model over degenerate geometry. The recovery
// catalog matches on it with errors.Is.
var ErrSingularSystem = errors.New("kriging system is singular or near-singular")

// Variant enumerates the supported kriging estimators.
type Variant int

const (
	// Ordinary kriging assumes an unknown but constant mean and constrains
	// the weights to sum to one via a Lagrange multiplier row.
	Ordinary Variant = iota

	// Universal kriging augments the system with a linear drift in the
	// horizontal plane; the constant drift term subsumes the unit-sum
	// constraint.
	Universal

	// Simple kriging assumes a known mean (the conditioning-data mean).
	Simple
)

// String returns the configuration name of the variant.
func (v Variant) String() string {
	switch v {
	case Ordinary:
		return "ordinary"
	case Universal:
		return "universal"
	case Simple:
		return "simple"
	default:
		return "unknown"
	}
}

// ParseVariant converts a configuration name to a Variant.
func ParseVariant(name string) (Variant, error) {
	switch name {
	case "ordinary":
		return Ordinary, nil
	case "universal":
		return Universal, nil
	case "simple":
		return Simple, nil
	default:
		return 0, fmt.Errorf("unknown kriging variant %q", name)
	}
}

// DefaultMaxConditioning caps the number of conditioning points per solve.
// Above the cap the engine switches to neighbor-limited kriging backed by
// a KD-tree, which bounds both solve cost and memory.
const DefaultMaxConditioning = 32

// condTol is the condition-number threshold beyond which a factorized
// system is treated as singular.
const condTol = 1e12

// Engine evaluates a kriging predictor built from a sample set and a
// fitted variogram model. An Engine is immutable after construction and
// safe for concurrent use.
type Engine struct {
	model   variogram.Model
	variant Variant

	xs, ys, vals []float64
	mean         float64 // known mean for simple kriging
	cx, cy       float64 // coordinate centering for drift terms

	maxConditioning int
	tree            *kdtree.Tree
}

// NewEngine builds a kriging engine over the given samples. The variogram
// model is consumed read-only; at least models.MinSamples samples with
// distinct coordinates are required.
func NewEngine(samples []models.Sample, model variogram.Model, variant Variant) (*Engine, error) {
	if len(samples) < models.MinSamples {
		return nil, fmt.Errorf("kriging over %d samples: %w", len(samples), models.ErrInsufficientSamples)
	}
	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("kriging model: %w", err)
	}

	e := &Engine{
		model:           model,
		variant:         variant,
		xs:              make([]float64, len(samples)),
		ys:              make([]float64, len(samples)),
		vals:            make([]float64, len(samples)),
		maxConditioning: DefaultMaxConditioning,
	}
	for i, s := range samples {
		if !s.ValidCoordinates() {
			return nil, fmt.Errorf("sample %q: %w", s.ID, models.ErrInvalidCoordinates)
		}
		e.xs[i] = s.X
		e.ys[i] = s.Y
		e.vals[i] = s.Z
	}
	e.mean = stat.Mean(e.vals, nil)
	e.cx = stat.Mean(e.xs, nil)
	e.cy = stat.Mean(e.ys, nil)

	if len(samples) > e.maxConditioning {
		points := make(samplePoints, len(samples))
		for i := range e.xs {
			points[i] = samplePoint{x: e.xs[i], y: e.ys[i], idx: i}
		}
		e.tree = kdtree.New(points, true)
	}
	return e, nil
}

// Model returns the variogram model the engine was built with.
func (e *Engine) Model() variogram.Model { return e.model }

// Variant returns the kriging variant the engine was built with.
func (e *Engine) Variant() Variant { return e.variant }

// Interpolate evaluates the predictor over every node of the grid and
// returns the interpolated field together with its estimation variance.
// The context deadline is checked between nodes, never mid-solve, so
// cancellation is cooperative.
func (e *Engine) Interpolate(ctx context.Context, grid GridDef) (*InterpolatedField, error) {
	field := &InterpolatedField{
		Grid:     grid,
		Values:   make([]float64, grid.NodeCount()),
		Variance: make([]float64, grid.NodeCount()),
	}

	// With few samples the system matrix is shared by every node and is
	// factorized exactly once.
	var shared *krigingSystem
	if e.tree == nil {
		sys, err := e.buildSystem(allIndices(len(e.vals)))
		if err != nil {
			return nil, err
		}
		shared = sys
	}

	for j := 0; j < grid.NY; j++ {
		for i := 0; i < grid.NX; i++ {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("kriging interpolation aborted at node %d/%d: %w",
					j*grid.NX+i, grid.NodeCount(), err)
			}
			x, y := grid.X(i), grid.Y(j)

			sys := shared
			if sys == nil {
				var err error
				sys, err = e.systemNear(x, y)
				if err != nil {
					return nil, err
				}
			}
			value, variance, err := e.estimate(sys, x, y)
			if err != nil {
				return nil, err
			}
			field.Values[j*grid.NX+i] = value
			field.Variance[j*grid.NX+i] = variance
		}
	}
	return field, nil
}

// EstimateAt evaluates the predictor at a single location using the full
// conditioning set. Used by leave-one-out cross-validation.
func (e *Engine) EstimateAt(x, y float64) (value, variance float64, err error) {
	sys, err := e.buildSystem(allIndices(len(e.vals)))
	if err != nil {
		return 0, 0, err
	}
	return e.estimate(sys, x, y)
}

// krigingSystem is a factorized covariance system over a conditioning
// subset. The matrix depends only on the subset, so one factorization
// serves every target node that shares it.
type krigingSystem struct {
	idx   []int
	n     int // conditioning points
	extra int // constraint/drift rows
	lu    mat.LU
}

func (e *Engine) extraRows() int {
	switch e.variant {
	case Ordinary:
		return 1
	case Universal:
		return 3
	default:
		return 0
	}
}

// buildSystem assembles and factorizes the covariance system for the
// given conditioning indices. A near-singular factorization is surfaced
// as ErrSingularSystem rather than a generic linear-algebra failure.
func (e *Engine) buildSystem(idx []int) (*krigingSystem, error) {
	n := len(idx)
	extra := e.extraRows()
	m := n + extra

	a := mat.NewDense(m, m, nil)
	for r := 0; r < n; r++ {
		pr, qr := e.xs[idx[r]], e.ys[idx[r]]
		for c := r; c < n; c++ {
			h := hypot(pr-e.xs[idx[c]], qr-e.ys[idx[c]])
			cov := e.model.Covariance(h)
			a.Set(r, c, cov)
			a.Set(c, r, cov)
		}
		for k, f := range e.driftTerms(pr, qr) {
			a.Set(r, n+k, f)
			a.Set(n+k, r, f)
		}
	}

	sys := &krigingSystem{idx: idx, n: n, extra: extra}
	sys.lu.Factorize(a)
	if cond := sys.lu.Cond(); cond > condTol || math.IsNaN(cond) {
		return nil, fmt.Errorf("condition number %.3g over %d conditioning points: %w",
			cond, n, ErrSingularSystem)
	}
	return sys, nil
}

// systemNear builds a system over the maxConditioning nearest samples to
// the target location.
func (e *Engine) systemNear(x, y float64) (*krigingSystem, error) {
	keeper := kdtree.NewNKeeper(e.maxConditioning)
	e.tree.NearestSet(keeper, samplePoint{x: x, y: y})

	idx := make([]int, 0, keeper.Len())
	for _, item := range keeper.Heap {
		if item.Comparable == nil {
			continue
		}
		idx = append(idx, item.Comparable.(samplePoint).idx)
	}
	return e.buildSystem(idx)
}

// estimate solves the factorized system for one target node and returns
// the kriged value and its estimation variance. The variance is
// sill - weighted-covariance-sum - constraint terms, clipped at zero to
// absorb floating-point underflow.
func (e *Engine) estimate(sys *krigingSystem, x, y float64) (float64, float64, error) {
	m := sys.n + sys.extra
	b := mat.NewVecDense(m, nil)
	covs := make([]float64, sys.n)
	for r := 0; r < sys.n; r++ {
		h := hypot(x-e.xs[sys.idx[r]], y-e.ys[sys.idx[r]])
		covs[r] = e.model.Covariance(h)
		b.SetVec(r, covs[r])
	}
	for k, f := range e.driftTerms(x, y) {
		b.SetVec(sys.n+k, f)
	}

	w := mat.NewVecDense(m, nil)
	if err := sys.lu.SolveVecTo(w, false, b); err != nil {
		return 0, 0, fmt.Errorf("solving kriging weights: %w", ErrSingularSystem)
	}

	value := 0.0
	variance := e.model.Sill
	for r := 0; r < sys.n; r++ {
		wi := w.AtVec(r)
		variance -= wi * covs[r]
		switch e.variant {
		case Simple:
			value += wi * (e.vals[sys.idx[r]] - e.mean)
		default:
			value += wi * e.vals[sys.idx[r]]
		}
	}
	if e.variant == Simple {
		value += e.mean
	}
	drift := e.driftTerms(x, y)
	for k := 0; k < sys.extra; k++ {
		variance -= w.AtVec(sys.n+k) * driftOrOne(drift, k)
	}
	if variance < 0 {
		variance = 0
	}
	return value, variance, nil
}

// driftTerms returns the constraint/drift basis evaluated at a location:
// {1} for ordinary kriging, {1, x-cx, y-cy} for universal, nil for simple.
// Coordinates are centered to keep the drift columns well scaled.
func (e *Engine) driftTerms(x, y float64) []float64 {
	switch e.variant {
	case Ordinary:
		return []float64{1}
	case Universal:
		return []float64{1, x - e.cx, y - e.cy}
	default:
		return nil
	}
}

func driftOrOne(drift []float64, k int) float64 {
	if k < len(drift) {
		return drift[k]
	}
	return 1
}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func hypot(dx, dy float64) float64 {
	return math.Sqrt(dx*dx + dy*dy)
}
