package variogram

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// FitQuality tags how the model parameters were obtained.
type FitQuality string

const (
	// AutoFitted means non-linear least squares converged to physical
	// parameters.
	AutoFitted FitQuality = "auto_fitted"

	// HeuristicFallback means optimization failed or produced non-physical
	// values and the documented heuristic defaults were used instead.
	HeuristicFallback FitQuality = "heuristic_fallback"
)

// Fit estimates (range, sill, nugget) of the chosen model kind from the
// empirical semivariance by Nelder-Mead least squares. Fitting is never
// fatal: when the optimizer fails, does not converge, or lands on
// non-physical parameters, Fit falls back to heuristic defaults
//
//	range  = max(lag centers) / 3
//	sill   = variance of the empirical gamma values
//	nugget = 0
//
// and reports HeuristicFallback so the caller can log a warning.
func Fit(emp *Empirical, kind Kind, dim int) (Model, FitQuality) {
	fallback := heuristicModel(emp, kind, dim)

	sse := func(x []float64) float64 {
		m := Model{Kind: kind, Range: x[0], Sill: x[1], Nugget: x[2], Dim: dim}
		if m.Range <= 0 || m.Nugget < 0 || m.Sill < m.Nugget {
			return 1e18 // penalty keeps the simplex in the physical region
		}
		total := 0.0
		for i, h := range emp.LagCenters {
			r := m.Gamma(h) - emp.Gamma[i]
			total += r * r
		}
		return total
	}

	x0 := []float64{fallback.Range, initialSill(emp), 0}
	result, err := optimize.Minimize(optimize.Problem{Func: sse}, x0, nil, &optimize.NelderMead{})
	if err != nil || result == nil {
		return fallback, HeuristicFallback
	}

	fitted := Model{Kind: kind, Range: result.X[0], Sill: result.X[1], Nugget: result.X[2], Dim: dim}
	if fitted.Validate() != nil {
		return fallback, HeuristicFallback
	}
	return fitted, AutoFitted
}

// Heuristic builds the fallback parameters directly, skipping
// optimization. Used when automatic fitting is disabled or a recovery
// strategy forces the empirical defaults.
func Heuristic(emp *Empirical, kind Kind, dim int) Model {
	return heuristicModel(emp, kind, dim)
}

// heuristicModel builds the documented fallback parameters. It always
// yields a valid model, even for a single-bin empirical variogram.
func heuristicModel(emp *Empirical, kind Kind, dim int) Model {
	rng := floats.Max(emp.LagCenters) / 3
	if rng <= 0 {
		rng = 1
	}
	sill := stat.Variance(emp.Gamma, nil)
	if math.IsNaN(sill) || sill <= 0 {
		sill = initialSill(emp)
	}
	return Model{Kind: kind, Range: rng, Sill: sill, Nugget: 0, Dim: dim}
}

// initialSill seeds the optimizer with the mean empirical semivariance,
// a stable stand-in for the plateau height.
func initialSill(emp *Empirical) float64 {
	sill := stat.Mean(emp.Gamma, nil)
	if math.IsNaN(sill) || sill <= 0 {
		sill = 1
	}
	return sill
}
