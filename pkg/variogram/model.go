// Package variogram implements spatial-structure analysis for scattered
// sample data: empirical semivariance estimation and parametric variogram
// model fitting. The fitted model is the input to the kriging package.
package variogram

import (
	"fmt"
	"math"
)

// Kind enumerates the supported parametric variogram models.
type Kind int

const (
	Gaussian Kind = iota
	Exponential
	Spherical
	Matern
	Linear
)

// String returns the configuration name of the model kind.
func (k Kind) String() string {
	switch k {
	case Gaussian:
		return "gaussian"
	case Exponential:
		return "exponential"
	case Spherical:
		return "spherical"
	case Matern:
		return "matern"
	case Linear:
		return "linear"
	default:
		return "unknown"
	}
}

// ParseKind converts a configuration name to a Kind.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "gaussian":
		return Gaussian, nil
	case "exponential":
		return Exponential, nil
	case "spherical":
		return Spherical, nil
	case "matern":
		return Matern, nil
	case "linear":
		return Linear, nil
	default:
		return 0, fmt.Errorf("unknown variogram model %q", name)
	}
}

// Model is a fitted spatial-correlation model. Instances are value types
// and never mutated in place; refitting or recovery adjustments produce a
// new Model.
type Model struct {
	// Kind selects the parametric family.
	Kind Kind

	// Range is the correlation distance: separations beyond it contribute
	// (almost) the full sill. Must be > 0.
	Range float64

	// Sill is the total variance plateau, including the nugget. Must
	// satisfy Sill >= Nugget >= 0.
	Sill float64

	// Nugget is the micro-scale/measurement discontinuity at h -> 0.
	Nugget float64

	// Dim is the spatial dimension the model was fitted in (2 or 3).
	Dim int
}

// Validate checks the physicality invariants of the model parameters.
func (m Model) Validate() error {
	if m.Range <= 0 || math.IsNaN(m.Range) || math.IsInf(m.Range, 0) {
		return fmt.Errorf("variogram range must be positive, got %g", m.Range)
	}
	if m.Nugget < 0 || math.IsNaN(m.Nugget) {
		return fmt.Errorf("variogram nugget must be non-negative, got %g", m.Nugget)
	}
	if m.Sill < m.Nugget || math.IsNaN(m.Sill) {
		return fmt.Errorf("variogram sill (%g) must be >= nugget (%g)", m.Sill, m.Nugget)
	}
	if m.Dim != 2 && m.Dim != 3 {
		return fmt.Errorf("variogram dimension must be 2 or 3, got %d", m.Dim)
	}
	return nil
}

// WithNugget returns a copy of the model with the nugget raised to at
// least floor, lifting the sill as needed to keep sill >= nugget. Used by
// the singular-system recovery strategy.
func (m Model) WithNugget(floor float64) Model {
	out := m
	if out.Nugget < floor {
		out.Nugget = floor
	}
	if out.Sill < out.Nugget {
		out.Sill = out.Nugget
	}
	return out
}

// Gamma evaluates the semivariance at separation distance h. Gamma(0) is
// exactly zero; for h > 0 the nugget is added to the structured component
// scaled by the partial sill.
func (m Model) Gamma(h float64) float64 {
	if h <= 0 {
		return 0
	}
	partial := m.Sill - m.Nugget
	r := h / m.Range

	gamma := m.Nugget
	switch m.Kind {
	case Gaussian:
		gamma += partial * (1 - math.Exp(-3*r*r))
	case Exponential:
		gamma += partial * (1 - math.Exp(-3*r))
	case Spherical:
		if h < m.Range {
			gamma += partial * (1.5*r - 0.5*r*r*r)
		} else {
			gamma += partial
		}
	case Matern:
		// Fixed smoothness nu = 3/2, the closed-form engineering default.
		s := math.Sqrt(3) * r
		gamma += partial * (1 - (1+s)*math.Exp(-s))
	case Linear:
		gamma += partial * math.Min(r, 1)
	}
	return gamma
}

// Covariance evaluates the covariance C(h) = sill - gamma(h). C(0) equals
// the sill; beyond the range it decays to (near) zero.
func (m Model) Covariance(h float64) float64 {
	return m.Sill - m.Gamma(h)
}
