package recovery

import (
	"context"
	"errors"
	"strings"

	"geomodel3d/internal/models"
	"geomodel3d/pkg/kriging"
	"geomodel3d/pkg/scene"
)

// Adjustment is the output of an auto-fix strategy: the parameter changes
// and/or method substitution to apply before retrying the failed stage.
// Adjustments from successive failures merge, each field keeping its most
// aggressive value.
type Adjustment struct {
	// GridResolutionScale coarsens the target grid when > 1.
	GridResolutionScale float64

	// MinNugget raises the variogram nugget to at least this value,
	// regularizing near-singular systems.
	MinNugget float64

	// SubstituteIDW replaces kriging with distance-weighted interpolation.
	SubstituteIDW bool

	// MergeDuplicates enables averaging of co-located samples.
	MergeDuplicates bool

	// SynthesizeSamples enables deterministic jittered points when fewer
	// than the minimum sample count is present.
	SynthesizeSamples bool

	// HeuristicVariogram forces the fallback variogram parameters.
	HeuristicVariogram bool
}

// Merge folds another adjustment into this one.
func (a Adjustment) Merge(b Adjustment) Adjustment {
	if b.GridResolutionScale > a.GridResolutionScale {
		a.GridResolutionScale = b.GridResolutionScale
	}
	if b.MinNugget > a.MinNugget {
		a.MinNugget = b.MinNugget
	}
	a.SubstituteIDW = a.SubstituteIDW || b.SubstituteIDW
	a.MergeDuplicates = a.MergeDuplicates || b.MergeDuplicates
	a.SynthesizeSamples = a.SynthesizeSamples || b.SynthesizeSamples
	a.HeuristicVariogram = a.HeuristicVariogram || b.HeuristicVariogram
	return a
}

// Describe lists the non-zero adjustments for diagnostic reporting.
func (a Adjustment) Describe() map[string]any {
	out := map[string]any{}
	if a.GridResolutionScale > 1 {
		out["grid_resolution_scale"] = a.GridResolutionScale
	}
	if a.MinNugget > 0 {
		out["min_nugget"] = a.MinNugget
	}
	if a.SubstituteIDW {
		out["fallback_method"] = "inverse_distance"
	}
	if a.MergeDuplicates {
		out["duplicate_handling"] = "averaged"
	}
	if a.SynthesizeSamples {
		out["synthetic_points"] = true
	}
	if a.HeuristicVariogram {
		out["use_empirical_variogram"] = true
	}
	return out
}

// UsedFallback reports whether the adjustment substitutes a method rather
// than only tuning parameters.
func (a Adjustment) UsedFallback() bool {
	return a.SubstituteIDW || a.SynthesizeSamples || a.HeuristicVariogram
}

// Entry is one catalog row: the failure signature, the diagnostic
// template, and the pure strategy producing the retry adjustment.
type Entry struct {
	// Key identifies the failure category; the orchestrator caps retries
	// at one automatic attempt per key per pipeline run.
	Key string

	Kind       Kind
	Severity   Severity
	Message    string
	Suggestion string

	// AutoFix reports whether a retry strategy exists. Entries without
	// one (invalid coordinates) abort the run with a diagnostic.
	AutoFix bool

	// Fix returns the adjustment to retry with. Pure: no state, no
	// side effects.
	Fix func() Adjustment

	matches func(error) bool
}

// Catalog is the immutable set of known failure modes. Construct with
// DefaultCatalog and share freely; classification is read-only.
type Catalog struct {
	entries []Entry
}

// DefaultCatalog builds the standard failure-mode catalog. Sentinel
// errors are matched first; free-text signatures cover failures arriving
// from wrapped third-party errors.
func DefaultCatalog() *Catalog {
	return &Catalog{entries: []Entry{
		{
			Key:        "insufficient_points",
			Kind:       DataValidation,
			Severity:   SeverityError,
			Message:    "insufficient borehole sample points",
			Suggestion: "at least 3 samples are required; nearby synthetic points will be generated from the available ones",
			AutoFix:    true,
			Fix:        func() Adjustment { return Adjustment{SynthesizeSamples: true} },
			matches: func(err error) bool {
				return errors.Is(err, models.ErrInsufficientSamples) ||
					containsAny(err, "insufficient", "at least 3")
			},
		},
		{
			Key:        "duplicate_coordinates",
			Kind:       DataValidation,
			Severity:   SeverityWarning,
			Message:    "duplicate sample coordinates",
			Suggestion: "co-located samples are merged to their mean value; check the source data quality",
			AutoFix:    true,
			Fix:        func() Adjustment { return Adjustment{MergeDuplicates: true} },
			matches: func(err error) bool {
				return errors.Is(err, models.ErrDuplicateCoordinates) ||
					containsAny(err, "duplicate", "same coordinates")
			},
		},
		{
			Key:        "invalid_coordinates",
			Kind:       DataValidation,
			Severity:   SeverityError,
			Message:    "invalid sample coordinates",
			Suggestion: "NaN or infinite coordinate values found; fix the source records before modeling",
			AutoFix:    false,
			matches: func(err error) bool {
				return errors.Is(err, models.ErrInvalidCoordinates) ||
					containsAny(err, "invalid coordinates", "not finite", "nan or inf")
			},
		},
		{
			Key:        "kriging_singular_matrix",
			Kind:       InterpolationFailure,
			Severity:   SeverityWarning,
			Message:    "kriging system is singular",
			Suggestion: "conditioning points are too close together; the nugget term is raised to regularize the system",
			AutoFix:    true,
			Fix:        func() Adjustment { return Adjustment{MinNugget: 0.1} },
			matches: func(err error) bool {
				return errors.Is(err, kriging.ErrSingularSystem) ||
					containsAny(err, "singular matrix")
			},
		},
		{
			Key:        "variogram_fit_failed",
			Kind:       InterpolationFailure,
			Severity:   SeverityWarning,
			Message:    "variogram model fitting failed",
			Suggestion: "automatic fitting did not converge; heuristic parameters are used instead",
			AutoFix:    true,
			Fix:        func() Adjustment { return Adjustment{HeuristicVariogram: true} },
			matches: func(err error) bool {
				return containsAny(err, "variogram", "fit failed")
			},
		},
		{
			Key:        "mesh_generation_error",
			Kind:       GeometryError,
			Severity:   SeverityWarning,
			Message:    "mesh generation failed",
			Suggestion: "the interpolated surface could not be converted; the grid resolution is reduced",
			AutoFix:    true,
			Fix:        func() Adjustment { return Adjustment{GridResolutionScale: 1.5} },
			matches: func(err error) bool {
				return errors.Is(err, scene.ErrMeshGeneration) ||
					containsAny(err, "triangulation", "mesh generation")
			},
		},
		{
			Key:        "memory_overflow",
			Kind:       ResourceExhaustion,
			Severity:   SeverityError,
			Message:    "memory exhausted",
			Suggestion: "the grid is too large for the available memory; the resolution is reduced",
			AutoFix:    true,
			Fix:        func() Adjustment { return Adjustment{GridResolutionScale: 2.5} },
			matches: func(err error) bool {
				return containsAny(err, "out of memory", "cannot allocate")
			},
		},
		{
			Key:        "computation_timeout",
			Kind:       ResourceExhaustion,
			Severity:   SeverityWarning,
			Message:    "computation timed out",
			Suggestion: "interpolation exceeded its time budget; a faster method and a coarser grid are used",
			AutoFix:    true,
			Fix: func() Adjustment {
				return Adjustment{SubstituteIDW: true, GridResolutionScale: 2}
			},
			matches: func(err error) bool {
				return errors.Is(err, context.DeadlineExceeded) ||
					containsAny(err, "timeout", "time limit")
			},
		},
	}}
}

// Classify matches an error against the catalog. The second return is
// false for unknown failures, which the orchestrator must surface
// unchanged with the original message preserved.
func (c *Catalog) Classify(err error) (Entry, bool) {
	for _, e := range c.entries {
		if e.matches(err) {
			return e, true
		}
	}
	return Entry{}, false
}

// Context builds the diagnostic record for a classified failure. The
// AutoFixed flag is filled in by the orchestrator once the retry outcome
// is known.
func (e Entry) Context(err error, adj Adjustment) ErrorContext {
	return ErrorContext{
		Kind:           e.Kind,
		Severity:       e.Severity,
		Message:        e.Message,
		Suggestion:     e.Suggestion,
		Technical:      err.Error(),
		UsedFallback:   adj.UsedFallback(),
		ModifiedParams: adj.Describe(),
	}
}

// UnknownContext builds the diagnostic record for an unclassified
// failure: never auto-fixed, original message preserved.
func UnknownContext(err error) ErrorContext {
	return ErrorContext{
		Kind:      Unknown,
		Severity:  SeverityError,
		Message:   "unclassified failure",
		Technical: err.Error(),
	}
}

func containsAny(err error, signatures ...string) bool {
	text := strings.ToLower(err.Error())
	for _, s := range signatures {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}
