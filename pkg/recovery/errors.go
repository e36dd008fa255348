// Package recovery classifies pipeline failures against a catalog of
// known failure modes and supplies the parameter adjustment or method
// substitution that lets the orchestrator retry a stage. The catalog is
// an immutable value injected into each pipeline, so parallel runs never
// share mutable classifier state.
package recovery

// Kind is the failure taxonomy category. It classifies what went wrong,
// not which Go error type carried it.
type Kind string

const (
	// DataValidation covers insufficient, duplicate and invalid inputs.
	DataValidation Kind = "data_validation"

	// InterpolationFailure covers singular systems, fit failures and
	// numerical instability.
	InterpolationFailure Kind = "interpolation_failure"

	// GeometryError covers triangulation and mesh-generation failures.
	GeometryError Kind = "geometry_error"

	// ResourceExhaustion covers memory pressure and computation timeouts.
	ResourceExhaustion Kind = "resource_exhaustion"

	// Unknown marks failures the catalog could not classify. They are
	// never auto-fixed and always surfaced with the original message.
	Unknown Kind = "unknown"
)

// Severity grades an ErrorContext for display.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ErrorContext is the per-failure diagnostic record. One is produced for
// every classified (or unknown) failure during a pipeline run; they are
// reported alongside the result and never persisted beyond the run.
type ErrorContext struct {
	// Kind and Severity place the failure in the taxonomy.
	Kind     Kind
	Severity Severity

	// Message is the human-readable description of the failure mode;
	// Suggestion tells the operator what to do about it.
	Message    string
	Suggestion string

	// Technical preserves the original error text verbatim.
	Technical string

	// AutoFixed reports whether the retry after the strategy's adjustment
	// succeeded. UsedFallback reports a method substitution (rather than
	// a pure parameter change).
	AutoFixed    bool
	UsedFallback bool

	// ModifiedParams names the adjustments the strategy applied.
	ModifiedParams map[string]any
}
