// Package pipeline orchestrates the full reconstruction flow: sample
// validation, spatial-structure analysis, variogram fitting, kriging
// interpolation, optional cross-validation and scene export. Failures at
// any stage are classified against the recovery catalog and retried at
// most once per failure category with the catalog's adjustment applied.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"geomodel3d/internal/models"
	"geomodel3d/pkg/config"
	"geomodel3d/pkg/kriging"
	"geomodel3d/pkg/recovery"
	"geomodel3d/pkg/scene"
	"geomodel3d/pkg/validation"
	"geomodel3d/pkg/variogram"
)

// Pipeline runs the reconstruction flow for one sample set. It carries no
// per-run state, so a single Pipeline serves concurrent runs.
type Pipeline struct {
	cfg     *config.Config
	catalog *recovery.Catalog
	logger  *slog.Logger
}

// New builds a pipeline from the given configuration. A nil logger
// silences stage logging.
func New(cfg *config.Config, logger *slog.Logger) *Pipeline {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		cfg:     cfg,
		catalog: recovery.DefaultCatalog(),
		logger:  logger,
	}
}

// Stats summarizes one pipeline run.
type Stats struct {
	// SampleCount is the number of samples actually interpolated,
	// after merging and synthesis.
	SampleCount int

	// GridNodes is the node count of the grid that was interpolated,
	// after any resolution-reduction recovery.
	GridNodes int

	// Method names the interpolator that produced the field: "kriging"
	// or "inverse_distance" after a fallback substitution.
	Method string

	// Duration is the wall-clock time of the whole run.
	Duration time.Duration
}

// Result is the output of one pipeline run. On failure the fields
// computed before the failing stage are preserved so callers can inspect
// partial progress alongside the diagnostics.
type Result struct {
	// Field is the interpolated surface with estimation variance.
	Field *kriging.InterpolatedField

	// Model and FitQuality describe the variogram parameters used.
	Model      variogram.Model
	FitQuality variogram.FitQuality

	// Scene is the exported render-ready scene description.
	Scene *scene.SceneMesh

	// Uncertainty is present only when cross-validation was requested
	// and succeeded.
	Uncertainty *validation.UncertaintyReport

	// Diagnostics records every classified failure and recovery action
	// taken during the run, in occurrence order.
	Diagnostics []recovery.ErrorContext

	Stats Stats
}

// run carries the mutable state of one Run invocation: the accumulated
// adjustments, the retry budget per failure category, and the growing
// result.
type run struct {
	p       *Pipeline
	adj     recovery.Adjustment
	used    map[string]bool
	samples []models.Sample
	layers  map[int]models.MaterialLayer
	result  *Result
}

// Run executes the pipeline over the given samples. The material layer
// table is carried through to the result's scene naming; samples keep
// their MaterialTag labels.
//
// Classified failures trigger at most one automatic retry per catalog
// category per run; unclassified failures abort immediately with the
// partial result preserved.
func (p *Pipeline) Run(ctx context.Context, samples []models.Sample, layers []models.MaterialLayer) (*Result, error) {
	start := time.Now()
	r := &run{
		p:      p,
		used:   make(map[string]bool),
		result: &Result{},
	}
	defer func() {
		r.result.Stats.Duration = time.Since(start)
	}()

	r.layers = models.LayerTable(layers)
	if err := r.prepare(samples); err != nil {
		return r.result, err
	}

	emp, err := r.analyze()
	if err != nil {
		return r.result, err
	}
	r.fit(emp)

	if err := r.interpolate(ctx); err != nil {
		return r.result, err
	}
	r.crossValidate(ctx)

	if err := r.export(ctx); err != nil {
		return r.result, err
	}

	p.logger.Info("pipeline run complete",
		"samples", r.result.Stats.SampleCount,
		"grid_nodes", r.result.Stats.GridNodes,
		"method", r.result.Stats.Method,
		"diagnostics", len(r.result.Diagnostics))
	return r.result, nil
}

// prepare normalizes, validates and if necessary repairs the sample set:
// invalid coordinates abort, duplicates merge, and too-small sets are
// padded with deterministic synthetic points.
func (r *run) prepare(samples []models.Sample) error {
	samples = models.NormalizeSamples(samples)

	for _, s := range samples {
		if !s.ValidCoordinates() {
			err := fmt.Errorf("sample %q: %w", s.ID, models.ErrInvalidCoordinates)
			return r.classifyFatal(err)
		}
	}

	if dup := findDuplicate(samples); dup != "" {
		err := fmt.Errorf("samples at %s: %w", dup, models.ErrDuplicateCoordinates)
		entry, adj, retry := r.classify(err)
		if !retry {
			return err
		}
		samples = mergeDuplicates(samples)
		r.recordFixed(entry, err, adj)
		r.p.logger.Warn("merged duplicate samples", "remaining", len(samples))
	}

	if len(samples) < models.MinSamples {
		err := fmt.Errorf("preparing %d samples: %w", len(samples), models.ErrInsufficientSamples)
		if len(samples) == 0 {
			return r.classifyFatal(err)
		}
		entry, adj, retry := r.classify(err)
		if !retry {
			return err
		}
		samples = synthesizeSamples(samples, models.MinSamples+1)
		r.recordFixed(entry, err, adj)
		r.p.logger.Warn("synthesized samples for minimum conditioning set", "total", len(samples))
	}

	r.samples = samples
	r.result.Stats.SampleCount = len(samples)
	return nil
}

// analyze computes the empirical variogram. A co-located failure here
// means merging already ran, so analysis failures are fatal.
func (r *run) analyze() (*variogram.Empirical, error) {
	emp, err := variogram.Analyze(r.samples, variogram.Elevation, 0, 0)
	if err != nil {
		return nil, r.classifyFatal(err)
	}
	return emp, nil
}

// fit obtains the variogram model. Fitting is never fatal: optimizer
// failures fall back to heuristic parameters with a warning diagnostic.
func (r *run) fit(emp *variogram.Empirical) {
	kind, err := variogram.ParseKind(r.p.cfg.Interpolation.VariogramModel)
	if err != nil {
		kind = variogram.Exponential
		r.p.logger.Warn("unknown variogram model, using exponential",
			"configured", r.p.cfg.Interpolation.VariogramModel)
	}

	if !r.p.cfg.Interpolation.AutoFitVariogram || r.adj.HeuristicVariogram {
		r.result.Model = variogram.Heuristic(emp, kind, 2)
		r.result.FitQuality = variogram.HeuristicFallback
		return
	}

	model, quality := variogram.Fit(emp, kind, 2)
	if quality == variogram.HeuristicFallback {
		err := fmt.Errorf("variogram fit failed for %s model", kind)
		if entry, adj, retry := r.classify(err); retry {
			r.recordFixed(entry, err, adj)
		}
		r.p.logger.Warn("variogram fit fell back to heuristic parameters", "kind", kind.String())
	}
	r.result.Model = model
	r.result.FitQuality = quality
}

// interpolate runs the kriging pass, retrying with the catalog's
// adjustment on classified failures: nugget regularization for singular
// systems, and IDW on a coarser grid for timeouts.
func (r *run) interpolate(ctx context.Context) error {
	variant, err := kriging.ParseVariant(r.p.cfg.Interpolation.KrigingVariant)
	if err != nil {
		variant = kriging.Ordinary
		r.p.logger.Warn("unknown kriging variant, using ordinary",
			"configured", r.p.cfg.Interpolation.KrigingVariant)
	}

	for {
		field, err := r.interpolateOnce(ctx, variant)
		if err == nil {
			r.result.Field = field
			r.result.Stats.GridNodes = field.Grid.NodeCount()
			return nil
		}

		entry, adj, retry := r.classify(err)
		if !retry {
			return err
		}
		if adj.MinNugget > 0 {
			r.result.Model = r.result.Model.WithNugget(adj.MinNugget)
		}
		r.recordFixed(entry, err, adj)
		r.p.logger.Warn("retrying interpolation after recovery adjustment",
			"category", entry.Key, "params", adj.Describe())
	}
}

// interpolateOnce runs a single interpolation attempt under the current
// adjustments and the configured timeout.
func (r *run) interpolateOnce(ctx context.Context, variant kriging.Variant) (*kriging.InterpolatedField, error) {
	grid, err := r.grid()
	if err != nil {
		return nil, err
	}

	if t := r.p.cfg.Interpolation.TimeoutSeconds; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t*float64(time.Second)))
		defer cancel()
	}

	if r.adj.SubstituteIDW {
		idw, err := kriging.NewIDW(r.samples)
		if err != nil {
			return nil, err
		}
		field, err := idw.Interpolate(ctx, grid)
		if err != nil {
			return nil, err
		}
		r.result.Stats.Method = "inverse_distance"
		return field, nil
	}

	engine, err := kriging.NewEngine(r.samples, r.result.Model, variant)
	if err != nil {
		return nil, err
	}
	field, err := engine.Interpolate(ctx, grid)
	if err != nil {
		return nil, err
	}
	r.result.Stats.Method = "kriging"
	return field, nil
}

// grid derives the interpolation grid from the samples and the current
// resolution-reduction factor.
func (r *run) grid() (kriging.GridDef, error) {
	grid, err := kriging.GridForSamples(r.samples,
		r.p.cfg.Grid.Resolution,
		r.p.cfg.Grid.DomainExpansionX,
		r.p.cfg.Grid.DomainExpansionY)
	if err != nil {
		return kriging.GridDef{}, err
	}
	if r.adj.GridResolutionScale > 1 {
		grid = grid.Coarsen(r.adj.GridResolutionScale)
	}
	return grid, nil
}

// crossValidate runs leave-one-out scoring when requested. Failures here
// degrade to a warning diagnostic; the interpolated field stands.
func (r *run) crossValidate(ctx context.Context) {
	if !r.p.cfg.Output.RunUncertaintyAnalysis || r.adj.SubstituteIDW {
		return
	}
	variant, err := kriging.ParseVariant(r.p.cfg.Interpolation.KrigingVariant)
	if err != nil {
		variant = kriging.Ordinary
	}
	cv, err := validation.LeaveOneOut(ctx, r.samples, r.result.Model, variant)
	if err != nil {
		diag := recovery.UnknownContext(err)
		diag.Severity = recovery.SeverityWarning
		diag.Message = "cross-validation skipped"
		diag.Suggestion = "interpolation succeeded but quality scoring failed; results carry no uncertainty report"
		r.result.Diagnostics = append(r.result.Diagnostics, diag)
		r.p.logger.Warn("cross-validation failed", "error", err)
		return
	}
	r.result.Uncertainty = validation.BuildReport(cv, r.result.Model)
}

// export converts the interpolated field to the render-ready scene. A
// classified mesh failure re-interpolates on a coarser grid once.
func (r *run) export(ctx context.Context) error {
	name := r.surfaceName()
	converter := scene.NewConverter()

	for {
		mesh := scene.SurfaceFromField(r.result.Field, name)
		out, err := converter.Convert([]scene.Mesh{mesh})
		if err == nil {
			r.result.Scene = out
			return nil
		}

		entry, adj, retry := r.classify(err)
		if !retry {
			return err
		}
		r.recordFixed(entry, err, adj)
		variant, verr := kriging.ParseVariant(r.p.cfg.Interpolation.KrigingVariant)
		if verr != nil {
			variant = kriging.Ordinary
		}
		field, ierr := r.interpolateOnce(ctx, variant)
		if ierr != nil {
			return ierr
		}
		r.result.Field = field
		r.result.Stats.GridNodes = field.Grid.NodeCount()
		r.p.logger.Warn("retrying scene export on coarser grid", "grid_nodes", field.Grid.NodeCount())
	}
}

// surfaceName labels the exported surface, which in turn drives its
// palette color: the dominant material tag among the samples wins, then
// the dominant sample's layer name, then the configured colormap hint.
// Ties break toward the sample that appears first, keeping the label
// deterministic.
func (r *run) surfaceName() string {
	counts := make(map[string]int)
	best, bestCount := "", 0
	for _, s := range r.samples {
		tag := s.MaterialTag
		if tag == "" {
			if layer, ok := r.layers[s.LayerID]; ok {
				tag = layer.Name
			}
		}
		if tag == "" {
			continue
		}
		counts[tag]++
		if counts[tag] > bestCount {
			best, bestCount = tag, counts[tag]
		}
	}
	if best != "" {
		return best
	}
	if r.p.cfg.Output.ColormapHint != "" {
		return r.p.cfg.Output.ColormapHint
	}
	return "surface"
}

// classify matches an error against the catalog and charges the retry
// budget. It returns the entry, the merged adjustment, and whether a
// retry is allowed. Unknown and exhausted failures get a diagnostic with
// AutoFixed false.
func (r *run) classify(err error) (recovery.Entry, recovery.Adjustment, bool) {
	entry, ok := r.p.catalog.Classify(err)
	if !ok {
		r.result.Diagnostics = append(r.result.Diagnostics, recovery.UnknownContext(err))
		return recovery.Entry{}, recovery.Adjustment{}, false
	}
	if !entry.AutoFix || r.used[entry.Key] {
		r.result.Diagnostics = append(r.result.Diagnostics, entry.Context(err, recovery.Adjustment{}))
		return entry, recovery.Adjustment{}, false
	}
	r.used[entry.Key] = true
	adj := entry.Fix()
	r.adj = r.adj.Merge(adj)
	return entry, adj, true
}

// classifyFatal records the diagnostic for an unrecoverable failure and
// returns the error unchanged.
func (r *run) classifyFatal(err error) error {
	if entry, ok := r.p.catalog.Classify(err); ok {
		r.result.Diagnostics = append(r.result.Diagnostics, entry.Context(err, recovery.Adjustment{}))
	} else {
		r.result.Diagnostics = append(r.result.Diagnostics, recovery.UnknownContext(err))
	}
	return err
}

// recordFixed appends the diagnostic for a failure whose recovery
// adjustment is being applied.
func (r *run) recordFixed(entry recovery.Entry, err error, adj recovery.Adjustment) {
	diag := entry.Context(err, adj)
	diag.AutoFixed = true
	r.result.Diagnostics = append(r.result.Diagnostics, diag)
}

// findDuplicate returns a printable location shared by two samples, or
// empty when all horizontal positions are distinct.
func findDuplicate(samples []models.Sample) string {
	seen := make(map[[2]float64]bool, len(samples))
	for _, s := range samples {
		key := [2]float64{s.X, s.Y}
		if seen[key] {
			return fmt.Sprintf("(%g, %g)", s.X, s.Y)
		}
		seen[key] = true
	}
	return ""
}

// mergeDuplicates averages the values of co-located samples, keeping the
// first sample's identity and labels. Order of first occurrence is
// preserved so the merge is deterministic.
func mergeDuplicates(samples []models.Sample) []models.Sample {
	type acc struct {
		index int
		sum   float64
		count int
	}
	groups := make(map[[2]float64]*acc, len(samples))
	out := make([]models.Sample, 0, len(samples))
	for _, s := range samples {
		key := [2]float64{s.X, s.Y}
		if g, ok := groups[key]; ok {
			g.sum += s.Z
			g.count++
			continue
		}
		groups[key] = &acc{index: len(out), sum: s.Z, count: 1}
		out = append(out, s)
	}
	for _, g := range groups {
		out[g.index].Z = g.sum / float64(g.count)
	}
	return out
}

// synthesizeSamples pads a too-small sample set with points offset from
// the existing ones at fixed positions. Offsets and values are derived
// only from the input, so the padded set is identical across runs.
func synthesizeSamples(samples []models.Sample, target int) []models.Sample {
	// Mixed radii keep some pair separations inside the derived max lag
	// even when every synthetic point hangs off a single survey location.
	offsets := [][2]float64{{2, 0}, {0, 3}, {-5, 0}, {0, -7}, {4, 4}, {-6, -2}}
	out := make([]models.Sample, len(samples), target)
	copy(out, samples)
	for i := 0; len(out) < target && i < len(offsets); i++ {
		base := samples[i%len(samples)]
		out = append(out, models.Sample{
			ID:          fmt.Sprintf("%s-synthetic-%d", base.ID, i),
			X:           base.X + offsets[i][0],
			Y:           base.Y + offsets[i][1],
			Z:           base.Z + 0.1*float64(i+1),
			MaterialTag: base.MaterialTag,
			LayerID:     base.LayerID,
			Description: "synthetic point added for minimum conditioning set",
		})
	}
	return out
}
