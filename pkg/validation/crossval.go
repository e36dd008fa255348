// Package validation scores interpolation quality by leave-one-out
// cross-validation and assembles the uncertainty report consumed by the
// reporting collaborator.
package validation

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"geomodel3d/internal/models"
	"geomodel3d/pkg/kriging"
	"geomodel3d/pkg/variogram"
)

// CrossValidation holds the per-point re-estimation results and the
// aggregate quality scores derived from them.
type CrossValidation struct {
	// Predictions[i] is the value re-estimated at sample i from all other
	// samples; TrueValues[i] is the observed value and Errors[i] their
	// difference (predicted - true).
	Predictions []float64
	TrueValues  []float64
	Errors      []float64

	// MeanError is the bias; MAE and RMSE the absolute and quadratic
	// scores; R2 the explained variance (1 - var(errors)/var(values)).
	MeanError float64
	MAE       float64
	RMSE      float64
	R2        float64
}

// LeaveOneOut re-predicts every sample from all the others using the
// given variogram model and kriging variant. The context is checked
// between folds. At least models.MinSamples + 1 samples are required so
// every fold keeps a solvable conditioning set.
func LeaveOneOut(ctx context.Context, samples []models.Sample, model variogram.Model, variant kriging.Variant) (*CrossValidation, error) {
	if len(samples) < models.MinSamples+1 {
		return nil, fmt.Errorf("leave-one-out over %d samples: %w",
			len(samples), models.ErrInsufficientSamples)
	}

	cv := &CrossValidation{
		Predictions: make([]float64, len(samples)),
		TrueValues:  make([]float64, len(samples)),
		Errors:      make([]float64, len(samples)),
	}

	fold := make([]models.Sample, 0, len(samples)-1)
	for i, held := range samples {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("cross-validation aborted at fold %d/%d: %w", i, len(samples), err)
		}
		fold = fold[:0]
		fold = append(fold, samples[:i]...)
		fold = append(fold, samples[i+1:]...)

		engine, err := kriging.NewEngine(fold, model, variant)
		if err != nil {
			return nil, fmt.Errorf("cross-validation fold %d: %w", i, err)
		}
		predicted, _, err := engine.EstimateAt(held.X, held.Y)
		if err != nil {
			return nil, fmt.Errorf("cross-validation fold %d: %w", i, err)
		}
		cv.Predictions[i] = predicted
		cv.TrueValues[i] = held.Z
		cv.Errors[i] = predicted - held.Z
	}

	cv.MeanError = stat.Mean(cv.Errors, nil)
	sumSq, sumAbs := 0.0, 0.0
	for _, e := range cv.Errors {
		sumSq += e * e
		sumAbs += math.Abs(e)
	}
	cv.MAE = sumAbs / float64(len(cv.Errors))
	cv.RMSE = math.Sqrt(sumSq / float64(len(cv.Errors)))
	if v := stat.Variance(cv.TrueValues, nil); v > 0 {
		cv.R2 = 1 - stat.Variance(cv.Errors, nil)/v
	}
	return cv, nil
}

// UncertaintyReport is the output contract to the uncertainty-reporting
// collaborator: cross-validation scores alongside the fitted variogram
// parameters, ready for JSON-style serialization by the caller.
type UncertaintyReport struct {
	CrossValidation *CrossValidation
	VariogramModel  VariogramSummary
	Quality         QualitySummary
}

// VariogramSummary is the fitted model restated for display.
type VariogramSummary struct {
	Kind   string
	Range  float64
	Sill   float64
	Nugget float64
}

// QualitySummary condenses the cross-validation scores.
type QualitySummary struct {
	MeanError float64
	RMSE      float64
	R2        float64
}

// BuildReport assembles the uncertainty report from cross-validation
// results and the model they were computed with.
func BuildReport(cv *CrossValidation, model variogram.Model) *UncertaintyReport {
	return &UncertaintyReport{
		CrossValidation: cv,
		VariogramModel: VariogramSummary{
			Kind:   model.Kind.String(),
			Range:  model.Range,
			Sill:   model.Sill,
			Nugget: model.Nugget,
		},
		Quality: QualitySummary{
			MeanError: cv.MeanError,
			RMSE:      cv.RMSE,
			R2:        cv.R2,
		},
	}
}
