package variogram

import (
	"fmt"
	"math"

	"geomodel3d/internal/models"
)

// DefaultBinCount is the number of lag-distance bins used when the caller
// does not specify one.
const DefaultBinCount = 20

// Field selects the scalar attribute of a sample that the spatial
// structure is computed over.
type Field func(models.Sample) float64

// Elevation is the default field: the sample's z coordinate.
func Elevation(s models.Sample) float64 { return s.Z }

// Empirical holds the binned semivariance estimate computed from a sample
// set. LagCenters and Gamma are parallel arrays; bins that received no
// sample pairs are dropped rather than reported as NaN, so downstream
// fitting never sees degenerate bins.
type Empirical struct {
	// LagCenters are the centers of the retained lag-distance bins.
	LagCenters []float64

	// Gamma are the average semivariances per retained bin.
	Gamma []float64

	// PairCounts are the number of sample pairs accumulated per bin.
	PairCounts []int

	// MaxLag is the maximum separation distance considered.
	MaxLag float64

	// PairTotal is the total number of pairs within MaxLag.
	PairTotal int
}

// Analyze computes the empirical semivariance of the chosen scalar field
// over all unordered sample pairs, binned by horizontal separation
// distance.
//
// binCount defaults to DefaultBinCount when zero and must otherwise be at
// least 3. maxLag defaults to one third of the maximum pairwise distance
// when non-positive, widening to the full maximum distance if no pair
// falls within that third. At least models.MinSamples samples are
// required.
//
// Analyze is a pure function over the sample set: it has no side effects
// and identical inputs produce identical output.
func Analyze(samples []models.Sample, field Field, binCount int, maxLag float64) (*Empirical, error) {
	if len(samples) < models.MinSamples {
		return nil, fmt.Errorf("spatial structure analysis over %d samples: %w",
			len(samples), models.ErrInsufficientSamples)
	}
	if binCount == 0 {
		binCount = DefaultBinCount
	}
	if binCount < 3 {
		return nil, fmt.Errorf("bin count must be at least 3, got %d", binCount)
	}
	if field == nil {
		field = Elevation
	}

	maxDist := 0.0
	for i := range samples {
		for j := i + 1; j < len(samples); j++ {
			if d := horizontalDistance(samples[i], samples[j]); d > maxDist {
				maxDist = d
			}
		}
	}
	if maxDist <= 0 {
		return nil, fmt.Errorf("all samples are co-located: %w", models.ErrDuplicateCoordinates)
	}

	// Derive max lag from the point cloud when the caller left it open.
	derived := maxLag <= 0
	if derived {
		maxLag = maxDist / 3
	}

	emp := binPairs(samples, field, binCount, maxLag)
	if len(emp.LagCenters) == 0 && derived && maxDist > maxLag {
		// Sparse well-separated surveys can have every pair beyond a
		// third of the extent; widen to the full extent rather than
		// failing an otherwise valid sample set.
		emp = binPairs(samples, field, binCount, maxDist)
	}
	if len(emp.LagCenters) == 0 {
		return nil, fmt.Errorf("no sample pairs within max lag %g: %w",
			maxLag, models.ErrInsufficientSamples)
	}
	return emp, nil
}

// binPairs accumulates squared attribute differences per lag bin over
// every unordered pair within maxLag, then averages per bin. Bins that
// received no pairs are dropped.
func binPairs(samples []models.Sample, field Field, binCount int, maxLag float64) *Empirical {
	binWidth := maxLag / float64(binCount)
	sums := make([]float64, binCount)
	counts := make([]int, binCount)
	total := 0

	for i := range samples {
		for j := i + 1; j < len(samples); j++ {
			h := horizontalDistance(samples[i], samples[j])
			if h > maxLag {
				continue
			}
			bin := int(h / binWidth)
			if bin >= binCount {
				bin = binCount - 1
			}
			diff := field(samples[i]) - field(samples[j])
			sums[bin] += diff * diff / 2
			counts[bin]++
			total++
		}
	}

	emp := &Empirical{MaxLag: maxLag, PairTotal: total}
	for b := 0; b < binCount; b++ {
		if counts[b] == 0 {
			continue
		}
		emp.LagCenters = append(emp.LagCenters, (float64(b)+0.5)*binWidth)
		emp.Gamma = append(emp.Gamma, sums[b]/float64(counts[b]))
		emp.PairCounts = append(emp.PairCounts, counts[b])
	}
	return emp
}

func horizontalDistance(a, b models.Sample) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Hypot(dx, dy)
}
