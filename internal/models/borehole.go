// Package models holds the value types shared by the reconstruction
// pipeline: borehole samples and per-material property tables. All types
// are plain data with no behaviour beyond validation, so pipeline stages
// can pass them between goroutines without coordination.
package models

import (
	"errors"
	"math"

	"github.com/google/uuid"
)

// Sentinel errors for data validation failures. The recovery catalog
// matches on these with errors.Is, so wrap rather than replace them.
var (
	// ErrInsufficientSamples is returned when fewer than MinSamples
	// usable samples are available for interpolation.
	ErrInsufficientSamples = errors.New("insufficient sample points: at least 3 required")

	// ErrDuplicateCoordinates is returned when two samples share the same
	// horizontal position but have not been merged.
	ErrDuplicateCoordinates = errors.New("duplicate sample coordinates")

	// ErrInvalidCoordinates is returned when a sample carries NaN or
	// infinite coordinate values.
	ErrInvalidCoordinates = errors.New("invalid sample coordinates (NaN or Inf)")
)

// MinSamples is the smallest sample count for which spatial structure
// analysis and Kriging are defined.
const MinSamples = 3

// Sample is a single borehole observation: a real-world position, an
// elevation, and an optional material classification. Samples are
// immutable after creation; the recovery layer produces new slices when
// it merges duplicates rather than editing records in place.
type Sample struct {
	// ID uniquely identifies the sample. Empty IDs are replaced with a
	// generated UUID during normalization.
	ID string

	// X, Y are horizontal world coordinates; Z is the elevation (or other
	// scalar being modeled) at that position.
	X, Y, Z float64

	// MaterialTag is an optional soil/material classification label.
	MaterialTag string

	// LayerID links the sample to a MaterialLayer. Zero means unassigned.
	LayerID int

	// Description is free-text carried through from the source log.
	Description string
}

// ValidCoordinates reports whether all three coordinates are finite.
func (s Sample) ValidCoordinates() bool {
	for _, v := range []float64{s.X, s.Y, s.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// MaterialLayer holds the physical properties of one soil/material layer.
// Layers are loaded once per modeling session and read-only during
// interpolation.
type MaterialLayer struct {
	LayerID int
	Name    string

	// Physical properties. Permeability is zero when not measured.
	Density       float64
	Cohesion      float64
	FrictionAngle float64
	Permeability  float64
}

// Properties returns the layer's physical properties as a name → value
// mapping, the shape expected by the uncertainty-reporting collaborator.
func (l MaterialLayer) Properties() map[string]float64 {
	return map[string]float64{
		"density":        l.Density,
		"cohesion":       l.Cohesion,
		"friction_angle": l.FrictionAngle,
		"permeability":   l.Permeability,
	}
}

// NormalizeSamples returns a copy of samples with empty IDs replaced by
// generated UUIDs. The input slice is not modified.
func NormalizeSamples(samples []Sample) []Sample {
	out := make([]Sample, len(samples))
	copy(out, samples)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
	}
	return out
}

// LayerTable builds a LayerID-keyed lookup from a layer sequence. Later
// entries with a repeated ID win, matching load-last-wins session
// semantics.
func LayerTable(layers []MaterialLayer) map[int]MaterialLayer {
	table := make(map[int]MaterialLayer, len(layers))
	for _, l := range layers {
		table[l.LayerID] = l
	}
	return table
}
