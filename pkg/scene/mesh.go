// Package scene converts labeled volumetric/surface meshes into a
// renderer-agnostic scene description: flat geometry buffers, per-vertex
// colors from a deterministic material palette, level-of-detail tiers and
// aggregate statistics. The package builds buffers only; file writing and
// rendering belong to external collaborators.
package scene

import (
	"time"

	"geomodel3d/pkg/kriging"
)

// Mesh is the polygon-soup input to the converter. Faces use the
// count-prefixed layout [n, v0..vn-1, n, ...]; triangles pass through and
// larger polygons are fan-split during conversion. Normals and Scalars
// are optional; normals are computed from face geometry when absent.
type Mesh struct {
	// Name labels the entity and drives its material color.
	Name string

	// Vertices are packed x,y,z triplets.
	Vertices []float64

	// Faces is the count-prefixed polygon index stream.
	Faces []int

	// Normals are packed per-vertex normals, or nil to compute them.
	Normals []float64

	// Scalars is an optional per-vertex attribute (one value per vertex).
	Scalars []float64
}

// VertexCount returns the number of vertices in the mesh.
func (m *Mesh) VertexCount() int { return len(m.Vertices) / 3 }

// SurfaceFromField triangulates an interpolated grid into a surface mesh:
// one vertex per grid node at (x, y, value), one quad per grid cell, and
// the estimation variance attached as the per-vertex scalar.
func SurfaceFromField(field *kriging.InterpolatedField, name string) Mesh {
	g := field.Grid
	mesh := Mesh{
		Name:     name,
		Vertices: make([]float64, 0, g.NodeCount()*3),
		Scalars:  make([]float64, 0, g.NodeCount()),
		Faces:    make([]int, 0, (g.NX-1)*(g.NY-1)*5),
	}
	for j := 0; j < g.NY; j++ {
		for i := 0; i < g.NX; i++ {
			mesh.Vertices = append(mesh.Vertices, g.X(i), g.Y(j), field.At(i, j))
			mesh.Scalars = append(mesh.Scalars, field.VarianceAt(i, j))
		}
	}
	for j := 0; j < g.NY-1; j++ {
		for i := 0; i < g.NX-1; i++ {
			v0 := j*g.NX + i
			mesh.Faces = append(mesh.Faces, 4, v0, v0+1, v0+1+g.NX, v0+g.NX)
		}
	}
	return mesh
}

// SceneMesh is the export result: one entity per input mesh plus the LOD
// descriptor and aggregate statistics. It is produced once per successful
// interpolation and replaced wholesale on the next run.
type SceneMesh struct {
	// ID uniquely identifies this export.
	ID string

	// Entities maps entity name to its geometry and material.
	Entities map[string]*Entity

	// LOD describes the detail tiers a renderer selects by camera
	// distance.
	LOD LODDescriptor

	// Stats aggregates counts and timing over the whole conversion.
	Stats Stats
}

// Entity is one labeled mesh in render-ready form.
type Entity struct {
	Name     string
	Geometry Geometry
	Material Material
	Metadata Metadata
}

// Geometry holds the flat buffers a renderer uploads directly.
type Geometry struct {
	// Positions are packed x,y,z triplets.
	Positions []float32

	// Normals are packed per-vertex normals, parallel to Positions.
	Normals []float32

	// Indices are triangulated face indices (three per triangle).
	Indices []uint32

	// Colors are packed per-vertex r,g,b triplets.
	Colors []float32

	// Scalars is the optional per-vertex attribute, empty when absent.
	Scalars []float32
}

// Material is the per-entity display material.
type Material struct {
	Color       [3]float32
	Opacity     float32
	DoubleSided bool
}

// Metadata carries per-entity counts and bounds.
type Metadata struct {
	VertexCount int
	FaceCount   int
	HasNormals  bool
	HasScalars  bool
	Downsampled bool
	BoundsMin   [3]float64
	BoundsMax   [3]float64
}

// LODDescriptor lists detail tiers by viewing distance.
type LODDescriptor struct {
	Enabled bool
	Levels  []LODLevel
}

// LODLevel pairs a camera-distance threshold with a detail tier name.
type LODLevel struct {
	Distance float64
	Detail   string
}

// Stats aggregates conversion-wide counts. SkippedEntities counts inputs
// that produced zero valid vertices; they are omitted from Entities but
// never silently dropped from the statistics.
type Stats struct {
	EntityCount     int
	SkippedEntities int
	TotalVertices   int
	TotalFaces      int
	Duration        time.Duration
}
