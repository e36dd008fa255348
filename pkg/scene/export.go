package scene

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// ErrMeshGeneration is returned when no input entity yields renderable
// geometry. The recovery catalog matches on it with errors.Is.
var ErrMeshGeneration = errors.New("mesh generation produced no renderable geometry")

const (
	// DownsampleThreshold is the vertex count above which an entity is
	// stride-downsampled before export.
	DownsampleThreshold = 50000

	// DownsampleTarget is the vertex count a downsampled entity is
	// reduced to (approximately; the stride is integral).
	DownsampleTarget = 25000
)

// Converter turns labeled meshes into a SceneMesh. The zero threshold
// values of a Converter from NewConverter follow the package defaults;
// tests lower them to exercise the downsampling path.
type Converter struct {
	// VertexThreshold and TargetVertices control stride downsampling.
	VertexThreshold int
	TargetVertices  int

	// Opacity applied to every entity material.
	Opacity float32
}

// NewConverter returns a converter with the default downsampling
// thresholds and the conventional 0.8 display opacity.
func NewConverter() *Converter {
	return &Converter{
		VertexThreshold: DownsampleThreshold,
		TargetVertices:  DownsampleTarget,
		Opacity:         0.8,
	}
}

// Convert builds the scene description from the given meshes. Entities
// with zero valid vertices are omitted from the output but counted as
// skipped in the statistics; Convert fails only when nothing at all is
// renderable. Output is deterministic for a fixed input.
func (c *Converter) Convert(meshes []Mesh) (*SceneMesh, error) {
	start := time.Now()
	out := &SceneMesh{
		ID:       uuid.NewString(),
		Entities: make(map[string]*Entity, len(meshes)),
		LOD: LODDescriptor{
			Enabled: true,
			Levels: []LODLevel{
				{Distance: 100, Detail: "high"},
				{Distance: 500, Detail: "medium"},
				{Distance: 1000, Detail: "low"},
			},
		},
	}

	for _, mesh := range meshes {
		entity, err := c.convertEntity(mesh)
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", mesh.Name, err)
		}
		if entity == nil {
			out.Stats.SkippedEntities++
			continue
		}
		out.Entities[mesh.Name] = entity
		out.Stats.EntityCount++
		out.Stats.TotalVertices += entity.Metadata.VertexCount
		out.Stats.TotalFaces += entity.Metadata.FaceCount
	}
	out.Stats.Duration = time.Since(start)

	if out.Stats.EntityCount == 0 {
		return nil, fmt.Errorf("%d of %d entities skipped: %w",
			out.Stats.SkippedEntities, len(meshes), ErrMeshGeneration)
	}
	return out, nil
}

// convertEntity builds one entity's buffers. A nil, nil return means the
// mesh had no valid vertices and should be counted as skipped.
func (c *Converter) convertEntity(mesh Mesh) (*Entity, error) {
	if len(mesh.Vertices)%3 != 0 {
		return nil, fmt.Errorf("vertex buffer length %d is not a multiple of 3", len(mesh.Vertices))
	}
	nv := mesh.VertexCount()
	if nv == 0 || !hasFiniteVertex(mesh.Vertices) {
		return nil, nil
	}

	indices, err := triangulate(mesh.Faces, nv)
	if err != nil {
		return nil, err
	}

	vertices := mesh.Vertices
	normals := mesh.Normals
	scalars := mesh.Scalars
	if len(normals) != len(vertices) {
		normals = computeNormals(vertices, indices)
	}

	downsampled := false
	threshold := c.VertexThreshold
	if threshold <= 0 {
		threshold = DownsampleThreshold
	}
	if nv > threshold {
		target := c.TargetVertices
		if target <= 0 {
			target = DownsampleTarget
		}
		vertices, normals, scalars, indices = downsample(vertices, normals, scalars, indices, target)
		nv = len(vertices) / 3
		downsampled = true
	}

	color := ColorForName(mesh.Name)
	entity := &Entity{
		Name: mesh.Name,
		Geometry: Geometry{
			Positions: toFloat32(vertices),
			Normals:   toFloat32(normals),
			Indices:   indices,
			Colors:    tileColor(color, nv),
		},
		Material: Material{
			Color:       color,
			Opacity:     c.Opacity,
			DoubleSided: true,
		},
		Metadata: Metadata{
			VertexCount: nv,
			FaceCount:   len(indices) / 3,
			HasNormals:  true,
			HasScalars:  len(scalars) == nv,
			Downsampled: downsampled,
		},
	}
	if len(scalars) == nv {
		entity.Geometry.Scalars = toFloat32(scalars)
	}
	entity.Metadata.BoundsMin, entity.Metadata.BoundsMax = bounds(vertices)
	return entity, nil
}

// triangulate expands a count-prefixed polygon stream into triangle
// indices. Quads and larger polygons are fan-split from their first
// vertex.
func triangulate(faces []int, vertexCount int) ([]uint32, error) {
	indices := make([]uint32, 0, len(faces))
	for i := 0; i < len(faces); {
		n := faces[i]
		if n < 3 || i+1+n > len(faces) {
			return nil, fmt.Errorf("malformed face stream at offset %d (count %d)", i, n)
		}
		poly := faces[i+1 : i+1+n]
		for _, v := range poly {
			if v < 0 || v >= vertexCount {
				return nil, fmt.Errorf("face index %d out of range [0,%d)", v, vertexCount)
			}
		}
		for k := 1; k < n-1; k++ {
			indices = append(indices, uint32(poly[0]), uint32(poly[k]), uint32(poly[k+1]))
		}
		i += n + 1
	}
	return indices, nil
}

// computeNormals derives per-vertex normals by accumulating area-weighted
// face normals and normalizing.
func computeNormals(vertices []float64, indices []uint32) []float64 {
	normals := make([]float64, len(vertices))
	for t := 0; t+2 < len(indices); t += 3 {
		a, b, c := int(indices[t])*3, int(indices[t+1])*3, int(indices[t+2])*3
		ux, uy, uz := vertices[b]-vertices[a], vertices[b+1]-vertices[a+1], vertices[b+2]-vertices[a+2]
		vx, vy, vz := vertices[c]-vertices[a], vertices[c+1]-vertices[a+1], vertices[c+2]-vertices[a+2]
		nx := uy*vz - uz*vy
		ny := uz*vx - ux*vz
		nz := ux*vy - uy*vx
		for _, base := range []int{a, b, c} {
			normals[base] += nx
			normals[base+1] += ny
			normals[base+2] += nz
		}
	}
	for i := 0; i < len(normals); i += 3 {
		mag := math.Sqrt(normals[i]*normals[i] + normals[i+1]*normals[i+1] + normals[i+2]*normals[i+2])
		if mag > 0 {
			normals[i] /= mag
			normals[i+1] /= mag
			normals[i+2] /= mag
		} else {
			normals[i+2] = 1 // isolated vertex: point up
		}
	}
	return normals
}

// downsample keeps every stride-th vertex and rebuilds the index buffer
// over the retained set, dropping triangles that lost a vertex. The
// stride is derived from the target count, so the result is deterministic
// for a fixed input and threshold.
func downsample(vertices, normals, scalars []float64, indices []uint32, target int) ([]float64, []float64, []float64, []uint32) {
	nv := len(vertices) / 3
	stride := nv / target
	if stride < 2 {
		stride = 2
	}

	remap := make([]int32, nv)
	for i := range remap {
		remap[i] = -1
	}
	var outVerts, outNorms, outScalars []float64
	kept := 0
	for i := 0; i < nv; i += stride {
		remap[i] = int32(kept)
		outVerts = append(outVerts, vertices[i*3], vertices[i*3+1], vertices[i*3+2])
		outNorms = append(outNorms, normals[i*3], normals[i*3+1], normals[i*3+2])
		if len(scalars) == nv {
			outScalars = append(outScalars, scalars[i])
		}
		kept++
	}

	var outIndices []uint32
	for t := 0; t+2 < len(indices); t += 3 {
		a, b, c := remap[indices[t]], remap[indices[t+1]], remap[indices[t+2]]
		if a < 0 || b < 0 || c < 0 {
			continue
		}
		outIndices = append(outIndices, uint32(a), uint32(b), uint32(c))
	}
	return outVerts, outNorms, outScalars, outIndices
}

func hasFiniteVertex(vertices []float64) bool {
	for i := 0; i+2 < len(vertices); i += 3 {
		if isFinite(vertices[i]) && isFinite(vertices[i+1]) && isFinite(vertices[i+2]) {
			return true
		}
	}
	return false
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func bounds(vertices []float64) (min, max [3]float64) {
	for k := 0; k < 3; k++ {
		min[k] = math.Inf(1)
		max[k] = math.Inf(-1)
	}
	for i := 0; i+2 < len(vertices); i += 3 {
		for k := 0; k < 3; k++ {
			v := vertices[i+k]
			if v < min[k] {
				min[k] = v
			}
			if v > max[k] {
				max[k] = v
			}
		}
	}
	return min, max
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

func tileColor(color [3]float32, count int) []float32 {
	out := make([]float32, 0, count*3)
	for i := 0; i < count; i++ {
		out = append(out, color[0], color[1], color[2])
	}
	return out
}
