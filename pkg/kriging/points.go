package kriging

import (
	"gonum.org/v1/gonum/spatial/kdtree"
)

// samplePoint is a conditioning point in the horizontal plane carrying its
// index into the engine's sample arrays. It satisfies kdtree.Comparable so
// the engine can run nearest-neighbor queries when limiting the number of
// conditioning points per solve.
type samplePoint struct {
	x, y float64
	idx  int
}

// Compare implements the kdtree.Comparable interface
func (p samplePoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(samplePoint)
	switch d {
	case 0:
		return p.x - q.x
	case 1:
		return p.y - q.y
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p samplePoint) Dims() int { return 2 }

// Distance returns the squared Euclidean distance between two points
func (p samplePoint) Distance(c kdtree.Comparable) float64 {
	q := c.(samplePoint)
	dx := p.x - q.x
	dy := p.y - q.y
	return dx*dx + dy*dy
}

// samplePoints is a collection of samplePoint that satisfies kdtree.Interface
type samplePoints []samplePoint

func (p samplePoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p samplePoints) Len() int                              { return len(p) }
func (p samplePoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p samplePoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(pointPlane{samplePoints: p, Dim: d},
		kdtree.MedianOfRandoms(pointPlane{samplePoints: p, Dim: d}, 100))
}

// pointPlane implements sort.Interface and kdtree.SortSlicer for samplePoints
type pointPlane struct {
	samplePoints
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.samplePoints[i].x < p.samplePoints[j].x
	case 1:
		return p.samplePoints[i].y < p.samplePoints[j].y
	default:
		panic("illegal dimension")
	}
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{samplePoints: p.samplePoints[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.samplePoints[i], p.samplePoints[j] = p.samplePoints[j], p.samplePoints[i]
}
