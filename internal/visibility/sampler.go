package visibility

import (
	"context"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/roomlight/internal/budget"
	"github.com/banshee-data/roomlight/internal/geom"
)

// DefaultReachEpsilon is how far short of its aim point a ray may stop and
// still count as reaching it.
const DefaultReachEpsilon = 1e-3

// Result partitions a triangle subset by what one origin can light.
// Covered and Remaining preserve the order of the input subset and together
// hold every input triangle exactly once.
type Result struct {
	Covered   []int
	Remaining []int
	// MaxHitDistance and SumHitDistance aggregate the first mesh hit of
	// every cast ray, covered or not.
	MaxHitDistance float64
	SumHitDistance float64
	// HitCount is the number of triangle vertices lit: three per covered
	// triangle.
	HitCount int
	// Sampled is the number of rays cast.
	Sampled int
}

// Sampler casts one ray per sampled triangle toward its representative
// vertex.
type Sampler struct {
	Caster Raycaster
	Mesh   *geom.TriangleMesh
	// Stride samples every Stride-th triangle of a subset; the rest stay
	// remaining. Values below 1 sample every triangle.
	Stride int
	// Epsilon is the reach tolerance; zero means DefaultReachEpsilon.
	Epsilon float64
}

// NewSampler returns a sampler over a BVH of mesh with the given stride.
func NewSampler(mesh *geom.TriangleMesh, stride int) *Sampler {
	return &Sampler{Caster: NewMeshBVH(mesh), Mesh: mesh, Stride: stride}
}

// WithStride returns a copy of s using a different stride over the same
// caster.
func (s *Sampler) WithStride(stride int) *Sampler {
	c := *s
	c.Stride = stride
	return &c
}

// Sample partitions subset into triangles lit from origin within rangeLimit
// and the rest. A triangle is covered when the ray toward its representative
// vertex is not blocked by a non-target surface and first strikes either the
// triangle itself or mesh geometry at or beyond the vertex, and the vertex is
// no further than rangeLimit. Pass math.Inf(1) for an unlimited range.
//
// b is consulted after each cast. If it returns an error, every triangle not
// yet examined is placed in Remaining and the partial result is returned with
// the error.
func (s *Sampler) Sample(ctx context.Context, origin r3.Vec, subset []int, rangeLimit float64, b budget.Budget) (Result, error) {
	b = budget.OrUnlimited(b)
	stride := s.Stride
	if stride < 1 {
		stride = 1
	}
	eps := s.Epsilon
	if eps <= 0 {
		eps = DefaultReachEpsilon
	}

	res := Result{
		Covered:   make([]int, 0, len(subset)/stride+1),
		Remaining: make([]int, 0, len(subset)),
	}
	for i, t := range subset {
		if i%stride != 0 {
			res.Remaining = append(res.Remaining, t)
			continue
		}
		if err := b.Step(ctx); err != nil {
			res.Remaining = append(res.Remaining, subset[i:]...)
			res.HitCount = 3 * len(res.Covered)
			return res, err
		}

		res.Sampled++
		if s.reaches(origin, t, rangeLimit, eps, &res) {
			res.Covered = append(res.Covered, t)
		} else {
			res.Remaining = append(res.Remaining, t)
		}
	}
	res.HitCount = 3 * len(res.Covered)
	return res, nil
}

func (s *Sampler) reaches(origin r3.Vec, t int, rangeLimit, eps float64, res *Result) bool {
	aim := s.Mesh.Representative(t)
	toAim := r3.Sub(aim, origin)
	dist := r3.Norm(toAim)
	if dist < eps {
		return dist <= rangeLimit
	}

	hit, ok := s.Caster.Raycast(origin, r3.Scale(1/dist, toAim), dist+eps)
	if !ok {
		return dist <= rangeLimit
	}
	if !hit.Target {
		return false
	}
	res.SumHitDistance += hit.Distance
	res.MaxHitDistance = math.Max(res.MaxHitDistance, hit.Distance)

	reached := hit.Triangle == t || hit.Distance >= dist-eps
	return reached && dist <= rangeLimit
}
