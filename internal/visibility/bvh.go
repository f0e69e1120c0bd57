// Package visibility answers "can a fixture at this point see that surface"
// for room meshes and partitions triangle sets into covered and remaining.
package visibility

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/roomlight/internal/geom"
)

const (
	// leafThreshold is the largest triangle count stored in a leaf.
	leafThreshold = 8

	// triangleEpsilon rejects rays parallel to a triangle.
	triangleEpsilon = 1e-8

	// barycentricSlack lets rays aimed exactly at a shared vertex or edge
	// still register against the triangles meeting there.
	barycentricSlack = 1e-9

	// minHitDistance ignores intersections at the ray origin.
	minHitDistance = 1e-6
)

// Hit is the first surface struck by a ray.
type Hit struct {
	Distance float64
	// Triangle is the mesh triangle id, or -1 for non-mesh occluders.
	Triangle int
	// Target is true when the struck surface belongs to the scanned mesh
	// rather than another object in the scene.
	Target bool
}

// Raycaster reports the closest hit along origin + t*dir for t in
// (0, maxDist]. dir must be unit length.
type Raycaster interface {
	Raycast(origin, dir r3.Vec, maxDist float64) (Hit, bool)
}

type bvhNode struct {
	bounds      geom.AABB
	left, right *bvhNode
	triangles   []int // leaf only
}

// MeshBVH is a bounding volume hierarchy over the triangles of a mesh. It is
// immutable once built and safe for concurrent queries.
type MeshBVH struct {
	mesh *geom.TriangleMesh
	root *bvhNode
}

// NewMeshBVH builds a hierarchy over every triangle of mesh.
func NewMeshBVH(mesh *geom.TriangleMesh) *MeshBVH {
	ids := mesh.AllTriangles()
	b := &MeshBVH{mesh: mesh}
	if len(ids) > 0 {
		b.root = b.build(ids)
	}
	return b
}

// Mesh returns the mesh the hierarchy was built over.
func (b *MeshBVH) Mesh() *geom.TriangleMesh {
	return b.mesh
}

// build splits at the midpoint of the longest centroid axis, falling back to
// a median split when the midpoint leaves one side empty.
func (b *MeshBVH) build(ids []int) *bvhNode {
	bounds := b.mesh.Bounds(ids[0])
	centroids := geom.NewAABBFromPoints(b.mesh.Centroid(ids[0]))
	for _, t := range ids[1:] {
		bounds = bounds.Union(b.mesh.Bounds(t))
		centroids = centroids.Extend(b.mesh.Centroid(t))
	}

	if len(ids) <= leafThreshold {
		return &bvhNode{bounds: bounds, triangles: ids}
	}

	axis := centroids.LongestAxis()
	split := component(centroids.Center(), axis)

	var left, right []int
	for _, t := range ids {
		if component(b.mesh.Centroid(t), axis) < split {
			left = append(left, t)
		} else {
			right = append(right, t)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		sorted := append([]int(nil), ids...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return component(b.mesh.Centroid(sorted[i]), axis) < component(b.mesh.Centroid(sorted[j]), axis)
		})
		mid := len(sorted) / 2
		left, right = sorted[:mid], sorted[mid:]
	}

	return &bvhNode{
		bounds: bounds,
		left:   b.build(left),
		right:  b.build(right),
	}
}

func component(v r3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// Raycast returns the closest mesh triangle hit. All hits are targets.
func (b *MeshBVH) Raycast(origin, dir r3.Vec, maxDist float64) (Hit, bool) {
	if b.root == nil {
		return Hit{}, false
	}
	best := Hit{Distance: maxDist, Triangle: -1, Target: true}
	found := b.hitNode(b.root, origin, dir, &best)
	return best, found
}

func (b *MeshBVH) hitNode(node *bvhNode, origin, dir r3.Vec, best *Hit) bool {
	if _, ok := node.bounds.Intersect(origin, dir, minHitDistance, best.Distance); !ok {
		return false
	}

	if node.triangles != nil {
		hit := false
		for _, t := range node.triangles {
			v0, v1, v2 := b.mesh.Triangle(t)
			if d, ok := intersectTriangle(origin, dir, v0, v1, v2); ok && d >= minHitDistance && d < best.Distance {
				best.Distance = d
				best.Triangle = t
				hit = true
			}
		}
		return hit
	}

	hitLeft := b.hitNode(node.left, origin, dir, best)
	hitRight := b.hitNode(node.right, origin, dir, best)
	return hitLeft || hitRight
}

// intersectTriangle is the Möller–Trumbore test. Both faces count.
func intersectTriangle(origin, dir, v0, v1, v2 r3.Vec) (float64, bool) {
	edge1 := r3.Sub(v1, v0)
	edge2 := r3.Sub(v2, v0)

	h := r3.Cross(dir, edge2)
	a := r3.Dot(edge1, h)
	if a > -triangleEpsilon && a < triangleEpsilon {
		return 0, false
	}

	f := 1 / a
	s := r3.Sub(origin, v0)
	u := f * r3.Dot(s, h)
	if u < -barycentricSlack || u > 1+barycentricSlack {
		return 0, false
	}

	q := r3.Cross(s, edge1)
	v := f * r3.Dot(dir, q)
	if v < -barycentricSlack || u+v > 1+barycentricSlack {
		return 0, false
	}

	t := f * r3.Dot(edge2, q)
	if t <= 0 || math.IsNaN(t) {
		return 0, false
	}
	return t, true
}

// Scene combines the scanned mesh with other objects, such as furniture the
// scan is not meant to light, that block rays without being targets.
type Scene struct {
	Mesh      *MeshBVH
	Occluders []geom.AABB
}

// Raycast returns the closest hit across the mesh and the occluders.
func (s Scene) Raycast(origin, dir r3.Vec, maxDist float64) (Hit, bool) {
	best, found := Hit{Distance: maxDist, Triangle: -1}, false
	if s.Mesh != nil {
		if h, ok := s.Mesh.Raycast(origin, dir, maxDist); ok {
			best, found = h, true
		}
	}
	for _, o := range s.Occluders {
		if d, ok := o.Intersect(origin, dir, minHitDistance, best.Distance); ok && (!found || d < best.Distance) {
			best, found = Hit{Distance: d, Triangle: -1, Target: false}, true
		}
	}
	return best, found
}
