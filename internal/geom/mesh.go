package geom

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Pose is a row-major 4x4 homogeneous transform from mesh-local to world
// coordinates.
type Pose [16]float64

// IdentityPose returns the identity transform.
func IdentityPose() Pose {
	return Pose{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// TranslationPose returns a pure translation.
func TranslationPose(t r3.Vec) Pose {
	p := IdentityPose()
	p[3], p[7], p[11] = t.X, t.Y, t.Z
	return p
}

// Apply transforms a local point to world coordinates.
func (T Pose) Apply(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: T[0]*v.X + T[1]*v.Y + T[2]*v.Z + T[3],
		Y: T[4]*v.X + T[5]*v.Y + T[6]*v.Z + T[7],
		Z: T[8]*v.X + T[9]*v.Y + T[10]*v.Z + T[11],
	}
}

// Mul returns T*o, the transform that applies o first and then T.
func (T Pose) Mul(o Pose) Pose {
	var out Pose
	for r := range 4 {
		for c := range 4 {
			var s float64
			for k := range 4 {
				s += T[r*4+k] * o[k*4+c]
			}
			out[r*4+c] = s
		}
	}
	return out
}

// IsZero reports whether the pose was never set.
func (T Pose) IsZero() bool {
	return T == Pose{}
}

// MeshData is one mesh as supplied by a mesh source: local vertices, a
// triangle index list and the pose placing it in the world.
type MeshData struct {
	Name      string
	Vertices  []r3.Vec
	Indices   []int
	Transform Pose
}

// Validate checks the index invariants.
func (m MeshData) Validate() error {
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("mesh %q: index count %d is not a multiple of 3", m.Name, len(m.Indices))
	}
	for i, idx := range m.Indices {
		if idx < 0 || idx >= len(m.Vertices) {
			return fmt.Errorf("mesh %q: index %d at position %d out of range [0,%d)", m.Name, idx, i, len(m.Vertices))
		}
	}
	return nil
}

// WorldVertices returns the vertices transformed by the mesh pose. A zero
// pose is treated as identity.
func (m MeshData) WorldVertices() []r3.Vec {
	out := make([]r3.Vec, len(m.Vertices))
	if m.Transform.IsZero() {
		copy(out, m.Vertices)
		return out
	}
	for i, v := range m.Vertices {
		out[i] = m.Transform.Apply(v)
	}
	return out
}

// TriangleMesh is a world-space triangle mesh. Triangle t is made of the
// vertices at Indices[3t], Indices[3t+1] and Indices[3t+2]. It is read-only
// once built.
type TriangleMesh struct {
	Vertices []r3.Vec
	Indices  []int
}

// Combine merges meshes into a single world-space mesh, rebasing indices.
func Combine(meshes []MeshData) (*TriangleMesh, error) {
	out := &TriangleMesh{}
	for _, m := range meshes {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		base := len(out.Vertices)
		out.Vertices = append(out.Vertices, m.WorldVertices()...)
		for _, idx := range m.Indices {
			out.Indices = append(out.Indices, base+idx)
		}
	}
	return out, nil
}

// TriangleCount returns the number of triangles.
func (m *TriangleMesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// Triangle returns the three vertices of triangle t.
func (m *TriangleMesh) Triangle(t int) (a, b, c r3.Vec) {
	i := 3 * t
	return m.Vertices[m.Indices[i]], m.Vertices[m.Indices[i+1]], m.Vertices[m.Indices[i+2]]
}

// Representative returns the point rays are aimed at for triangle t.
func (m *TriangleMesh) Representative(t int) r3.Vec {
	return m.Vertices[m.Indices[3*t]]
}

// Centroid returns the centroid of triangle t.
func (m *TriangleMesh) Centroid(t int) r3.Vec {
	a, b, c := m.Triangle(t)
	return r3.Scale(1.0/3, r3.Add(r3.Add(a, b), c))
}

// Bounds returns the axis-aligned box of triangle t.
func (m *TriangleMesh) Bounds(t int) AABB {
	a, b, c := m.Triangle(t)
	return NewAABBFromPoints(a, b, c)
}

// AllTriangles returns the ids of every triangle in order.
func (m *TriangleMesh) AllTriangles() []int {
	out := make([]int, m.TriangleCount())
	for i := range out {
		out[i] = i
	}
	return out
}

// TriangleNormal returns the unit normal of abc and its area. Degenerate
// triangles report zero area and a zero normal.
func TriangleNormal(a, b, c r3.Vec) (r3.Vec, float64) {
	cr := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	l := r3.Norm(cr)
	if l < 1e-12 {
		return r3.Vec{}, 0
	}
	return r3.Scale(1/l, cr), l / 2
}
