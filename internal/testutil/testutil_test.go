package testutil

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/roomlight/internal/geom"
)

func TestAssertions(t *testing.T) {
	t.Parallel()

	AssertNoError(t, nil)
	AssertError(t, errors.New("test error"))
	AssertVecNear(t, r3.Vec{X: 1}, r3.Vec{X: 1 + 1e-9}, 1e-6)
}

func TestQuadMesh(t *testing.T) {
	t.Parallel()

	m := QuadMesh("floor", r3.Vec{Y: -1}, r3.Vec{Z: 2}, r3.Vec{X: 3}, 2)
	AssertNoError(t, m.Validate())

	if got := len(m.Vertices); got != 9 {
		t.Errorf("vertices = %d, want 9", got)
	}
	if got := len(m.Indices) / 3; got != 8 {
		t.Errorf("triangles = %d, want 8", got)
	}

	mesh, err := geom.Combine([]geom.MeshData{m})
	AssertNoError(t, err)
	var area float64
	for tri := range mesh.TriangleCount() {
		n, a := geom.TriangleNormal(mesh.Triangle(tri))
		AssertVecNear(t, n, r3.Vec{Y: 1}, 1e-9)
		area += a
	}
	if area < 24-1e-9 || area > 24+1e-9 {
		t.Errorf("area = %v, want 24", area)
	}
}

func TestPlaneBox(t *testing.T) {
	t.Parallel()

	pl, box := PlaneBox(r3.Vec{Y: 2}, r3.Vec{X: 1}, r3.Vec{Z: -1}, 2, 1)
	AssertVecNear(t, pl.Normal, r3.Vec{Y: 1}, 1e-12)
	if box.Area() != 8 {
		t.Errorf("area = %v, want 8", box.Area())
	}
}

func TestBoxRoom(t *testing.T) {
	t.Parallel()

	meshes := BoxRoom(r3.Vec{Y: 0.2}, 4, 2.5, 5, 2)
	if len(meshes) != 6 {
		t.Fatalf("faces = %d, want 6", len(meshes))
	}
	mesh, err := geom.Combine(meshes)
	AssertNoError(t, err)
	if got := mesh.TriangleCount(); got != 48 {
		t.Errorf("triangles = %d, want 48", got)
	}

	var area float64
	for tri := range mesh.TriangleCount() {
		_, a := geom.TriangleNormal(mesh.Triangle(tri))
		area += a
	}
	want := 2 * (4*2.5 + 4*5 + 2.5*5)
	if area < want-1e-9 || area > want+1e-9 {
		t.Errorf("surface area = %v, want %v", area, want)
	}
	AssertVecNear(t, meshes[0].Vertices[4], r3.Vec{Y: -1.05}, 1e-12)
}
