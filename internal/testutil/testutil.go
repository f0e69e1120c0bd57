// Package testutil provides shared geometry fixtures and assertions for
// package tests.
package testutil

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/roomlight/internal/geom"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertVecNear fails the test if got and want differ by more than tol on
// any component.
func AssertVecNear(t *testing.T, got, want r3.Vec, tol float64) {
	t.Helper()
	if math.Abs(got.X-want.X) > tol || math.Abs(got.Y-want.Y) > tol || math.Abs(got.Z-want.Z) > tol {
		t.Errorf("vector = %v, want %v (tol %v)", got, want, tol)
	}
}

// QuadMesh returns a flat rectangle centred on center spanning ±u and ±v,
// split into a divisions x divisions grid of triangle pairs. Triangles wind
// so that their normal points along u×v.
func QuadMesh(name string, center, u, v r3.Vec, divisions int) geom.MeshData {
	if divisions < 1 {
		divisions = 1
	}
	m := geom.MeshData{Name: name, Transform: geom.IdentityPose()}
	n := divisions + 1
	for i := range n {
		for j := range n {
			a := 2*float64(i)/float64(divisions) - 1
			b := 2*float64(j)/float64(divisions) - 1
			p := r3.Add(center, r3.Add(r3.Scale(a, u), r3.Scale(b, v)))
			m.Vertices = append(m.Vertices, p)
		}
	}
	at := func(i, j int) int { return i*n + j }
	for i := range divisions {
		for j := range divisions {
			p00, p10, p11, p01 := at(i, j), at(i+1, j), at(i+1, j+1), at(i, j+1)
			m.Indices = append(m.Indices, p00, p10, p11, p00, p11, p01)
		}
	}
	return m
}

// PlaneBox returns the plane and box of a rectangle centred on center with
// the given unit axes and half extents. The normal is xAxis×yAxis.
func PlaneBox(center, xAxis, yAxis r3.Vec, ex, ey float64) (geom.Plane, geom.OBB) {
	n := r3.Cross(xAxis, yAxis)
	return geom.NewPlaneFromPoint(n, center), geom.OBB{
		Center:  center,
		Axes:    [3]r3.Vec{xAxis, yAxis, n},
		Extents: r3.Vec{X: ex, Y: ey},
	}
}

// BoxRoom returns the six faces of a closed w x h x l room centred on
// center, each split into div x div quads: floor, ceiling, then the walls at
// +x, -x, +z and -z.
func BoxRoom(center r3.Vec, w, h, l float64, div int) []geom.MeshData {
	x, y, z := r3.Vec{X: w / 2}, r3.Vec{Y: h / 2}, r3.Vec{Z: l / 2}
	at := func(offset r3.Vec) r3.Vec { return r3.Add(center, offset) }
	neg := func(v r3.Vec) r3.Vec { return r3.Scale(-1, v) }
	return []geom.MeshData{
		QuadMesh("floor", at(neg(y)), z, x, div),
		QuadMesh("ceiling", at(y), x, z, div),
		QuadMesh("wall+x", at(x), z, y, div),
		QuadMesh("wall-x", at(neg(x)), y, z, div),
		QuadMesh("wall+z", at(z), y, x, div),
		QuadMesh("wall-z", at(neg(z)), x, y, div),
	}
}
