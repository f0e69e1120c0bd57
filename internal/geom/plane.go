// Package geom holds the geometric primitives shared by the room pipeline:
// planes, oriented and axis-aligned boxes, and triangle meshes.
//
// The coordinate frame is Y-up, matching the host spatial mesh provider.
package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Up is the world vertical axis.
var Up = r3.Vec{Y: 1}

// Plane is a plane in Hessian normal form: Normal·p + Distance = 0.
// Normal is always unit length for planes built by NewPlane or NewPlaneFromPoint.
type Plane struct {
	Normal   r3.Vec
	Distance float64
}

// NewPlane normalises n and returns the plane with the given offset.
// A zero normal yields the zero Plane.
func NewPlane(n r3.Vec, distance float64) Plane {
	l := r3.Norm(n)
	if l == 0 {
		return Plane{}
	}
	return Plane{Normal: r3.Scale(1/l, n), Distance: distance / l}
}

// NewPlaneFromPoint returns the plane with normal n passing through p.
func NewPlaneFromPoint(n, p r3.Vec) Plane {
	u := r3.Unit(n)
	return Plane{Normal: u, Distance: -r3.Dot(u, p)}
}

// DistanceToPoint returns the signed distance from the plane to p.
// Positive values lie on the side the normal points to.
func (pl Plane) DistanceToPoint(p r3.Vec) float64 {
	return r3.Dot(pl.Normal, p) + pl.Distance
}

// ClosestPoint projects p onto the plane.
func (pl Plane) ClosestPoint(p r3.Vec) r3.Vec {
	return r3.Sub(p, r3.Scale(pl.DistanceToPoint(p), pl.Normal))
}

// AngleTo returns the unsigned angle in degrees between the two normals.
func (pl Plane) AngleTo(other Plane) float64 {
	return AngleDegrees(pl.Normal, other.Normal)
}

// AngleDegrees returns the angle between a and b in degrees.
func AngleDegrees(a, b r3.Vec) float64 {
	c := r3.Cos(a, b)
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return math.Acos(c) * 180 / math.Pi
}

// IsZero reports whether the plane carries no orientation.
func (pl Plane) IsZero() bool {
	return pl.Normal == (r3.Vec{}) && pl.Distance == 0
}
