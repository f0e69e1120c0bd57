package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min r3.Vec
	Max r3.Vec
}

// NewAABBFromPoints returns the box bounding all points.
func NewAABBFromPoints(points ...r3.Vec) AABB {
	if len(points) == 0 {
		return AABB{}
	}
	b := AABB{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		b = b.Extend(p)
	}
	return b
}

// Extend grows the box to include p.
func (b AABB) Extend(p r3.Vec) AABB {
	return AABB{
		Min: r3.Vec{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)},
		Max: r3.Vec{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)},
	}
}

// Union returns the box bounding both boxes.
func (b AABB) Union(o AABB) AABB {
	return b.Extend(o.Min).Extend(o.Max)
}

// Center returns the centre of the box.
func (b AABB) Center() r3.Vec {
	return r3.Scale(0.5, r3.Add(b.Min, b.Max))
}

// LongestAxis returns 0, 1 or 2 for X, Y or Z.
func (b AABB) LongestAxis() int {
	s := r3.Sub(b.Max, b.Min)
	switch {
	case s.X >= s.Y && s.X >= s.Z:
		return 0
	case s.Y >= s.Z:
		return 1
	default:
		return 2
	}
}

// Overlaps reports whether the boxes intersect once both are grown by pad.
func (b AABB) Overlaps(o AABB, pad float64) bool {
	return b.Min.X-pad <= o.Max.X && o.Min.X-pad <= b.Max.X &&
		b.Min.Y-pad <= o.Max.Y && o.Min.Y-pad <= b.Max.Y &&
		b.Min.Z-pad <= o.Max.Z && o.Min.Z-pad <= b.Max.Z
}

// Intersect runs the slab test for the ray origin + t*dir and returns the
// entry distance when the ray enters the box within [tMin, tMax].
func (b AABB) Intersect(origin, dir r3.Vec, tMin, tMax float64) (float64, bool) {
	o := [3]float64{origin.X, origin.Y, origin.Z}
	d := [3]float64{dir.X, dir.Y, dir.Z}
	lo := [3]float64{b.Min.X, b.Min.Y, b.Min.Z}
	hi := [3]float64{b.Max.X, b.Max.Y, b.Max.Z}

	for axis := range 3 {
		if math.Abs(d[axis]) < 1e-12 {
			if o[axis] < lo[axis] || o[axis] > hi[axis] {
				return 0, false
			}
			continue
		}
		inv := 1 / d[axis]
		t1 := (lo[axis] - o[axis]) * inv
		t2 := (hi[axis] - o[axis]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = math.Max(tMin, t1)
		tMax = math.Min(tMax, t2)
		if tMin > tMax {
			return 0, false
		}
	}
	return tMin, true
}
