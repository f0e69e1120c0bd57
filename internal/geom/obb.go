package geom

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// obbCovarianceEpsilon is the threshold below which in-plane covariance is
// treated as isotropic and the fit falls back to the reference axis.
const obbCovarianceEpsilon = 1e-9

// verticalNormalTolerance bounds |normal.y| for a plane to be treated as
// vertical when fitting its box.
const verticalNormalTolerance = 0.1

// OBB is an oriented bounding box.
//
// Axes are orthonormal and right handed. For boxes fitted to planes Axes[2]
// is the plane normal, and for vertical planes Axes[0] is the in-plane up
// direction so that 2*Extents.X is the height of a wall. Extents are half
// sizes along each axis and are never negative.
type OBB struct {
	Center  r3.Vec
	Axes    [3]r3.Vec
	Extents r3.Vec
}

// Area returns the face area spanned by the first two axes.
func (b OBB) Area() float64 {
	return (2 * b.Extents.X) * (2 * b.Extents.Y)
}

// Extent returns the half size along axis i.
func (b OBB) Extent(i int) float64 {
	switch i {
	case 0:
		return b.Extents.X
	case 1:
		return b.Extents.Y
	default:
		return b.Extents.Z
	}
}

// Local expresses p in the box frame relative to its centre.
func (b OBB) Local(p r3.Vec) r3.Vec {
	d := r3.Sub(p, b.Center)
	return r3.Vec{X: r3.Dot(d, b.Axes[0]), Y: r3.Dot(d, b.Axes[1]), Z: r3.Dot(d, b.Axes[2])}
}

// Contains reports whether p lies inside the box grown by pad on every axis.
func (b OBB) Contains(p r3.Vec, pad float64) bool {
	l := b.Local(p)
	return math.Abs(l.X) <= b.Extents.X+pad &&
		math.Abs(l.Y) <= b.Extents.Y+pad &&
		math.Abs(l.Z) <= b.Extents.Z+pad
}

// Corners returns the eight corners of the box.
func (b OBB) Corners() [8]r3.Vec {
	var out [8]r3.Vec
	i := 0
	for _, sx := range []float64{-1, 1} {
		for _, sy := range []float64{-1, 1} {
			for _, sz := range []float64{-1, 1} {
				p := b.Center
				p = r3.Add(p, r3.Scale(sx*b.Extents.X, b.Axes[0]))
				p = r3.Add(p, r3.Scale(sy*b.Extents.Y, b.Axes[1]))
				p = r3.Add(p, r3.Scale(sz*b.Extents.Z, b.Axes[2]))
				out[i] = p
				i++
			}
		}
	}
	return out
}

// HorizontalExtents returns the two extents whose axes are closest to
// horizontal, larger first.
func (b OBB) HorizontalExtents() (major, minor float64) {
	type axisExtent struct {
		vertical float64
		extent   float64
	}
	a := [3]axisExtent{
		{math.Abs(b.Axes[0].Y), b.Extents.X},
		{math.Abs(b.Axes[1].Y), b.Extents.Y},
		{math.Abs(b.Axes[2].Y), b.Extents.Z},
	}
	// Drop the most vertical axis.
	drop := 0
	for i := 1; i < 3; i++ {
		if a[i].vertical > a[drop].vertical {
			drop = i
		}
	}
	var keep []float64
	for i := range a {
		if i != drop {
			keep = append(keep, a[i].extent)
		}
	}
	if keep[0] >= keep[1] {
		return keep[0], keep[1]
	}
	return keep[1], keep[0]
}

// FitPlaneOBB fits a box to points that lie on a plane with the given normal.
//
// Algorithm:
//  1. Pick the in-plane reference frame: up-aligned for vertical planes,
//     principal axis of the in-plane covariance otherwise
//  2. Project points onto the frame to find extents
//  3. Centre the box on the midpoint of the projected extents
//
// The returned box has Axes[2] equal to the unit normal.
func FitPlaneOBB(points []r3.Vec, normal r3.Vec) OBB {
	if len(points) == 0 {
		return OBB{}
	}
	n := r3.Unit(normal)

	var mean r3.Vec
	for _, p := range points {
		mean = r3.Add(mean, p)
	}
	mean = r3.Scale(1/float64(len(points)), mean)

	var xAxis r3.Vec
	if math.Abs(n.Y) <= verticalNormalTolerance {
		xAxis = r3.Unit(r3.Sub(Up, r3.Scale(r3.Dot(Up, n), n)))
	} else {
		xAxis = principalInPlaneAxis(points, mean, n)
	}
	yAxis := r3.Cross(n, xAxis)

	minP := r3.Vec{X: math.MaxFloat64, Y: math.MaxFloat64, Z: math.MaxFloat64}
	maxP := r3.Vec{X: -math.MaxFloat64, Y: -math.MaxFloat64, Z: -math.MaxFloat64}
	for _, p := range points {
		d := r3.Sub(p, mean)
		l := r3.Vec{X: r3.Dot(d, xAxis), Y: r3.Dot(d, yAxis), Z: r3.Dot(d, n)}
		minP.X, maxP.X = math.Min(minP.X, l.X), math.Max(maxP.X, l.X)
		minP.Y, maxP.Y = math.Min(minP.Y, l.Y), math.Max(maxP.Y, l.Y)
		minP.Z, maxP.Z = math.Min(minP.Z, l.Z), math.Max(maxP.Z, l.Z)
	}
	mid := r3.Scale(0.5, r3.Add(minP, maxP))
	center := mean
	center = r3.Add(center, r3.Scale(mid.X, xAxis))
	center = r3.Add(center, r3.Scale(mid.Y, yAxis))
	center = r3.Add(center, r3.Scale(mid.Z, n))

	return OBB{
		Center: center,
		Axes:   [3]r3.Vec{xAxis, yAxis, n},
		Extents: r3.Vec{
			X: (maxP.X - minP.X) / 2,
			Y: (maxP.Y - minP.Y) / 2,
			Z: (maxP.Z - minP.Z) / 2,
		},
	}
}

// principalInPlaneAxis runs PCA on the points projected into the plane and
// returns the direction of largest variance.
func principalInPlaneAxis(points []r3.Vec, mean, n r3.Vec) r3.Vec {
	u, v := planeBasis(n)

	var c00, c01, c11 float64
	for _, p := range points {
		d := r3.Sub(p, mean)
		du, dv := r3.Dot(d, u), r3.Dot(d, v)
		c00 += du * du
		c01 += du * dv
		c11 += dv * dv
	}
	nf := float64(len(points))
	c00 /= nf
	c01 /= nf
	c11 /= nf

	if math.Abs(c01) <= obbCovarianceEpsilon && math.Abs(c00-c11) <= obbCovarianceEpsilon {
		return u
	}

	var es mat.EigenSym
	if !es.Factorize(mat.NewSymDense(2, []float64{c00, c01, c01, c11}), true) {
		return u
	}
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	// Eigenvalues are ascending, so the principal axis is the last column.
	a, b := vecs.At(0, 1), vecs.At(1, 1)
	axis := r3.Add(r3.Scale(a, u), r3.Scale(b, v))
	if r3.Norm(axis) <= obbCovarianceEpsilon {
		return u
	}
	return r3.Unit(axis)
}

// planeBasis returns two unit vectors spanning the plane with normal n.
func planeBasis(n r3.Vec) (u, v r3.Vec) {
	ref := r3.Vec{X: 1}
	if math.Abs(n.X) > 0.9 {
		ref = r3.Vec{Z: 1}
	}
	u = r3.Unit(r3.Sub(ref, r3.Scale(r3.Dot(ref, n), n)))
	v = r3.Cross(n, u)
	return u, v
}
