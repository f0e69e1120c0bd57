// Package volume estimates room dimensions from classified planes.
package volume

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/roomlight/internal/surface"
)

// ErrDataInsufficient is returned when the planes on hand do not support any
// of the estimation cases.
var ErrDataInsufficient = errors.New("not enough planes to estimate room volume")

// parallelCrossLimit is the largest |n0 × n| for two walls to be treated as
// parallel.
const parallelCrossLimit = 0.5

// Case names which planes an estimate was built from.
type Case string

const (
	CaseFloorCeilingWalls Case = "floor+ceiling+walls"
	CaseFloorCeiling      Case = "floor+ceiling"
	CaseFloorWalls        Case = "floor+walls"
	CaseCeilingWalls      Case = "ceiling+walls"
	CaseWallsOnly         Case = "walls"
)

// Dimensions is a room estimate in metres and cubic metres.
type Dimensions struct {
	Height float64
	Width  float64
	Length float64
	Volume float64
	Case   Case
}

// SelectCase returns the estimation case for the given plane availability.
func SelectCase(hasFloor, hasCeiling bool, walls int) (Case, bool) {
	switch {
	case hasFloor && hasCeiling && walls >= 1:
		return CaseFloorCeilingWalls, true
	case hasFloor && hasCeiling && walls == 0:
		return CaseFloorCeiling, true
	case hasFloor && !hasCeiling && walls > 0:
		return CaseFloorWalls, true
	case !hasFloor && hasCeiling && walls > 0:
		return CaseCeilingWalls, true
	case !hasFloor && !hasCeiling && walls > 1:
		return CaseWallsOnly, true
	default:
		return "", false
	}
}

// Calculate estimates the room from its floor and ceiling anchors (either
// may be the zero sentinel) and its walls.
func Calculate(floor, ceiling surface.SurfacePlane, walls []surface.SurfacePlane) (Dimensions, error) {
	c, ok := SelectCase(!floor.IsZero(), !ceiling.IsZero(), len(walls))
	if !ok {
		return Dimensions{}, fmt.Errorf("floor=%t ceiling=%t walls=%d: %w",
			!floor.IsZero(), !ceiling.IsZero(), len(walls), ErrDataInsufficient)
	}

	var widths, lengths [3]float64 // floor, ceiling, walls
	var height float64
	switch c {
	case CaseFloorCeilingWalls:
		height = math.Max(WallHeight(walls), FloorCeilingDistance(floor, ceiling))
		widths[0], lengths[0] = PlaneSize(floor)
		widths[1], lengths[1] = PlaneSize(ceiling)
		widths[2], lengths[2] = WallSize(walls)
	case CaseFloorCeiling:
		height = FloorCeilingDistance(floor, ceiling)
		widths[0], lengths[0] = PlaneSize(floor)
		widths[1], lengths[1] = PlaneSize(ceiling)
	case CaseFloorWalls:
		height = WallHeight(walls)
		widths[0], lengths[0] = PlaneSize(floor)
		widths[2], lengths[2] = WallSize(walls)
	case CaseCeilingWalls:
		height = WallHeight(walls)
		widths[1], lengths[1] = PlaneSize(ceiling)
		widths[2], lengths[2] = WallSize(walls)
	case CaseWallsOnly:
		height = WallHeight(walls)
		widths[2], lengths[2] = WallSize(walls)
	}

	w, l := widths[:], lengths[:]
	if c != CaseWallsOnly {
		w = RejectOutliers(w)
		l = RejectOutliers(l)
	}

	d := Dimensions{
		Height: height,
		Width:  MeanNonZero(w),
		Length: MeanNonZero(l),
		Case:   c,
	}
	if d.Height <= 0 || d.Width <= 0 || d.Length <= 0 {
		return Dimensions{}, fmt.Errorf("%s gave %.3f x %.3f x %.3f: %w", c, d.Width, d.Length, d.Height, ErrDataInsufficient)
	}
	d.Volume = d.Height * d.Width * d.Length
	return d, nil
}

// CalculateCatalog runs Calculate on the anchors and walls of cat.
func CalculateCatalog(cat *surface.Catalog) (Dimensions, error) {
	return Calculate(
		cat.FloorOrCeiling(surface.Floor),
		cat.FloorOrCeiling(surface.Ceiling),
		cat.ByType(surface.Wall),
	)
}

// WallHeight returns the tallest wall box height.
func WallHeight(walls []surface.SurfacePlane) float64 {
	var h float64
	for _, w := range walls {
		h = math.Max(h, 2*w.Bounds.Extents.X)
	}
	return h
}

// FloorCeilingDistance is the perpendicular distance from the floor plane to
// the ceiling's height measured above the floor centre.
func FloorCeilingDistance(floor, ceiling surface.SurfacePlane) float64 {
	p := r3.Vec{X: floor.Bounds.Center.X, Y: ceiling.Bounds.Center.Y, Z: floor.Bounds.Center.Z}
	return math.Abs(floor.Plane.DistanceToPoint(p))
}

// PlaneSize returns the width and length of a horizontal plane: twice its
// smaller and larger horizontal extents.
func PlaneSize(sp surface.SurfacePlane) (width, length float64) {
	major, minor := sp.Bounds.HorizontalExtents()
	return 2 * minor, 2 * major
}

// WallSize splits walls into those parallel to the first wall and the rest,
// measures the horizontal span of each group and returns the smaller span as
// width and the larger as length.
func WallSize(walls []surface.SurfacePlane) (width, length float64) {
	if len(walls) == 0 {
		return 0, 0
	}
	n0 := walls[0].Plane.Normal
	var parallel, orthogonal []surface.SurfacePlane
	for _, w := range walls {
		if r3.Norm(r3.Cross(n0, w.Plane.Normal)) < parallelCrossLimit {
			parallel = append(parallel, w)
		} else {
			orthogonal = append(orthogonal, w)
		}
	}
	a, b := groupSpan(parallel), groupSpan(orthogonal)
	return math.Min(a, b), math.Max(a, b)
}

// groupSpan measures how far a group of similarly oriented walls extends
// along the first wall's horizontal axis.
func groupSpan(group []surface.SurfacePlane) float64 {
	switch len(group) {
	case 0:
		return 0
	case 1:
		return 2 * group[0].Bounds.Extents.Y
	}
	axis := group[0].Bounds.Axes[1]
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, w := range group {
		for _, c := range w.Bounds.Corners() {
			p := r3.Dot(c, axis)
			lo = math.Min(lo, p)
			hi = math.Max(hi, p)
		}
	}
	return hi - lo
}

// RejectOutliers zeroes candidates that disagree with most of the others.
// Two values disagree when the larger is more than double the smaller. A
// non-zero candidate is dropped when a strict majority of the other non-zero
// candidates disagree with it. If that would drop every candidate, the
// smaller side of each disagreement is dropped instead. Zero entries mean
// "no estimate" and are left alone.
func RejectOutliers(vals []float64) []float64 {
	out := append([]float64(nil), vals...)

	var live []int
	for i, v := range vals {
		if v > 0 {
			live = append(live, i)
		}
	}
	if len(live) < 2 {
		return out
	}

	kept := 0
	for _, i := range live {
		disagree := 0
		for _, j := range live {
			if i != j && disagrees(vals[i], vals[j]) {
				disagree++
			}
		}
		if 2*disagree > len(live)-1 {
			out[i] = 0
		} else {
			kept++
		}
	}
	if kept > 0 {
		return out
	}

	copy(out, vals)
	for _, i := range live {
		for _, j := range live {
			if vals[i] < vals[j]/2 {
				out[i] = 0
				break
			}
		}
	}
	return out
}

func disagrees(a, b float64) bool {
	return math.Max(a, b) > 2*math.Min(a, b)
}

// MeanNonZero averages the non-zero entries of vals, or returns 0.
func MeanNonZero(vals []float64) float64 {
	var sum float64
	var n int
	for _, v := range vals {
		if v != 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Calculator keeps the most recent successful estimate. A failed update
// leaves it unchanged.
type Calculator struct {
	last  Dimensions
	valid bool
}

// Update recalculates from the given planes. On failure it returns the
// previous estimate together with the error.
func (c *Calculator) Update(floor, ceiling surface.SurfacePlane, walls []surface.SurfacePlane) (Dimensions, error) {
	d, err := Calculate(floor, ceiling, walls)
	if err != nil {
		return c.last, err
	}
	c.last, c.valid = d, true
	return d, nil
}

// Last returns the most recent successful estimate and whether one exists.
func (c *Calculator) Last() (Dimensions, bool) {
	return c.last, c.valid
}
