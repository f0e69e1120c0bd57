package surface

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/roomlight/internal/budget"
)

// Classification thresholds.
const (
	DefaultUpNormalThreshold = 0.9

	// heightTolerance is how far above the floor anchor (or below the
	// ceiling anchor) a horizontal plane may sit and still count as floor
	// (or ceiling).
	heightTolerance = 0.1

	// wallNormalTolerance bounds |normal.y| for walls.
	wallNormalTolerance = 0.1
)

// Classifier assigns a PlaneType to bounded planes.
type Classifier struct {
	// UpNormalThreshold is the minimum |normal.y| for a plane to count as
	// facing up or down.
	UpNormalThreshold float64
}

// NewClassifier returns a classifier with the given threshold, or the
// default when threshold is not in (0, 1].
func NewClassifier(threshold float64) Classifier {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultUpNormalThreshold
	}
	return Classifier{UpNormalThreshold: threshold}
}

// Classify returns the type of bp given the floor and ceiling anchor heights.
func (c Classifier) Classify(bp BoundedPlane, floorY, ceilingY float64) PlaneType {
	ny := bp.Plane.Normal.Y
	cy := bp.Bounds.Center.Y
	switch {
	case ny >= c.UpNormalThreshold:
		if cy <= floorY+heightTolerance {
			return Floor
		}
		return Table
	case ny <= -c.UpNormalThreshold:
		if cy >= ceilingY-heightTolerance {
			return Ceiling
		}
		return Table
	case math.Abs(ny) <= wallNormalTolerance:
		return Wall
	default:
		return Unknown
	}
}

// Anchors scans planes once and returns the vertical centre of the largest
// downward-lying upward-facing plane (floor) and of the largest
// upward-lying downward-facing plane (ceiling). On an exact area tie the
// first occurrence wins. Missing anchors default to 0.
func (c Classifier) Anchors(planes []BoundedPlane) (floorY, ceilingY float64) {
	var floorArea, ceilingArea float64
	for _, bp := range planes {
		ny := bp.Plane.Normal.Y
		cy := bp.Bounds.Center.Y
		if cy < 0 && ny >= c.UpNormalThreshold && bp.Area > floorArea {
			floorArea = bp.Area
			floorY = cy
		}
		if cy > 0 && ny <= -c.UpNormalThreshold && bp.Area > ceilingArea {
			ceilingArea = bp.Area
			ceilingY = cy
		}
	}
	return floorY, ceilingY
}

// ClassifyAll runs the two-pass classification: locate the anchors, then
// classify every plane against them. b is consulted after each plane so the
// work can be spread across frames; a nil b never yields.
//
// When b returns an error the catalog holds every plane classified before
// the interruption and the error is returned alongside it.
func (c Classifier) ClassifyAll(ctx context.Context, planes []BoundedPlane, b budget.Budget) (*Catalog, error) {
	b = budget.OrUnlimited(b)
	cat := NewCatalog()

	// The anchor pass is a single cheap scan and always completes.
	floorY, ceilingY := c.Anchors(planes)

	counts := make(map[PlaneType]int)
	for _, bp := range planes {
		if err := b.Step(ctx); err != nil {
			return cat, err
		}
		t := c.Classify(bp, floorY, ceilingY)
		counts[t]++
		cat.add(SurfacePlane{
			Type:   t,
			Plane:  bp.Plane,
			Bounds: bp.Bounds,
			Area:   bp.Area,
			Tag:    fmt.Sprintf("%s-%d", strings.ToLower(string(t)), counts[t]),
		})
	}
	return cat, nil
}
