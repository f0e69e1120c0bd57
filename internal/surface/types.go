// Package surface turns raw room meshes into bounded, classified planes.
package surface

import (
	"github.com/banshee-data/roomlight/internal/geom"
)

// PlaneType is the semantic role of a detected plane.
type PlaneType string

const (
	Wall    PlaneType = "wall"
	Floor   PlaneType = "floor"
	Ceiling PlaneType = "ceiling"
	Table   PlaneType = "table"
	Unknown PlaneType = "unknown"
)

// AllPlaneTypes lists every plane type in display order.
var AllPlaneTypes = []PlaneType{Floor, Ceiling, Wall, Table, Unknown}

// BoundedPlane is a planar triangle cluster with its fitted box.
// Area is (2*Extents.X)*(2*Extents.Y) of Bounds.
type BoundedPlane struct {
	Plane  geom.Plane
	Bounds geom.OBB
	Area   float64
}

// SurfacePlane is a classified BoundedPlane. The zero value, with Area 0,
// means "not found" and its Plane and Bounds must not be used.
type SurfacePlane struct {
	Type   PlaneType
	Plane  geom.Plane
	Bounds geom.OBB
	Area   float64
	Tag    string
}

// IsZero reports whether sp is the not-found sentinel.
func (sp SurfacePlane) IsZero() bool {
	return sp.Area == 0
}
