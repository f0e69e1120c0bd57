package surface

// Catalog holds the classified planes of one session. It is written once by
// the classifier and read-only afterwards; queries return copies.
type Catalog struct {
	planes []SurfacePlane
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// NewCatalogFrom returns a catalog holding a copy of planes.
func NewCatalogFrom(planes []SurfacePlane) *Catalog {
	return &Catalog{planes: append([]SurfacePlane(nil), planes...)}
}

func (c *Catalog) add(sp SurfacePlane) {
	c.planes = append(c.planes, sp)
}

// Len returns the number of planes.
func (c *Catalog) Len() int {
	return len(c.planes)
}

// All returns every plane in classification order.
func (c *Catalog) All() []SurfacePlane {
	return append([]SurfacePlane(nil), c.planes...)
}

// ByType returns the planes of type t in classification order.
func (c *Catalog) ByType(t PlaneType) []SurfacePlane {
	var out []SurfacePlane
	for _, sp := range c.planes {
		if sp.Type == t {
			out = append(out, sp)
		}
	}
	return out
}

// FloorOrCeiling returns the anchor plane of type t: the zero sentinel when
// there is none, the sole match when there is one, otherwise the largest by
// area with the first occurrence winning a tie.
func (c *Catalog) FloorOrCeiling(t PlaneType) SurfacePlane {
	matches := c.ByType(t)
	switch len(matches) {
	case 0:
		return SurfacePlane{}
	case 1:
		return matches[0]
	}
	best := matches[0]
	for _, sp := range matches[1:] {
		if sp.Area > best.Area {
			best = sp
		}
	}
	return best
}

// Counts returns the number of planes per type.
func (c *Catalog) Counts() map[PlaneType]int {
	out := make(map[PlaneType]int, len(AllPlaneTypes))
	for _, sp := range c.planes {
		out[sp.Type]++
	}
	return out
}
