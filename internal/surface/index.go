package surface

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// planeIndex buckets planes by (normal, offset) so that merge candidates can
// be found without comparing every pair. Cells are 4D: the three normal
// components and the plane offset.
type planeIndex struct {
	normalCell float64
	offsetCell float64
	grid       map[int64][]int
}

func newPlaneIndex(normalCell, offsetCell float64) *planeIndex {
	return &planeIndex{
		normalCell: normalCell,
		offsetCell: offsetCell,
		grid:       make(map[int64][]int),
	}
}

func (pi *planeIndex) cell(n r3.Vec, d float64) [4]int64 {
	return [4]int64{
		int64(math.Floor(n.X / pi.normalCell)),
		int64(math.Floor(n.Y / pi.normalCell)),
		int64(math.Floor(n.Z / pi.normalCell)),
		int64(math.Floor(d / pi.offsetCell)),
	}
}

// cellID combines the four cell coordinates with a polynomial rolling hash.
func cellID(c [4]int64) int64 {
	const prime = 31
	h := c[0]
	h = h*prime + c[1]
	h = h*prime + c[2]
	h = h*prime + c[3]
	return h
}

func (pi *planeIndex) insert(id int, n r3.Vec, d float64) {
	key := cellID(pi.cell(n, d))
	pi.grid[key] = append(pi.grid[key], id)
}

// query returns ids from the 3x3x3x3 neighbourhood of (n, d). Hash
// collisions can add unrelated ids, so callers must validate each one.
func (pi *planeIndex) query(n r3.Vec, d float64) []int {
	c := pi.cell(n, d)
	seen := make(map[int]struct{})
	var out []int
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for dz := int64(-1); dz <= 1; dz++ {
				for dd := int64(-1); dd <= 1; dd++ {
					key := cellID([4]int64{c[0] + dx, c[1] + dy, c[2] + dz, c[3] + dd})
					for _, id := range pi.grid[key] {
						if _, ok := seen[id]; ok {
							continue
						}
						seen[id] = struct{}{}
						out = append(out, id)
					}
				}
			}
		}
	}
	return out
}
