package meshio

import (
	"context"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/roomlight/internal/geom"
)

const (
	DefaultEyeHeight = 1.6
	TableHeight      = 0.75
	tableWidth       = 1.2
	tableDepth       = 0.8
)

// SyntheticRoom is a closed box room seen from a device at EyeHeight above
// the floor in its centre. Faces wind so their normals point into the room.
type SyntheticRoom struct {
	Width, Height, Length float64
	// Divisions splits every face into Divisions x Divisions quads.
	Divisions int
	// EyeHeight defaults to DefaultEyeHeight.
	EyeHeight float64
	// Table adds a 1.2 x 0.8 table top at TableHeight in the room centre.
	Table bool
	// Obstacles are furniture that blocks light but is not part of the
	// scanned mesh.
	Obstacles []geom.AABB
	// Progressive reveals one more face on each read until stopped, the way
	// a live scan fills in.
	Progressive bool

	mu      sync.Mutex
	faces   []geom.MeshData
	reads   int
	started bool
	stopped bool
}

// Validate checks the room dimensions.
func (s *SyntheticRoom) Validate() error {
	if s.Width <= 0 || s.Height <= 0 || s.Length <= 0 {
		return fmt.Errorf("synthetic room %gx%gx%g: dimensions must be positive", s.Width, s.Height, s.Length)
	}
	if s.eyeHeight() >= s.Height {
		return fmt.Errorf("eye height %g must be below the ceiling at %g", s.eyeHeight(), s.Height)
	}
	return nil
}

func (s *SyntheticRoom) eyeHeight() float64 {
	if s.EyeHeight <= 0 {
		return DefaultEyeHeight
	}
	return s.EyeHeight
}

// Meshes builds the room faces: floor, ceiling, the walls at +x, -x, +z and
// -z, then the table top when enabled.
func (s *SyntheticRoom) Meshes() []geom.MeshData {
	div := max(s.Divisions, 1)
	floorY := -s.eyeHeight()
	center := r3.Vec{Y: floorY + s.Height/2}
	x, y, z := r3.Vec{X: s.Width / 2}, r3.Vec{Y: s.Height / 2}, r3.Vec{Z: s.Length / 2}
	at := func(offset r3.Vec) r3.Vec { return r3.Add(center, offset) }
	neg := func(v r3.Vec) r3.Vec { return r3.Scale(-1, v) }

	out := []geom.MeshData{
		quad("floor", at(neg(y)), z, x, div),
		quad("ceiling", at(y), x, z, div),
		quad("wall+x", at(x), z, y, div),
		quad("wall-x", at(neg(x)), y, z, div),
		quad("wall+z", at(z), y, x, div),
		quad("wall-z", at(neg(z)), x, y, div),
	}
	if s.Table {
		top := r3.Vec{Y: floorY + TableHeight}
		out = append(out, quad("table", top, r3.Vec{Z: tableDepth / 2}, r3.Vec{X: tableWidth / 2}, max(div/4, 1)))
	}
	return out
}

// Occluders returns the obstacles as ray blockers.
func (s *SyntheticRoom) Occluders() []geom.AABB {
	return s.Obstacles
}

// Start builds the room.
func (s *SyntheticRoom) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faces = s.Meshes()
	s.started = true
	s.stopped = false
	s.reads = 0
	return nil
}

// Stop freezes the room; later reads return every face.
func (s *SyntheticRoom) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

// MeshFilters returns the faces seen so far.
func (s *SyntheticRoom) MeshFilters(ctx context.Context) ([]geom.MeshData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	if !s.Progressive || s.stopped {
		return s.faces, nil
	}
	s.reads++
	return s.faces[:min(s.reads, len(s.faces))], nil
}

// quad returns a flat rectangle centred on center spanning ±u and ±v as a
// div x div grid of triangle pairs with normal along u×v.
func quad(name string, center, u, v r3.Vec, div int) geom.MeshData {
	m := geom.MeshData{Name: name, Transform: geom.IdentityPose()}
	n := div + 1
	for i := range n {
		for j := range n {
			a := 2*float64(i)/float64(div) - 1
			b := 2*float64(j)/float64(div) - 1
			m.Vertices = append(m.Vertices, r3.Add(center, r3.Add(r3.Scale(a, u), r3.Scale(b, v))))
		}
	}
	at := func(i, j int) int { return i*n + j }
	for i := range div {
		for j := range div {
			p00, p10, p11, p01 := at(i, j), at(i+1, j), at(i+1, j+1), at(i, j+1)
			m.Indices = append(m.Indices, p00, p10, p11, p00, p11, p01)
		}
	}
	return m
}
