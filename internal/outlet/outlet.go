// Package outlet validates user-placed power outlet points against the
// classified room surfaces and ranks them as fixture candidates.
package outlet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/roomlight/internal/monitoring"
	"github.com/banshee-data/roomlight/internal/surface"
	"github.com/banshee-data/roomlight/internal/visibility"
)

var (
	// ErrNoCandidateMatch is returned when a point lies on no known plane.
	ErrNoCandidateMatch = errors.New("point is not on any detected surface")

	// ErrClosed is returned when adding to a collection that no longer
	// accepts candidates.
	ErrClosed = errors.New("candidate placement is closed")
)

const (
	DefaultSurfaceTolerance = 0.05
	DefaultRequired         = 3
	DefaultSampleStride     = 100

	floorLift   = 1.5
	ceilingDrop = 0.5
	tableLift   = 0.3
	wallInset   = 0.3
)

// Validator maps an outlet point to the plane it sits on and the position a
// lamp plugged into it would occupy.
type Validator struct {
	// Tolerance is how far, in metres, a point may lie outside a plane's box
	// and still count as on it.
	Tolerance float64
	// Center is the horizontal point wall lamps are pulled toward.
	Center r3.Vec
}

// NewValidator returns a validator whose wall offsets lean toward the
// ceiling anchor, or the floor anchor when no ceiling was found.
func NewValidator(floor, ceiling surface.SurfacePlane, tolerance float64) Validator {
	if tolerance <= 0 {
		tolerance = DefaultSurfaceTolerance
	}
	anchor := ceiling
	if anchor.Area <= 0 {
		anchor = floor
	}
	var c r3.Vec
	if !anchor.IsZero() {
		c = anchor.Bounds.Center
	}
	return Validator{Tolerance: tolerance, Center: c}
}

// ValidatorFor builds a Validator from the anchors of cat.
func ValidatorFor(cat *surface.Catalog, tolerance float64) Validator {
	return NewValidator(cat.FloorOrCeiling(surface.Floor), cat.FloorOrCeiling(surface.Ceiling), tolerance)
}

// Validate returns the first plane whose box contains point and the lamp
// position derived from it. It reports false when no plane contains point.
func (v Validator) Validate(point r3.Vec, planes []surface.SurfacePlane) (surface.SurfacePlane, r3.Vec, bool) {
	for _, sp := range planes {
		if sp.IsZero() || !sp.Bounds.Contains(point, v.Tolerance) {
			continue
		}
		return sp, v.lampPosition(sp.Type, point), true
	}
	return surface.SurfacePlane{}, r3.Vec{}, false
}

func (v Validator) lampPosition(t surface.PlaneType, p r3.Vec) r3.Vec {
	switch t {
	case surface.Floor:
		p.Y += floorLift
	case surface.Ceiling:
		p.Y -= ceilingDrop
	case surface.Table:
		p.Y += tableLift
	case surface.Wall:
		p.X += wallInset * sign(v.Center.X-p.X)
		p.Z += wallInset * sign(v.Center.Z-p.Z)
	}
	return p
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}

// Candidate is an accepted outlet with its initial visibility sample.
type Candidate struct {
	ID     string
	Plane  surface.SurfacePlane
	Anchor r3.Vec
	Lamp   r3.Vec
	Sample visibility.Result
	// Range is the sum of the initial sample's hit distances.
	Range float64
}

// Rank returns a copy of cands ordered by Range, largest first. Equal ranges
// keep their insertion order.
func Rank(cands []Candidate) []Candidate {
	out := append([]Candidate(nil), cands...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Range > out[j].Range
	})
	return out
}

// Collection gathers candidates until enough have been placed. It is safe for
// concurrent use.
type Collection struct {
	validator Validator
	planes    []surface.SurfacePlane
	sampler   *visibility.Sampler
	required  int
	log       monitoring.Logger

	mu         sync.Mutex
	candidates []Candidate
	closed     bool
}

// Option configures a Collection.
type Option func(*Collection)

// WithRequired sets how many candidates close placement.
func WithRequired(n int) Option {
	return func(c *Collection) {
		if n > 0 {
			c.required = n
		}
	}
}

// WithSampleStride sets the stride of the initial visibility sample.
func WithSampleStride(n int) Option {
	return func(c *Collection) {
		if n > 0 {
			c.sampler = c.sampler.WithStride(n)
		}
	}
}

// WithSurfaceTolerance sets the containment tolerance.
func WithSurfaceTolerance(tol float64) Option {
	return func(c *Collection) {
		if tol > 0 {
			c.validator.Tolerance = tol
		}
	}
}

// WithSession tags log lines with a session id.
func WithSession(id string) Option {
	return func(c *Collection) { c.log = monitoring.For("outlet", id) }
}

// NewCollection returns a collection validating against the planes of cat
// and sampling with sampler.
func NewCollection(cat *surface.Catalog, sampler *visibility.Sampler, opts ...Option) *Collection {
	c := &Collection{
		validator: ValidatorFor(cat, DefaultSurfaceTolerance),
		planes:    cat.All(),
		sampler:   sampler.WithStride(DefaultSampleStride),
		required:  DefaultRequired,
		log:       monitoring.For("outlet", ""),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Add validates point and, when it sits on a known plane, samples the room
// from the derived lamp position and stores the candidate. A rejected point
// leaves the collection unchanged. Placement closes itself once the required
// number of candidates has been reached.
func (c *Collection) Add(ctx context.Context, point r3.Vec) (Candidate, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return Candidate{}, ErrClosed
	}

	sp, lamp, ok := c.validator.Validate(point, c.planes)
	if !ok {
		c.log.Logf("rejected outlet at (%.2f, %.2f, %.2f)", point.X, point.Y, point.Z)
		return Candidate{}, fmt.Errorf("outlet at (%.2f, %.2f, %.2f): %w", point.X, point.Y, point.Z, ErrNoCandidateMatch)
	}

	res, err := c.sampler.Sample(ctx, lamp, c.sampler.Mesh.AllTriangles(), math.Inf(1), nil)
	if err != nil {
		return Candidate{}, fmt.Errorf("initial sample: %w", err)
	}

	cand := Candidate{
		ID:     uuid.NewString(),
		Plane:  sp,
		Anchor: point,
		Lamp:   lamp,
		Sample: res,
		Range:  res.SumHitDistance,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Candidate{}, ErrClosed
	}
	c.candidates = append(c.candidates, cand)
	if len(c.candidates) >= c.required {
		c.closed = true
	}
	c.log.Logf("accepted outlet %d/%d on %s, range %.2f", len(c.candidates), c.required, sp.Tag, cand.Range)
	return cand, nil
}

// Len returns the number of accepted candidates.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.candidates)
}

// Required returns the number of candidates that closes placement.
func (c *Collection) Required() int {
	return c.required
}

// Full reports whether placement has closed.
func (c *Collection) Full() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close stops accepting candidates and returns them ranked.
func (c *Collection) Close() []Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return Rank(c.candidates)
}

// Ranked returns the candidates accepted so far, ranked.
func (c *Collection) Ranked() []Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Rank(c.candidates)
}
