// Package planner greedily places lighting units at ranked outlet candidates
// until the room's triangle coverage satisfies the brightness preference.
package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/roomlight/internal/budget"
	"github.com/banshee-data/roomlight/internal/geom"
	"github.com/banshee-data/roomlight/internal/monitoring"
	"github.com/banshee-data/roomlight/internal/outlet"
	"github.com/banshee-data/roomlight/internal/surface"
	"github.com/banshee-data/roomlight/internal/visibility"
)

var (
	// ErrNotDone is returned by operations that need a finished plan.
	ErrNotDone = errors.New("placement is not done")

	// ErrStepInProgress is returned when a step or reconfiguration is
	// requested while another is still running.
	ErrStepInProgress = errors.New("placement step already in progress")

	// ErrUnitIndex is returned for a unit index outside the placed units.
	ErrUnitIndex = errors.New("no lighting unit at index")
)

// State is a planner state.
type State string

const (
	StateIdle             State = "idle"
	StatePlacingFirst     State = "placing_first"
	StatePlacingFollowing State = "placing_following"
	StateDone             State = "done"
)

// LightingUnit is a placed fixture. Submesh holds the triangles it was
// sampled over: the remaining set at the time it was placed.
type LightingUnit struct {
	ID          string
	CandidateID string
	Position    r3.Vec
	PlaneType   surface.PlaneType
	Fixture     FixtureType
	Lux         float64
	Durability  int
	Watt        int
	Hits        int
	MaxRange    float64
	Submesh     []int
}

func (u LightingUnit) clone() LightingUnit {
	u.Submesh = append([]int(nil), u.Submesh...)
	return u
}

// Result is the outcome of a finished plan.
type Result struct {
	Units    []LightingUnit
	Coverage float64
	// History is the coverage after each placed unit.
	History []float64
	// Exhausted is true when every candidate was used before the
	// preference was satisfied.
	Exhausted bool
	// Remaining holds the triangles no unit lights.
	Remaining []int
}

// Covered returns the triangles first lit by unit i: its submesh less the
// triangles left for the units after it.
func (r Result) Covered(i int) []int {
	if i < 0 || i >= len(r.Units) {
		return nil
	}
	rest := r.Remaining
	if i+1 < len(r.Units) {
		rest = r.Units[i+1].Submesh
	}
	left := make(map[int]struct{}, len(rest))
	for _, t := range rest {
		left[t] = struct{}{}
	}
	var out []int
	for _, t := range r.Units[i].Submesh {
		if _, ok := left[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

// Config wires a Planner to its collaborators.
type Config struct {
	Mesh       *geom.TriangleMesh
	Sampler    *visibility.Sampler
	Candidates []outlet.Candidate
	// Volume is the room volume in cubic metres used for the first pick.
	Volume     float64
	Preference Preference
	// Budget slices coverage sampling; nil runs each sample to completion.
	Budget  budget.Budget
	Session string
}

// Planner is the placement state machine for one session. It exclusively
// owns the remaining-triangle set and the unit collection. Step and the
// reconfiguration calls are serialised; the accessors may be called from any
// goroutine.
type Planner struct {
	mesh       *geom.TriangleMesh
	sampler    *visibility.Sampler
	candidates []outlet.Candidate
	volume     float64
	budget     budget.Budget
	log        monitoring.Logger
	pref       atomic.Int32

	stepMu sync.Mutex

	mu        sync.RWMutex
	state     State
	total     int
	remaining []int
	next      int
	units     []LightingUnit
	history   []float64
	exhausted bool
	completed chan Result
}

// New returns an idle planner. Candidates are ranked by range before use.
func New(cfg Config) (*Planner, error) {
	if cfg.Mesh == nil {
		return nil, errors.New("planner needs a mesh")
	}
	sampler := cfg.Sampler
	if sampler == nil {
		sampler = visibility.NewSampler(cfg.Mesh, 1)
	}
	pref := cfg.Preference
	if pref == 0 {
		pref = Medium
	}

	p := &Planner{
		mesh:       cfg.Mesh,
		sampler:    sampler,
		candidates: outlet.Rank(cfg.Candidates),
		volume:     cfg.Volume,
		budget:     budget.OrUnlimited(cfg.Budget),
		log:        monitoring.For("planner", cfg.Session),
		state:      StateIdle,
		completed:  make(chan Result, 1),
	}
	p.pref.Store(int32(pref))
	return p, nil
}

// SetPreference changes the preference. It takes effect at the next step.
func (p *Planner) SetPreference(pref Preference) {
	p.pref.Store(int32(pref))
}

// Preference returns the current preference.
func (p *Planner) Preference() Preference {
	return Preference(p.pref.Load())
}

// State returns the current state.
func (p *Planner) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Coverage returns the percentage of mesh triangles lit so far.
func (p *Planner) Coverage() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.coverageLocked()
}

func (p *Planner) coverageLocked() float64 {
	if p.total == 0 {
		return 0
	}
	return 100 * (1 - float64(len(p.remaining))/float64(p.total))
}

// Remaining returns a copy of the triangles not yet lit.
func (p *Planner) Remaining() []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]int(nil), p.remaining...)
}

// Units returns copies of the placed units.
func (p *Planner) Units() []LightingUnit {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.unitsLocked()
}

func (p *Planner) unitsLocked() []LightingUnit {
	out := make([]LightingUnit, len(p.units))
	for i, u := range p.units {
		out[i] = u.clone()
	}
	return out
}

// Completed delivers the result exactly once, when the planner reaches
// StateDone.
func (p *Planner) Completed() <-chan Result {
	return p.completed
}

// Result returns the final result, or ErrNotDone.
func (p *Planner) Result() (Result, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state != StateDone {
		return Result{}, ErrNotDone
	}
	return p.resultLocked(), nil
}

func (p *Planner) resultLocked() Result {
	return Result{
		Units:     p.unitsLocked(),
		Coverage:  p.coverageLocked(),
		History:   append([]float64(nil), p.history...),
		Exhausted: p.exhausted,
		Remaining: append([]int(nil), p.remaining...),
	}
}

// Step advances the state machine by one transition and returns the new
// state. Placing a unit samples the remaining triangles under the planner's
// budget. If that sample is interrupted the step has no effect and the error
// is returned; the next Step retries the same candidate.
func (p *Planner) Step(ctx context.Context) (State, error) {
	if !p.stepMu.TryLock() {
		return p.State(), ErrStepInProgress
	}
	defer p.stepMu.Unlock()

	if err := ctx.Err(); err != nil {
		return p.State(), err
	}
	pref := p.Preference()

	switch p.State() {
	case StateIdle:
		p.start()
	case StatePlacingFirst:
		if err := p.placeFirst(ctx, pref); err != nil {
			return p.State(), err
		}
	case StatePlacingFollowing:
		if err := p.placeFollowing(ctx, pref); err != nil {
			return p.State(), err
		}
	}
	return p.State(), nil
}

// Run steps until the plan is done.
func (p *Planner) Run(ctx context.Context) (Result, error) {
	for {
		state, err := p.Step(ctx)
		if err != nil {
			return Result{}, err
		}
		if state == StateDone {
			return p.Result()
		}
	}
}

func (p *Planner) start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.remaining = p.mesh.AllTriangles()
	p.total = len(p.remaining)
	p.log.Logf("planning over %d triangles with %d candidates, volume %.1f m3", p.total, len(p.candidates), p.volume)
	if p.total == 0 {
		p.exhausted = true
		p.finishLocked("empty mesh")
		return
	}
	p.state = StatePlacingFirst
}

func (p *Planner) placeFirst(ctx context.Context, pref Preference) error {
	if len(p.candidates) == 0 {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.exhausted = true
		p.finishLocked("no candidates")
		return nil
	}
	return p.place(ctx, FirstPick(pref, p.volume))
}

func (p *Planner) placeFollowing(ctx context.Context, pref Preference) error {
	coverage := p.Coverage()
	if pref.Satisfied(coverage) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.finishLocked(fmt.Sprintf("%.1f%% meets %s", coverage, pref))
		return nil
	}
	if p.next >= len(p.candidates) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.exhausted = true
		p.finishLocked(fmt.Sprintf("candidates exhausted at %.1f%%", coverage))
		return nil
	}
	return p.place(ctx, FollowingPick(pref, coverage))
}

// place lights the remaining triangles from the next candidate. Nothing is
// committed unless the sample completes.
func (p *Planner) place(ctx context.Context, ft FixtureType) error {
	cand := p.candidates[p.next]
	spec := ft.Spec()
	submesh := p.Remaining()

	res, err := p.sampler.Sample(ctx, cand.Lamp, submesh, spec.Lux, p.budget)
	if err != nil {
		return fmt.Errorf("placing unit %d: %w", p.next+1, err)
	}

	unit := LightingUnit{
		ID:          uuid.NewString(),
		CandidateID: cand.ID,
		Position:    cand.Lamp,
		PlaneType:   cand.Plane.Type,
		Fixture:     ft,
		Lux:         spec.Lux,
		Durability:  spec.Durability,
		Watt:        spec.Watt,
		Hits:        res.HitCount,
		MaxRange:    res.MaxHitDistance,
		Submesh:     submesh,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.remaining = res.Remaining
	p.units = append(p.units, unit)
	p.next++
	coverage := p.coverageLocked()
	p.history = append(p.history, coverage)
	p.state = StatePlacingFollowing
	p.log.Logf("unit %d: type %s on %s at (%.2f, %.2f, %.2f), %d hits, coverage %.1f%%",
		len(p.units), ft, cand.Plane.Type, unit.Position.X, unit.Position.Y, unit.Position.Z, unit.Hits, coverage)
	return nil
}

func (p *Planner) finishLocked(reason string) {
	p.state = StateDone
	p.log.Logf("done: %s, %d units", reason, len(p.units))
	p.completed <- p.resultLocked()
}

// Reconfigure changes the fixture of a placed unit and re-samples its
// submesh. It is only allowed once the plan is done and leaves the coverage
// unchanged.
func (p *Planner) Reconfigure(ctx context.Context, index int, ft FixtureType) (LightingUnit, error) {
	if _, err := ParseFixtureType(string(ft)); err != nil {
		return LightingUnit{}, err
	}
	return p.update(ctx, index, func(u *LightingUnit) {
		spec := ft.Spec()
		u.Fixture = ft
		u.Lux, u.Durability, u.Watt = spec.Lux, spec.Durability, spec.Watt
	})
}

// Move relocates a placed unit and re-samples its submesh. It is only
// allowed once the plan is done and leaves the coverage unchanged.
func (p *Planner) Move(ctx context.Context, index int, pos r3.Vec) (LightingUnit, error) {
	return p.update(ctx, index, func(u *LightingUnit) {
		u.Position = pos
	})
}

func (p *Planner) update(ctx context.Context, index int, change func(*LightingUnit)) (LightingUnit, error) {
	if !p.stepMu.TryLock() {
		return LightingUnit{}, ErrStepInProgress
	}
	defer p.stepMu.Unlock()

	p.mu.RLock()
	state, n := p.state, len(p.units)
	var unit LightingUnit
	if index >= 0 && index < n {
		unit = p.units[index].clone()
	}
	p.mu.RUnlock()

	if state != StateDone {
		return LightingUnit{}, ErrNotDone
	}
	if index < 0 || index >= n {
		return LightingUnit{}, fmt.Errorf("%w %d (have %d)", ErrUnitIndex, index, n)
	}

	change(&unit)
	res, err := p.sampler.Sample(ctx, unit.Position, unit.Submesh, unit.Lux, p.budget)
	if err != nil {
		return LightingUnit{}, fmt.Errorf("re-sampling unit %d: %w", index, err)
	}
	unit.Hits = res.HitCount
	unit.MaxRange = res.MaxHitDistance

	p.mu.Lock()
	p.units[index] = unit
	p.mu.Unlock()
	p.log.Logf("unit %d reconfigured: type %s at (%.2f, %.2f, %.2f), %d hits",
		index+1, unit.Fixture, unit.Position.X, unit.Position.Y, unit.Position.Z, unit.Hits)
	return unit.clone(), nil
}
