package planner

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/roomlight/internal/geom"
	"github.com/banshee-data/roomlight/internal/monitoring"
	"github.com/banshee-data/roomlight/internal/outlet"
	"github.com/banshee-data/roomlight/internal/surface"
	"github.com/banshee-data/roomlight/internal/testutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func TestParsePreference(t *testing.T) {
	tests := []struct {
		in   string
		want Preference
		ok   bool
	}{
		{"low", Low, true},
		{"Medium", Medium, true},
		{" HIGH ", High, true},
		{"", Medium, true},
		{"dazzling", 0, false},
	}
	for _, tt := range tests {
		got, err := ParsePreference(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParsePreference(%q) = %v, %v; want %v, ok=%v", tt.in, got, err, tt.want, tt.ok)
		}
	}
	if High.String() != "high" || Preference(7).String() != "Preference(7)" {
		t.Errorf("unexpected String output %q, %q", High.String(), Preference(7).String())
	}
}

func TestFixtureSpecs(t *testing.T) {
	assert.Equal(t, FixtureSpec{Lux: 4, Durability: 3, Watt: 100}, TypeA.Spec())
	assert.Equal(t, FixtureSpec{Lux: 3, Durability: 4, Watt: 70}, TypeB.Spec())
	assert.Equal(t, FixtureSpec{Lux: 1, Durability: 6, Watt: 10}, TypeC.Spec())

	assert.InDelta(t, 100/(math.Pi*16), TypeA.Spec().EnergyPerArea(), 1e-12)
	assert.InDelta(t, 10/math.Pi, TypeC.Spec().EnergyPerArea(), 1e-12)
	assert.Zero(t, FixtureType("Z").Spec().EnergyPerArea())

	ft, err := ParseFixtureType("type b")
	require.NoError(t, err)
	assert.Equal(t, TypeB, ft)
	_, err = ParseFixtureType("D")
	assert.Error(t, err)
}

func TestFirstPick(t *testing.T) {
	tests := []struct {
		pref   Preference
		volume float64
		want   FixtureType
	}{
		{High, 75, TypeA},
		{High, 60, TypeB},
		{Medium, 70.1, TypeA},
		{Medium, 70, TypeB},
		{Medium, 35.1, TypeB},
		{Medium, 35, TypeC},
		{Low, 121, TypeA},
		{Low, 120, TypeB},
		{Low, 66, TypeB},
		{Low, 65, TypeC},
	}
	for _, tt := range tests {
		if got := FirstPick(tt.pref, tt.volume); got != tt.want {
			t.Errorf("FirstPick(%v, %v) = %v, want %v", tt.pref, tt.volume, got, tt.want)
		}
	}
}

func TestFollowingPick(t *testing.T) {
	tests := []struct {
		pref     Preference
		coverage float64
		want     FixtureType
	}{
		{High, 49.9, TypeA},
		{High, 50, TypeB},
		{Medium, 38, TypeA},
		{Medium, 40, TypeB},
		{Low, 4, TypeA},
		{Low, 5, TypeB},
		{Low, 14.9, TypeB},
		{Low, 15, TypeC},
	}
	for _, tt := range tests {
		if got := FollowingPick(tt.pref, tt.coverage); got != tt.want {
			t.Errorf("FollowingPick(%v, %v) = %v, want %v", tt.pref, tt.coverage, got, tt.want)
		}
	}

	assert.True(t, Medium.Satisfied(55))
	assert.True(t, Medium.Satisfied(50))
	assert.False(t, High.Satisfied(79.9))
}

func room(t *testing.T, w, h, l float64, div int) *geom.TriangleMesh {
	t.Helper()
	mesh, err := geom.Combine(testutil.BoxRoom(r3.Vec{}, w, h, l, div))
	require.NoError(t, err)
	return mesh
}

func candidate(id string, lamp r3.Vec, rng float64) outlet.Candidate {
	return outlet.Candidate{
		ID:    id,
		Plane: surface.SurfacePlane{Type: surface.Wall},
		Lamp:  lamp,
		Range: rng,
	}
}

func TestFirstPlacementUsesVolumeAndBestCandidate(t *testing.T) {
	p, err := New(Config{
		Mesh:       room(t, 4, 2.5, 5, 4),
		Volume:     75,
		Preference: High,
		Candidates: []outlet.Candidate{
			candidate("near", r3.Vec{X: 1, Z: 1}, 5),
			candidate("best", r3.Vec{Y: 0.5}, 9),
		},
	})
	require.NoError(t, err)
	ctx := context.Background()

	state, err := p.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatePlacingFirst, state)
	assert.Empty(t, p.Units())

	state, err = p.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatePlacingFollowing, state)

	units := p.Units()
	require.Len(t, units, 1)
	assert.Equal(t, "best", units[0].CandidateID)
	assert.Equal(t, TypeA, units[0].Fixture)
	assert.Equal(t, 4.0, units[0].Lux)
	assert.Equal(t, surface.Wall, units[0].PlaneType)
	assert.NotEmpty(t, units[0].ID)
	assert.Len(t, units[0].Submesh, 192)
	assert.Greater(t, units[0].Hits, 0)
	assert.Greater(t, units[0].MaxRange, 0.0)
}

func TestSatisfiedPreferenceFinishes(t *testing.T) {
	p, err := New(Config{
		Mesh:       room(t, 4, 2.5, 5, 4),
		Volume:     50,
		Preference: Medium,
		Candidates: []outlet.Candidate{
			candidate("a", r3.Vec{}, 3),
			candidate("b", r3.Vec{X: 1}, 2),
		},
	})
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Units, 1, "one centred type B unit lights most of a small room")
	assert.Equal(t, TypeB, res.Units[0].Fixture)
	assert.GreaterOrEqual(t, res.Coverage, 50.0)
	assert.False(t, res.Exhausted)
	assert.Equal(t, StateDone, p.State())
}

func TestExhaustedCandidatesFinishBestEffort(t *testing.T) {
	p, err := New(Config{
		Mesh:       room(t, 20, 3, 20, 6),
		Volume:     1200,
		Preference: High,
		Candidates: []outlet.Candidate{candidate("only", r3.Vec{}, 1)},
	})
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Exhausted)
	require.Len(t, res.Units, 1)
	assert.Equal(t, TypeA, res.Units[0].Fixture)
	assert.Less(t, res.Coverage, 80.0)
	assert.Greater(t, res.Coverage, 0.0)
	assert.Equal(t, []float64{res.Coverage}, res.History)
}

func TestNoCandidates(t *testing.T) {
	p, err := New(Config{Mesh: room(t, 4, 2.5, 5, 1)})
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Exhausted)
	assert.Empty(t, res.Units)
	assert.Zero(t, res.Coverage)
}

func TestEmptyMesh(t *testing.T) {
	p, err := New(Config{Mesh: &geom.TriangleMesh{}, Candidates: []outlet.Candidate{candidate("a", r3.Vec{}, 1)}})
	require.NoError(t, err)

	state, err := p.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, state)
}

func TestNewRequiresMesh(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

// spreadCandidates returns lamps along the long axis of a 20 m room.
func spreadCandidates() []outlet.Candidate {
	var out []outlet.Candidate
	for i, z := range []float64{-8, -4, 0, 4, 8} {
		out = append(out, candidate(string(rune('a'+i)), r3.Vec{Y: 1, Z: z}, float64(10-i)))
	}
	return out
}

func TestCoverageIsMonotonicAndPartitioned(t *testing.T) {
	mesh := room(t, 6, 3, 20, 8)
	p, err := New(Config{
		Mesh:       mesh,
		Volume:     360,
		Preference: High,
		Candidates: spreadCandidates(),
	})
	require.NoError(t, err)

	ctx := context.Background()
	prev := p.Coverage()
	prevRemaining := math.MaxInt
	for p.State() != StateDone {
		_, err := p.Step(ctx)
		require.NoError(t, err)

		c := p.Coverage()
		assert.GreaterOrEqual(t, c, prev)
		prev = c

		if rem := len(p.Remaining()); p.State() != StateIdle {
			assert.LessOrEqual(t, rem, prevRemaining)
			prevRemaining = rem
		}
	}

	res, err := p.Result()
	require.NoError(t, err)
	require.Len(t, res.History, len(res.Units))
	for i := 1; i < len(res.History); i++ {
		assert.GreaterOrEqual(t, res.History[i], res.History[i-1])
	}

	// Every triangle is either lit by exactly one unit or still remaining.
	lit := 0
	for _, u := range res.Units {
		lit += u.Hits / 3
	}
	assert.Equal(t, mesh.TriangleCount(), lit+len(p.Remaining()))
	assert.Equal(t, p.Remaining(), res.Remaining)

	seen := make(map[int]bool)
	for i, u := range res.Units {
		covered := res.Covered(i)
		assert.Len(t, covered, u.Hits/3)
		for _, tri := range covered {
			assert.False(t, seen[tri], "triangle %d lit twice", tri)
			seen[tri] = true
		}
	}
	assert.Nil(t, res.Covered(len(res.Units)))

	// Later units only see what earlier ones left.
	for i := 1; i < len(res.Units); i++ {
		assert.Less(t, len(res.Units[i].Submesh), len(res.Units[i-1].Submesh)+1)
	}
}

func TestCompletedSendsOnce(t *testing.T) {
	p, err := New(Config{
		Mesh:       room(t, 4, 2.5, 5, 2),
		Volume:     50,
		Candidates: []outlet.Candidate{candidate("a", r3.Vec{}, 1)},
	})
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	select {
	case got := <-p.Completed():
		assert.Equal(t, res, got)
	default:
		t.Fatal("no completion delivered")
	}

	state, err := p.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, state)
	select {
	case <-p.Completed():
		t.Fatal("completion delivered twice")
	default:
	}
}

func TestSetPreferenceAppliesAtNextStep(t *testing.T) {
	p, err := New(Config{
		Mesh:       room(t, 4, 2.5, 5, 2),
		Volume:     50,
		Preference: High,
		Candidates: []outlet.Candidate{candidate("a", r3.Vec{}, 1)},
	})
	require.NoError(t, err)

	_, err = p.Step(context.Background())
	require.NoError(t, err)
	p.SetPreference(Low)
	assert.Equal(t, Low, p.Preference())

	_, err = p.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TypeC, p.Units()[0].Fixture)
}

type toggleBudget struct {
	mu   sync.Mutex
	fail error
}

func (b *toggleBudget) set(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = err
}

func (b *toggleBudget) Step(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	return ctx.Err()
}

func TestInterruptedPlacementCommitsNothing(t *testing.T) {
	errFrame := errors.New("frame over")
	b := &toggleBudget{fail: errFrame}
	p, err := New(Config{
		Mesh:       room(t, 4, 2.5, 5, 2),
		Volume:     50,
		Candidates: []outlet.Candidate{candidate("a", r3.Vec{}, 1)},
		Budget:     b,
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = p.Step(ctx)
	require.NoError(t, err)

	state, err := p.Step(ctx)
	assert.ErrorIs(t, err, errFrame)
	assert.Equal(t, StatePlacingFirst, state)
	assert.Empty(t, p.Units())
	assert.Zero(t, p.Coverage())

	b.set(nil)
	state, err = p.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatePlacingFollowing, state)
	assert.Len(t, p.Units(), 1)
}

type gateBudget struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gateBudget) Step(ctx context.Context) error {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return ctx.Err()
}

func TestConcurrentStepRejected(t *testing.T) {
	g := &gateBudget{entered: make(chan struct{}), release: make(chan struct{})}
	p, err := New(Config{
		Mesh:       room(t, 4, 2.5, 5, 2),
		Volume:     50,
		Candidates: []outlet.Candidate{candidate("a", r3.Vec{}, 1)},
		Budget:     g,
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = p.Step(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := p.Step(ctx)
		done <- err
	}()
	<-g.entered

	_, err = p.Step(ctx)
	assert.ErrorIs(t, err, ErrStepInProgress)
	_, err = p.Move(ctx, 0, r3.Vec{})
	assert.ErrorIs(t, err, ErrStepInProgress)
	assert.Equal(t, StatePlacingFirst, p.State())

	close(g.release)
	require.NoError(t, <-done)
	assert.Len(t, p.Units(), 1)
}

func TestReconfigureAndMove(t *testing.T) {
	p, err := New(Config{
		Mesh:       room(t, 4, 2.5, 5, 4),
		Volume:     50,
		Preference: Medium,
		Candidates: []outlet.Candidate{candidate("a", r3.Vec{}, 1)},
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = p.Reconfigure(ctx, 0, TypeC)
	assert.ErrorIs(t, err, ErrNotDone)

	res, err := p.Run(ctx)
	require.NoError(t, err)
	before := res.Units[0]
	coverage := p.Coverage()

	u, err := p.Reconfigure(ctx, 0, TypeC)
	require.NoError(t, err)
	assert.Equal(t, TypeC, u.Fixture)
	assert.Equal(t, 1.0, u.Lux)
	assert.Equal(t, 10, u.Watt)
	assert.Equal(t, 6, u.Durability)
	assert.Less(t, u.Hits, before.Hits)
	assert.Equal(t, before.ID, u.ID)
	assert.Equal(t, u, p.Units()[0])
	assert.Equal(t, coverage, p.Coverage())

	moved, err := p.Move(ctx, 0, r3.Vec{X: 1.9, Y: -1.2, Z: 2.4})
	require.NoError(t, err)
	assert.Equal(t, r3.Vec{X: 1.9, Y: -1.2, Z: 2.4}, moved.Position)
	assert.Equal(t, TypeC, moved.Fixture)
	assert.Equal(t, moved, p.Units()[0])

	_, err = p.Reconfigure(ctx, 3, TypeA)
	assert.ErrorIs(t, err, ErrUnitIndex)
	_, err = p.Move(ctx, -1, r3.Vec{})
	assert.ErrorIs(t, err, ErrUnitIndex)
	_, err = p.Reconfigure(ctx, 0, FixtureType("Z"))
	assert.Error(t, err)
}

func TestUnitsAreCopies(t *testing.T) {
	p, err := New(Config{
		Mesh:       room(t, 4, 2.5, 5, 2),
		Volume:     50,
		Candidates: []outlet.Candidate{candidate("a", r3.Vec{}, 1)},
	})
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	units := p.Units()
	units[0].Hits = -1
	units[0].Submesh[0] = -1
	assert.NotEqual(t, -1, p.Units()[0].Hits)
	assert.NotEqual(t, -1, p.Units()[0].Submesh[0])
}
