package visibility

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/roomlight/internal/geom"
	"github.com/banshee-data/roomlight/internal/testutil"
)

// roomMesh is a closed w x h x l box centred on the origin with each face
// split into div x div quads.
func roomMesh(t *testing.T, w, h, l float64, div int) *geom.TriangleMesh {
	t.Helper()
	x, y, z := r3.Vec{X: w / 2}, r3.Vec{Y: h / 2}, r3.Vec{Z: l / 2}
	neg := func(v r3.Vec) r3.Vec { return r3.Scale(-1, v) }
	mesh, err := geom.Combine([]geom.MeshData{
		testutil.QuadMesh("floor", neg(y), z, x, div),
		testutil.QuadMesh("ceiling", y, x, z, div),
		testutil.QuadMesh("wall+x", x, z, y, div),
		testutil.QuadMesh("wall-x", neg(x), y, z, div),
		testutil.QuadMesh("wall+z", z, y, x, div),
		testutil.QuadMesh("wall-z", neg(z), x, y, div),
	})
	require.NoError(t, err)
	return mesh
}

func bruteForce(m *geom.TriangleMesh, origin, dir r3.Vec, maxDist float64) (float64, bool) {
	best, found := maxDist, false
	for tri := range m.TriangleCount() {
		a, b, c := m.Triangle(tri)
		if d, ok := intersectTriangle(origin, dir, a, b, c); ok && d >= minHitDistance && d < best {
			best, found = d, true
		}
	}
	return best, found
}

func TestMeshBVHMatchesBruteForce(t *testing.T) {
	mesh := roomMesh(t, 4, 2.5, 5, 6)
	bvh := NewMeshBVH(mesh)
	rng := rand.New(rand.NewSource(7))

	for i := range 500 {
		origin := r3.Vec{X: rng.Float64()*3 - 1.5, Y: rng.Float64()*2 - 1, Z: rng.Float64()*4 - 2}
		dir := r3.Unit(r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()})

		want, wantOK := bruteForce(mesh, origin, dir, math.Inf(1))
		hit, ok := bvh.Raycast(origin, dir, math.Inf(1))
		if ok != wantOK {
			t.Fatalf("ray %d: hit = %v, brute force = %v", i, ok, wantOK)
		}
		if math.Abs(hit.Distance-want) > 1e-9 {
			t.Errorf("ray %d: distance = %v, brute force = %v", i, hit.Distance, want)
		}
		if !hit.Target {
			t.Errorf("ray %d: mesh hit not marked as target", i)
		}
	}
}

func TestMeshBVHMaxDistance(t *testing.T) {
	bvh := NewMeshBVH(roomMesh(t, 4, 2.5, 5, 2))

	// Wall +x is 2 m away.
	_, ok := bvh.Raycast(r3.Vec{}, r3.Vec{X: 1}, 1.5)
	assert.False(t, ok)

	hit, ok := bvh.Raycast(r3.Vec{}, r3.Vec{X: 1}, 2.5)
	require.True(t, ok)
	assert.InDelta(t, 2.0, hit.Distance, 1e-9)
}

func TestMeshBVHEmpty(t *testing.T) {
	bvh := NewMeshBVH(&geom.TriangleMesh{})
	_, ok := bvh.Raycast(r3.Vec{}, r3.Vec{X: 1}, math.Inf(1))
	assert.False(t, ok)
}

func TestSceneOccluderBlocks(t *testing.T) {
	mesh := roomMesh(t, 4, 2.5, 5, 2)
	scene := Scene{
		Mesh:      NewMeshBVH(mesh),
		Occluders: []geom.AABB{{Min: r3.Vec{X: 0.9, Y: -0.5, Z: -0.5}, Max: r3.Vec{X: 1.1, Y: 0.5, Z: 0.5}}},
	}

	hit, ok := scene.Raycast(r3.Vec{}, r3.Vec{X: 1}, math.Inf(1))
	require.True(t, ok)
	assert.False(t, hit.Target)
	assert.Equal(t, -1, hit.Triangle)
	assert.InDelta(t, 0.9, hit.Distance, 1e-9)

	// The other direction is clear.
	hit, ok = scene.Raycast(r3.Vec{}, r3.Vec{X: -1}, math.Inf(1))
	require.True(t, ok)
	assert.True(t, hit.Target)
	assert.InDelta(t, 2.0, hit.Distance, 1e-9)
}

func assertPartition(t *testing.T, subset []int, res Result) {
	t.Helper()
	got := append(append([]int(nil), res.Covered...), res.Remaining...)
	sort.Ints(got)
	want := append([]int(nil), subset...)
	sort.Ints(want)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("covered+remaining is not a partition of the subset (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3*len(res.Covered), res.HitCount)
}

func TestSampleConvexRoomCoversEverything(t *testing.T) {
	mesh := roomMesh(t, 4, 2.5, 5, 4)
	s := NewSampler(mesh, 1)
	all := mesh.AllTriangles()

	res, err := s.Sample(context.Background(), r3.Vec{Y: 0.3}, all, math.Inf(1), nil)
	require.NoError(t, err)
	assertPartition(t, all, res)
	assert.Len(t, res.Covered, len(all))
	assert.Empty(t, res.Remaining)
	assert.Equal(t, len(all), res.Sampled)
	assert.Greater(t, res.MaxHitDistance, 0.0)
	assert.GreaterOrEqual(t, res.SumHitDistance, res.MaxHitDistance)
}

func TestSampleRangeLimit(t *testing.T) {
	mesh := roomMesh(t, 4, 2.5, 5, 4)
	s := NewSampler(mesh, 1)
	all := mesh.AllTriangles()

	res, err := s.Sample(context.Background(), r3.Vec{}, all, 2.2, nil)
	require.NoError(t, err)
	assertPartition(t, all, res)
	assert.NotEmpty(t, res.Covered)
	assert.NotEmpty(t, res.Remaining)
	for _, tri := range res.Covered {
		assert.LessOrEqual(t, r3.Norm(mesh.Representative(tri)), 2.2)
	}
}

func TestSampleOccluderLeavesShadow(t *testing.T) {
	mesh := roomMesh(t, 4, 2.5, 5, 4)
	s := &Sampler{
		Caster: Scene{
			Mesh:      NewMeshBVH(mesh),
			Occluders: []geom.AABB{{Min: r3.Vec{X: 0.5, Y: -1.5, Z: -3}, Max: r3.Vec{X: 0.6, Y: 1.5, Z: 3}}},
		},
		Mesh:   mesh,
		Stride: 1,
	}
	all := mesh.AllTriangles()

	res, err := s.Sample(context.Background(), r3.Vec{}, all, math.Inf(1), nil)
	require.NoError(t, err)
	assertPartition(t, all, res)
	for _, tri := range res.Remaining {
		// Everything in shadow is on the far side of the slab.
		assert.Greater(t, mesh.Representative(tri).X, 0.5)
	}
	assert.NotEmpty(t, res.Remaining)
}

func TestSampleStride(t *testing.T) {
	mesh := roomMesh(t, 4, 2.5, 5, 10)
	all := mesh.AllTriangles()
	require.Equal(t, 1200, len(all))

	res, err := NewSampler(mesh, 100).Sample(context.Background(), r3.Vec{}, all, math.Inf(1), nil)
	require.NoError(t, err)
	assertPartition(t, all, res)
	assert.Equal(t, 12, res.Sampled)
	assert.LessOrEqual(t, len(res.Covered), 12)
	for _, tri := range res.Covered {
		assert.Zero(t, tri%100, "only every 100th triangle is sampled")
	}
}

func TestSamplePreservesSubsetOrder(t *testing.T) {
	mesh := roomMesh(t, 4, 2.5, 5, 2)
	subset := []int{40, 3, 17, 8, 25}

	res, err := NewSampler(mesh, 1).Sample(context.Background(), r3.Vec{}, subset, math.Inf(1), nil)
	require.NoError(t, err)
	assert.Equal(t, subset, res.Covered)
}

type stopAfter struct {
	n   int
	err error
}

func (s *stopAfter) Step(context.Context) error {
	if s.n == 0 {
		return s.err
	}
	s.n--
	return nil
}

func TestSampleInterrupted(t *testing.T) {
	mesh := roomMesh(t, 4, 2.5, 5, 4)
	all := mesh.AllTriangles()
	errStop := errors.New("frame spent")

	res, err := NewSampler(mesh, 1).Sample(context.Background(), r3.Vec{}, all, math.Inf(1), &stopAfter{n: 10, err: errStop})
	assert.ErrorIs(t, err, errStop)
	assertPartition(t, all, res)
	assert.Equal(t, 10, res.Sampled)
	assert.Len(t, res.Remaining, len(all)-len(res.Covered))
}

func TestSampleCancelled(t *testing.T) {
	mesh := roomMesh(t, 4, 2.5, 5, 2)
	all := mesh.AllTriangles()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewSampler(mesh, 1).Sample(ctx, r3.Vec{}, all, math.Inf(1), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Covered)
	assert.Equal(t, all, res.Remaining)
}

func TestWithStrideSharesCaster(t *testing.T) {
	s := NewSampler(roomMesh(t, 4, 2.5, 5, 1), 1)
	c := s.WithStride(100)
	assert.Equal(t, 100, c.Stride)
	assert.Equal(t, 1, s.Stride)
	assert.Same(t, s.Caster.(*MeshBVH), c.Caster.(*MeshBVH))
}
