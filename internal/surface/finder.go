package surface

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/roomlight/internal/geom"
)

// Finder defaults.
const (
	DefaultSnapToGravityDegrees = 5.0
	DefaultMinArea              = 0.025
	DefaultDistanceTolerance    = 0.05

	// weldCell is the grid size used to join vertices duplicated across
	// triangles so that adjacency survives flat-shaded meshes.
	weldCell = 1e-4

	// cancelCheckEvery bounds how many triangles are visited between
	// context checks.
	cancelCheckEvery = 1024
)

// FinderOptions tunes FindBoundedPlanes. Zero values take the defaults.
type FinderOptions struct {
	// SnapToGravityDegrees is both the angle within which normals snap to
	// vertical or horizontal and the angle two triangles may differ by to
	// share a cluster.
	SnapToGravityDegrees float64
	// MinArea discards planes whose box area is smaller. A negative value
	// keeps every plane.
	MinArea float64
	// DistanceTolerance is how far, in metres, a triangle centroid may sit
	// from a cluster's plane and still join it.
	DistanceTolerance float64
}

func (o FinderOptions) withDefaults() FinderOptions {
	if o.SnapToGravityDegrees <= 0 {
		o.SnapToGravityDegrees = DefaultSnapToGravityDegrees
	}
	if o.MinArea < 0 {
		o.MinArea = 0
	} else if o.MinArea == 0 {
		o.MinArea = DefaultMinArea
	}
	if o.DistanceTolerance <= 0 {
		o.DistanceTolerance = DefaultDistanceTolerance
	}
	return o
}

// cluster is a coplanar group of triangles before its box is fitted.
type cluster struct {
	normalSum r3.Vec // area weighted
	area      float64
	points    []r3.Vec
	centroid  r3.Vec
	bounds    geom.AABB
}

func (c *cluster) normal() r3.Vec {
	return r3.Unit(c.normalSum)
}

func (c *cluster) plane() geom.Plane {
	return geom.NewPlaneFromPoint(c.normal(), c.centroid)
}

// FindBoundedPlanes clusters the triangles of meshes into planes, fits a box
// to each and returns those with at least opts.MinArea, largest first.
//
// Algorithm:
//  1. Transform every mesh to world space and snap triangle normals to
//     gravity
//  2. Grow clusters over shared edges within each mesh
//  3. Merge clusters from different meshes that describe the same surface
//  4. Fit an oriented box to each cluster and drop small ones
//
// If ctx is cancelled while boxes are being fitted, the planes fitted so far
// are returned together with ctx.Err(). A cancellation before fitting starts
// returns no planes.
func FindBoundedPlanes(ctx context.Context, meshes []geom.MeshData, opts FinderOptions) ([]BoundedPlane, error) {
	opts = opts.withDefaults()

	var clusters []*cluster
	for _, m := range meshes {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		cs, err := clusterMesh(ctx, m, opts)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, cs...)
	}

	merged := mergeClusters(clusters, opts)

	planes := make([]BoundedPlane, 0, len(merged))
	var err error
	for _, c := range merged {
		if err = ctx.Err(); err != nil {
			break
		}
		bp, ok := fitCluster(c, opts)
		if !ok {
			continue
		}
		planes = append(planes, bp)
	}

	sort.SliceStable(planes, func(i, j int) bool {
		return planes[i].Area > planes[j].Area
	})
	return planes, err
}

// SnapToGravity aligns n with the vertical axis when it is within
// thresholdDeg of straight up or down, and removes its vertical component
// when it is within thresholdDeg of horizontal.
func SnapToGravity(n r3.Vec, thresholdDeg float64) r3.Vec {
	angle := geom.AngleDegrees(n, geom.Up)
	switch {
	case angle <= thresholdDeg:
		return geom.Up
	case angle >= 180-thresholdDeg:
		return r3.Scale(-1, geom.Up)
	case math.Abs(angle-90) <= thresholdDeg:
		h := r3.Vec{X: n.X, Z: n.Z}
		if r3.Norm(h) == 0 {
			return n
		}
		return r3.Unit(h)
	default:
		return n
	}
}

type edgeKey struct{ a, b int }

func newEdgeKey(a, b int) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// clusterMesh grows coplanar clusters across edge-adjacent triangles.
func clusterMesh(ctx context.Context, m geom.MeshData, opts FinderOptions) ([]*cluster, error) {
	verts := m.WorldVertices()
	welded := weld(verts)

	nTri := len(m.Indices) / 3
	normals := make([]r3.Vec, nTri)
	areas := make([]float64, nTri)
	centroids := make([]r3.Vec, nTri)
	edges := make(map[edgeKey][]int, nTri*3/2)

	for t := range nTri {
		if t%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		i0, i1, i2 := m.Indices[3*t], m.Indices[3*t+1], m.Indices[3*t+2]
		a, b, c := verts[i0], verts[i1], verts[i2]
		n, area := geom.TriangleNormal(a, b, c)
		if area == 0 {
			continue
		}
		normals[t] = SnapToGravity(n, opts.SnapToGravityDegrees)
		areas[t] = area
		centroids[t] = r3.Scale(1.0/3, r3.Add(r3.Add(a, b), c))

		w0, w1, w2 := welded[i0], welded[i1], welded[i2]
		for _, e := range []edgeKey{newEdgeKey(w0, w1), newEdgeKey(w1, w2), newEdgeKey(w2, w0)} {
			edges[e] = append(edges[e], t)
		}
	}

	visited := make([]bool, nTri)
	var out []*cluster
	var queue []int
	for seed := range nTri {
		if visited[seed] || areas[seed] == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seedNormal := normals[seed]
		seedPlane := geom.NewPlaneFromPoint(seedNormal, centroids[seed])

		c := &cluster{}
		visited[seed] = true
		queue = append(queue[:0], seed)
		for len(queue) > 0 {
			t := queue[0]
			queue = queue[1:]

			i0, i1, i2 := m.Indices[3*t], m.Indices[3*t+1], m.Indices[3*t+2]
			c.normalSum = r3.Add(c.normalSum, r3.Scale(areas[t], normals[t]))
			c.centroid = r3.Add(c.centroid, r3.Scale(areas[t], centroids[t]))
			c.area += areas[t]
			c.points = append(c.points, verts[i0], verts[i1], verts[i2])

			w0, w1, w2 := welded[i0], welded[i1], welded[i2]
			for _, e := range []edgeKey{newEdgeKey(w0, w1), newEdgeKey(w1, w2), newEdgeKey(w2, w0)} {
				for _, nb := range edges[e] {
					if visited[nb] || areas[nb] == 0 {
						continue
					}
					if geom.AngleDegrees(seedNormal, normals[nb]) > opts.SnapToGravityDegrees {
						continue
					}
					if math.Abs(seedPlane.DistanceToPoint(centroids[nb])) > opts.DistanceTolerance {
						continue
					}
					visited[nb] = true
					queue = append(queue, nb)
				}
			}
		}
		c.centroid = r3.Scale(1/c.area, c.centroid)
		c.bounds = geom.NewAABBFromPoints(c.points...)
		out = append(out, c)
	}
	return out, nil
}

// weld maps every vertex to the first vertex sharing its weld cell.
func weld(verts []r3.Vec) []int {
	out := make([]int, len(verts))
	seen := make(map[[3]int64]int, len(verts))
	for i, v := range verts {
		key := [3]int64{
			int64(math.Round(v.X / weldCell)),
			int64(math.Round(v.Y / weldCell)),
			int64(math.Round(v.Z / weldCell)),
		}
		if first, ok := seen[key]; ok {
			out[i] = first
			continue
		}
		seen[key] = i
		out[i] = i
	}
	return out
}

func uniquePoints(points []r3.Vec) []r3.Vec {
	ids := weld(points)
	out := make([]r3.Vec, 0, len(points))
	for i, p := range points {
		if ids[i] == i {
			out = append(out, p)
		}
	}
	return out
}

// mergeClusters joins clusters that lie on the same plane and touch.
// Output order follows the first member of each merged group.
func mergeClusters(clusters []*cluster, opts FinderOptions) []*cluster {
	if len(clusters) < 2 {
		return clusters
	}

	normalCell := math.Max(2*math.Sin(opts.SnapToGravityDegrees*math.Pi/360), 1e-3)
	idx := newPlaneIndex(normalCell, math.Max(opts.DistanceTolerance, 1e-3))
	planes := make([]geom.Plane, len(clusters))
	for i, c := range clusters {
		planes[i] = c.plane()
		idx.insert(i, planes[i].Normal, planes[i].Distance)
	}

	parent := make([]int, len(clusters))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	gap := 2 * opts.DistanceTolerance
	for i, c := range clusters {
		for _, j := range idx.query(planes[i].Normal, planes[i].Distance) {
			if j <= i {
				continue
			}
			o := clusters[j]
			if planes[i].AngleTo(planes[j]) > opts.SnapToGravityDegrees {
				continue
			}
			if math.Abs(planes[i].DistanceToPoint(o.centroid)) > opts.DistanceTolerance ||
				math.Abs(planes[j].DistanceToPoint(c.centroid)) > opts.DistanceTolerance {
				continue
			}
			if !c.bounds.Overlaps(o.bounds, gap) {
				continue
			}
			ri, rj := find(i), find(j)
			if ri == rj {
				continue
			}
			if rj < ri {
				ri, rj = rj, ri
			}
			parent[rj] = ri
		}
	}

	groups := make(map[int]*cluster)
	var order []int
	for i, c := range clusters {
		r := find(i)
		g, ok := groups[r]
		if !ok {
			g = &cluster{bounds: c.bounds}
			groups[r] = g
			order = append(order, r)
		}
		g.normalSum = r3.Add(g.normalSum, c.normalSum)
		g.centroid = r3.Add(g.centroid, r3.Scale(c.area, c.centroid))
		g.area += c.area
		g.points = append(g.points, c.points...)
		g.bounds = g.bounds.Union(c.bounds)
	}

	out := make([]*cluster, 0, len(order))
	for _, r := range order {
		g := groups[r]
		g.centroid = r3.Scale(1/g.area, g.centroid)
		out = append(out, g)
	}
	return out
}

// fitCluster fits the plane and box of a cluster. It reports false for
// clusters below the minimum area or with no usable orientation.
func fitCluster(c *cluster, opts FinderOptions) (BoundedPlane, bool) {
	if r3.Norm(c.normalSum) == 0 {
		return BoundedPlane{}, false
	}
	n := SnapToGravity(c.normal(), opts.SnapToGravityDegrees)
	// Shared vertices would otherwise weight the covariance by triangle
	// fan size.
	box := geom.FitPlaneOBB(uniquePoints(c.points), n)
	area := box.Area()
	if area < opts.MinArea {
		return BoundedPlane{}, false
	}
	return BoundedPlane{
		Plane:  geom.NewPlaneFromPoint(n, box.Center),
		Bounds: box,
		Area:   area,
	}, true
}
