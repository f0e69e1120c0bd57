// Package meshio provides mesh sources for a scan: glTF/GLB room captures
// and synthetic box rooms.
package meshio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/roomlight/internal/geom"
	"github.com/banshee-data/roomlight/internal/monitoring"
)

// ErrNotStarted is returned when meshes are read from a source that was
// never started.
var ErrNotStarted = errors.New("mesh source not started")

// LoadGLTF opens a .gltf or .glb file and returns one MeshData per triangle
// primitive of the default scene.
func LoadGLTF(path string) ([]geom.MeshData, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	meshes, err := ReadDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return meshes, nil
}

// ReadDocument walks the node hierarchy of the default scene, or of every
// scene when none is marked default, and flattens each mesh-bearing node
// into world-posed MeshData. Non-triangle primitives are skipped.
func ReadDocument(doc *gltf.Document) ([]geom.MeshData, error) {
	var roots []int
	switch {
	case doc.Scene != nil && *doc.Scene < len(doc.Scenes):
		roots = doc.Scenes[*doc.Scene].Nodes
	case len(doc.Scenes) > 0:
		for _, s := range doc.Scenes {
			roots = append(roots, s.Nodes...)
		}
	default:
		// No scenes: treat every node as a root.
		for i := range doc.Nodes {
			roots = append(roots, i)
		}
	}

	r := reader{doc: doc, visiting: make(map[int]bool)}
	for _, idx := range roots {
		if err := r.node(idx, geom.IdentityPose()); err != nil {
			return nil, err
		}
	}
	return r.out, nil
}

type reader struct {
	doc      *gltf.Document
	out      []geom.MeshData
	visiting map[int]bool
}

func (r *reader) node(idx int, parent geom.Pose) error {
	if idx < 0 || idx >= len(r.doc.Nodes) {
		return fmt.Errorf("node %d out of range", idx)
	}
	if r.visiting[idx] {
		return fmt.Errorf("node %d: cycle in node hierarchy", idx)
	}
	r.visiting[idx] = true
	defer delete(r.visiting, idx)

	node := r.doc.Nodes[idx]
	world := parent.Mul(localPose(node))

	if node.Mesh != nil {
		mi := *node.Mesh
		if mi < 0 || mi >= len(r.doc.Meshes) {
			return fmt.Errorf("node %d: mesh %d out of range", idx, mi)
		}
		if err := r.mesh(node, r.doc.Meshes[mi], world); err != nil {
			return fmt.Errorf("node %d: %w", idx, err)
		}
	}
	for _, child := range node.Children {
		if err := r.node(child, world); err != nil {
			return err
		}
	}
	return nil
}

func (r *reader) mesh(node *gltf.Node, m *gltf.Mesh, pose geom.Pose) error {
	for pi, prim := range m.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles && prim.Mode != 0 {
			continue
		}
		posIdx, ok := prim.Attributes[gltf.POSITION]
		if !ok {
			continue
		}
		positions, err := modeler.ReadPosition(r.doc, r.doc.Accessors[posIdx], nil)
		if err != nil {
			return fmt.Errorf("mesh %q primitive %d positions: %w", m.Name, pi, err)
		}

		md := geom.MeshData{
			Name:      primitiveName(node, m, pi),
			Vertices:  make([]r3.Vec, len(positions)),
			Transform: pose,
		}
		for i, p := range positions {
			md.Vertices[i] = r3.Vec{X: float64(p[0]), Y: float64(p[1]), Z: float64(p[2])}
		}

		if prim.Indices != nil {
			indices, err := modeler.ReadIndices(r.doc, r.doc.Accessors[*prim.Indices], nil)
			if err != nil {
				return fmt.Errorf("mesh %q primitive %d indices: %w", m.Name, pi, err)
			}
			md.Indices = make([]int, len(indices))
			for i, v := range indices {
				md.Indices[i] = int(v)
			}
		} else {
			md.Indices = make([]int, len(positions)-len(positions)%3)
			for i := range md.Indices {
				md.Indices[i] = i
			}
		}
		if err := md.Validate(); err != nil {
			return err
		}
		r.out = append(r.out, md)
	}
	return nil
}

func primitiveName(node *gltf.Node, m *gltf.Mesh, pi int) string {
	name := m.Name
	if name == "" {
		name = node.Name
	}
	if len(m.Primitives) > 1 {
		name = fmt.Sprintf("%s#%d", name, pi)
	}
	return name
}

var identityMatrix = [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// localPose returns the node's local transform. An explicit matrix wins over
// TRS; a zero scale or rotation is read as the glTF default.
func localPose(n *gltf.Node) geom.Pose {
	if n.Matrix != identityMatrix && n.Matrix != [16]float64{} {
		// glTF matrices are column-major.
		var p geom.Pose
		for row := range 4 {
			for col := range 4 {
				p[row*4+col] = n.Matrix[col*4+row]
			}
		}
		return p
	}

	s := n.Scale
	if s == [3]float64{} {
		s = [3]float64{1, 1, 1}
	}
	q := n.Rotation
	if q == [4]float64{} {
		q = [4]float64{0, 0, 0, 1}
	}
	rot := quatMatrix(q)
	p := geom.IdentityPose()
	for row := range 3 {
		for col := range 3 {
			p[row*4+col] = rot[row][col] * s[col]
		}
		p[row*4+3] = n.Translation[row]
	}
	return p
}

// quatMatrix converts a unit quaternion in x, y, z, w order to a rotation
// matrix. The quaternion is normalised first.
func quatMatrix(q [4]float64) [3][3]float64 {
	x, y, z, w := q[0], q[1], q[2], q[3]
	if l := math.Sqrt(x*x + y*y + z*z + w*w); l > 0 {
		x, y, z, w = x/l, y/l, z/l, w/l
	}
	return [3][3]float64{
		{1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w)},
		{2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w)},
		{2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y)},
	}
}

// Recentre shifts every mesh so the lowest world vertex sits eyeHeight below
// the origin and the horizontal bounds are centred on it, matching a capture
// taken from a device held at eye height in the middle of the room.
func Recentre(meshes []geom.MeshData, eyeHeight float64) []geom.MeshData {
	var pts []r3.Vec
	for _, m := range meshes {
		pts = append(pts, m.WorldVertices()...)
	}
	if len(pts) == 0 {
		return meshes
	}
	b := geom.NewAABBFromPoints(pts...)
	c := b.Center()
	shift := geom.TranslationPose(r3.Vec{X: -c.X, Y: -eyeHeight - b.Min.Y, Z: -c.Z})

	out := make([]geom.MeshData, len(meshes))
	for i, m := range meshes {
		pose := m.Transform
		if pose.IsZero() {
			pose = geom.IdentityPose()
		}
		m.Transform = shift.Mul(pose)
		out[i] = m
	}
	return out
}

// GLTFSource serves the meshes of a glTF file as a finished scan. The file
// is read on Start.
type GLTFSource struct {
	Path string
	// EyeHeight, when positive, recentres the meshes with Recentre.
	EyeHeight float64

	mu      sync.Mutex
	meshes  []geom.MeshData
	started bool
	stopped bool
}

// Start loads the file.
func (s *GLTFSource) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	meshes, err := LoadGLTF(s.Path)
	if err != nil {
		return err
	}
	if s.EyeHeight > 0 {
		meshes = Recentre(meshes, s.EyeHeight)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.meshes = meshes
	s.started = true
	monitoring.Logf("[meshio] loaded %d meshes from %s", len(meshes), s.Path)
	return nil
}

// Stop marks the source finished. The meshes stay readable.
func (s *GLTFSource) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

// MeshFilters returns the loaded meshes.
func (s *GLTFSource) MeshFilters(ctx context.Context) ([]geom.MeshData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.meshes, nil
}
