// Package scan drives a room scanning session: it polls a mesh source,
// detects and classifies planes, decides when enough of the room has been
// seen and produces the combined mesh and volume estimate for planning.
package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/roomlight/internal/budget"
	"github.com/banshee-data/roomlight/internal/config"
	"github.com/banshee-data/roomlight/internal/geom"
	"github.com/banshee-data/roomlight/internal/monitoring"
	"github.com/banshee-data/roomlight/internal/surface"
	"github.com/banshee-data/roomlight/internal/timeutil"
	"github.com/banshee-data/roomlight/internal/volume"
)

// ErrKeepScanning is returned by a manual stop when the planes seen so far
// support no volume estimate.
var ErrKeepScanning = errors.New("keep scanning: not enough of the room has been seen")

// MeshSource supplies room meshes. Start and Stop bracket the period in
// which the meshes may still change.
type MeshSource interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	MeshFilters(ctx context.Context) ([]geom.MeshData, error)
}

// Options tunes a Session.
type Options struct {
	Finder     surface.FinderOptions
	Classifier surface.Classifier
	// FrameBudget slices classification; zero runs it in one go.
	FrameBudget time.Duration
	// Interval is the time between checks of a timed scan.
	Interval time.Duration
	// MaxScanningTime ends a timed scan regardless of what has been seen.
	MaxScanningTime time.Duration
	// SufficientArea is the floor and ceiling area, in square metres, that
	// ends a timed scan early.
	SufficientArea float64
	Clock          timeutil.Clock
}

// OptionsFromConfig maps the tuning config onto session options.
func OptionsFromConfig(cfg *config.TuningConfig) Options {
	return Options{
		Finder: surface.FinderOptions{
			SnapToGravityDegrees: cfg.GetSnapToGravityDegrees(),
			MinArea:              cfg.GetMinArea(),
			DistanceTolerance:    cfg.GetPlaneDistanceTolerance(),
		},
		Classifier:      surface.NewClassifier(cfg.GetUpNormalThreshold()),
		FrameBudget:     cfg.GetFrameBudget(),
		Interval:        cfg.GetScanInterval(),
		MaxScanningTime: cfg.GetMaxScanningTime(),
		SufficientArea:  cfg.GetSufficientPlaneArea(),
	}
}

func (o Options) withDefaults() Options {
	if o.Classifier.UpNormalThreshold == 0 {
		o.Classifier = surface.NewClassifier(0)
	}
	if o.Interval <= 0 {
		o.Interval = 30 * time.Second
	}
	if o.MaxScanningTime <= 0 {
		o.MaxScanningTime = 120 * time.Second
	}
	if o.SufficientArea <= 0 {
		o.SufficientArea = 10
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	return o
}

// Snapshot is one classification pass over the source's meshes.
type Snapshot struct {
	Catalog *surface.Catalog
	Floor   surface.SurfacePlane
	Ceiling surface.SurfacePlane
	Walls   []surface.SurfacePlane
}

func newSnapshot(cat *surface.Catalog) Snapshot {
	return Snapshot{
		Catalog: cat,
		Floor:   cat.FloorOrCeiling(surface.Floor),
		Ceiling: cat.FloorOrCeiling(surface.Ceiling),
		Walls:   cat.ByType(surface.Wall),
	}
}

// Sufficient reports whether the floor and ceiling both cover at least area
// and more than one wall was found.
func (s Snapshot) Sufficient(area float64) bool {
	return s.Floor.Area >= area && s.Ceiling.Area >= area && len(s.Walls) > 1
}

// VolumeCase returns the volume estimation case the snapshot supports.
func (s Snapshot) VolumeCase() (volume.Case, bool) {
	return volume.SelectCase(!s.Floor.IsZero(), !s.Ceiling.IsZero(), len(s.Walls))
}

// StopReason says why a scan ended.
type StopReason string

const (
	StopSufficient StopReason = "sufficient"
	StopTimeLimit  StopReason = "time"
	StopManual     StopReason = "completed"
)

// Outcome is the result of a finished scan. VolumeErr is set, and
// Dimensions holds the previous estimate, when the planes support no
// estimate; that is a data condition rather than a failure.
type Outcome struct {
	Snapshot
	Reason     StopReason
	Mesh       *geom.TriangleMesh
	Dimensions volume.Dimensions
	VolumeErr  error
}

// Session runs one scan against a mesh source. It is driven from a single
// goroutine.
type Session struct {
	ID string

	source MeshSource
	opts   Options
	log    monitoring.Logger
	calc   volume.Calculator
	last   Snapshot
	passes int
}

// NewSession returns a session with a fresh id.
func NewSession(source MeshSource, opts Options) *Session {
	id := uuid.NewString()
	return &Session{
		ID:     id,
		source: source,
		opts:   opts.withDefaults(),
		log:    monitoring.For("scan", id[:8]),
	}
}

// Last returns the most recent complete snapshot.
func (s *Session) Last() Snapshot {
	return s.last
}

// Passes returns how many classification passes have completed.
func (s *Session) Passes() int {
	return s.passes
}

// Process reads the current meshes, detects planes on a worker goroutine and,
// once that joins, classifies them on the calling goroutine under the frame
// budget. A pass that is interrupted returns the error and leaves Last
// unchanged.
func (s *Session) Process(ctx context.Context) (Snapshot, error) {
	meshes, err := s.source.MeshFilters(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading meshes: %w", err)
	}

	var planes []surface.BoundedPlane
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		planes, err = surface.FindBoundedPlanes(gctx, meshes, s.opts.Finder)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("finding planes: %w", err)
	}

	var b budget.Budget = budget.Unlimited()
	if s.opts.FrameBudget > 0 {
		b = budget.NewSlicer(s.opts.FrameBudget, budget.WithClock(s.opts.Clock))
	}
	cat, err := s.opts.Classifier.ClassifyAll(ctx, planes, b)
	if err != nil {
		return Snapshot{Catalog: cat}, fmt.Errorf("classifying planes: %w", err)
	}

	snap := newSnapshot(cat)
	s.last = snap
	s.passes++
	counts := cat.Counts()
	s.log.Logf("pass %d: %d meshes, %d planes (floor %.1f m2, ceiling %.1f m2, %d walls, %d tables)",
		s.passes, len(meshes), cat.Len(), snap.Floor.Area, snap.Ceiling.Area, counts[surface.Wall], counts[surface.Table])
	return snap, nil
}

// RunTimed starts the source and re-processes every Interval until the
// snapshot is sufficient or MaxScanningTime has passed, then finishes the
// scan.
func (s *Session) RunTimed(ctx context.Context) (Outcome, error) {
	if err := s.source.Start(ctx); err != nil {
		return Outcome{}, fmt.Errorf("starting mesh source: %w", err)
	}
	clock := s.opts.Clock
	started := clock.Now()
	timer := clock.NewTimer(s.opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-timer.C():
		}

		snap, err := s.Process(ctx)
		if err != nil {
			return Outcome{}, err
		}
		switch {
		case snap.Sufficient(s.opts.SufficientArea):
			return s.finish(ctx, snap, StopSufficient)
		case clock.Since(started) >= s.opts.MaxScanningTime:
			return s.finish(ctx, snap, StopTimeLimit)
		}
		s.log.Logf("not enough of the room seen after %s, scanning on", clock.Since(started).Round(time.Second))
		timer.Reset(s.opts.Interval)
	}
}

// StopManual processes the current meshes and finishes the scan if they
// support any volume estimate. Otherwise it returns ErrKeepScanning and the
// scan continues.
func (s *Session) StopManual(ctx context.Context) (Outcome, error) {
	snap, err := s.Process(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if _, ok := snap.VolumeCase(); !ok {
		s.log.Logf("manual stop refused: floor=%t ceiling=%t walls=%d",
			!snap.Floor.IsZero(), !snap.Ceiling.IsZero(), len(snap.Walls))
		return Outcome{Snapshot: snap}, ErrKeepScanning
	}
	return s.finish(ctx, snap, StopManual)
}

func (s *Session) finish(ctx context.Context, snap Snapshot, reason StopReason) (Outcome, error) {
	if err := s.source.Stop(ctx); err != nil {
		return Outcome{}, fmt.Errorf("stopping mesh source: %w", err)
	}
	meshes, err := s.source.MeshFilters(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("reading final meshes: %w", err)
	}
	mesh, err := geom.Combine(meshes)
	if err != nil {
		return Outcome{}, fmt.Errorf("combining meshes: %w", err)
	}

	out := Outcome{Snapshot: snap, Reason: reason, Mesh: mesh}
	out.Dimensions, out.VolumeErr = s.calc.Update(snap.Floor, snap.Ceiling, snap.Walls)
	if out.VolumeErr != nil {
		s.log.Logf("scan finished (%s) without a volume: %v", reason, out.VolumeErr)
	} else {
		d := out.Dimensions
		s.log.Logf("scan finished (%s): %.2f x %.2f x %.2f m, %.1f m3 from %s",
			reason, d.Width, d.Length, d.Height, d.Volume, d.Case)
	}
	return out, nil
}
