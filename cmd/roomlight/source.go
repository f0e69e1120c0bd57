package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/roomlight/internal/config"
	"github.com/banshee-data/roomlight/internal/geom"
	"github.com/banshee-data/roomlight/internal/meshio"
	"github.com/banshee-data/roomlight/internal/scan"
	"github.com/banshee-data/roomlight/internal/units"
)

// sourceFlags are shared by every command that scans a room.
type sourceFlags struct {
	meshPath   string
	synthetic  string
	divisions  int
	table      bool
	eyeHeight  float64
	obstacles  []string
	configPath string
	units      string
	timed      bool
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.meshPath, "mesh", "", "Room capture as .gltf or .glb")
	fl.StringVar(&f.synthetic, "synthetic", "", "Synthetic box room as WIDTHxHEIGHTxLENGTH in metres, e.g. 4x2.5x5")
	fl.IntVar(&f.divisions, "divisions", 10, "Quads per face edge of the synthetic room")
	fl.BoolVar(&f.table, "table", false, "Add a table to the synthetic room")
	fl.Float64Var(&f.eyeHeight, "eye-height", meshio.DefaultEyeHeight, "Height of the capturing device above the floor in metres")
	fl.StringArrayVar(&f.obstacles, "obstacle", nil, "Light-blocking box as minX,minY,minZ,maxX,maxY,maxZ (repeatable)")
	fl.StringVar(&f.configPath, "config", "", "Path to a tuning config JSON file")
	fl.StringVar(&f.units, "units", units.Metric, "Display units: "+units.GetValidUnitsString())
	fl.BoolVar(&f.timed, "timed", false, "Scan on the configured interval until the room is seen, instead of stopping at once")
	cmd.MarkFlagsMutuallyExclusive("mesh", "synthetic")
	cmd.MarkFlagsOneRequired("mesh", "synthetic")
}

func (f *sourceFlags) loadConfig() (*config.TuningConfig, error) {
	if f.configPath == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(f.configPath)
}

func (f *sourceFlags) validate() error {
	if !units.IsValid(f.units) {
		return fmt.Errorf("invalid units %q: must be one of %s", f.units, units.GetValidUnitsString())
	}
	if f.eyeHeight <= 0 {
		return fmt.Errorf("eye height must be positive, got %g", f.eyeHeight)
	}
	return nil
}

// source builds the mesh source and the occluders that go with it.
func (f *sourceFlags) source() (scan.MeshSource, []geom.AABB, error) {
	var occluders []geom.AABB
	for _, s := range f.obstacles {
		b, err := parseBox(s)
		if err != nil {
			return nil, nil, err
		}
		occluders = append(occluders, b)
	}

	if f.meshPath != "" {
		return &meshio.GLTFSource{Path: f.meshPath, EyeHeight: f.eyeHeight}, occluders, nil
	}
	dims, err := parseFloats(f.synthetic, "x", 3)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid --synthetic: %w", err)
	}
	room := &meshio.SyntheticRoom{
		Width:       dims[0],
		Height:      dims[1],
		Length:      dims[2],
		Divisions:   f.divisions,
		EyeHeight:   f.eyeHeight,
		Table:       f.table,
		Obstacles:   occluders,
		Progressive: f.timed,
	}
	if err := room.Validate(); err != nil {
		return nil, nil, err
	}
	return room, room.Occluders(), nil
}

// scanRoom runs a scan session to completion and returns its outcome.
func scanRoom(ctx context.Context, f *sourceFlags, cfg *config.TuningConfig) (*scan.Session, scan.Outcome, []geom.AABB, error) {
	src, occluders, err := f.source()
	if err != nil {
		return nil, scan.Outcome{}, nil, err
	}
	session := scan.NewSession(src, scan.OptionsFromConfig(cfg))

	var out scan.Outcome
	if f.timed {
		out, err = session.RunTimed(ctx)
	} else {
		if err := src.Start(ctx); err != nil {
			return nil, scan.Outcome{}, nil, fmt.Errorf("starting mesh source: %w", err)
		}
		out, err = session.StopManual(ctx)
		if errors.Is(err, scan.ErrKeepScanning) {
			return nil, out, nil, fmt.Errorf("%w (floor=%t ceiling=%t walls=%d)",
				err, !out.Floor.IsZero(), !out.Ceiling.IsZero(), len(out.Walls))
		}
	}
	if err != nil {
		return nil, scan.Outcome{}, nil, err
	}
	return session, out, occluders, nil
}

func parseFloats(s, sep string, n int) ([]float64, error) {
	parts := strings.Split(s, sep)
	if len(parts) != n {
		return nil, fmt.Errorf("%q: want %d values separated by %q", s, n, sep)
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseVec(s string) (r3.Vec, error) {
	v, err := parseFloats(s, ",", 3)
	if err != nil {
		return r3.Vec{}, err
	}
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, nil
}

func parseBox(s string) (geom.AABB, error) {
	v, err := parseFloats(s, ",", 6)
	if err != nil {
		return geom.AABB{}, fmt.Errorf("invalid --obstacle: %w", err)
	}
	return geom.NewAABBFromPoints(r3.Vec{X: v[0], Y: v[1], Z: v[2]}, r3.Vec{X: v[3], Y: v[4], Z: v[5]}), nil
}
