package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/roomlight/internal/budget"
	"github.com/banshee-data/roomlight/internal/config"
	"github.com/banshee-data/roomlight/internal/monitoring"
	"github.com/banshee-data/roomlight/internal/outlet"
	"github.com/banshee-data/roomlight/internal/planner"
	"github.com/banshee-data/roomlight/internal/report"
	"github.com/banshee-data/roomlight/internal/scan"
	"github.com/banshee-data/roomlight/internal/surface"
	"github.com/banshee-data/roomlight/internal/units"
	"github.com/banshee-data/roomlight/internal/visibility"
)

type planFlags struct {
	sourceFlags
	preference string
	outlets    []string
	plotPath   string
	reportPath string
}

func newPlanCmd() *cobra.Command {
	f := &planFlags{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Recommend lighting units for a room",
		Long: `Scan a room, place outlet candidates and greedily choose lighting units
until the lit share of the room meets the brightness preference.

Outlets are points on detected planes given with --outlet x,y,z. Without
any, the centres of the detected walls, floor and ceiling are tried in turn.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, f)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&f.preference, "preference", "", "Brightness preference: low, medium or high (default from config)")
	cmd.Flags().StringArrayVar(&f.outlets, "outlet", nil, "Outlet position as x,y,z in metres (repeatable)")
	cmd.Flags().StringVar(&f.plotPath, "plot", "", "Write a top-down coverage plot (.png, .svg or .pdf)")
	cmd.Flags().StringVar(&f.reportPath, "report", "", "Write an HTML report")
	return cmd
}

func runPlan(cmd *cobra.Command, f *planFlags) error {
	ctx := cmd.Context()
	if err := f.validate(); err != nil {
		return err
	}
	cfg, err := f.loadConfig()
	if err != nil {
		return err
	}
	prefName := f.preference
	if prefName == "" {
		prefName = cfg.GetPreference()
	}
	pref, err := planner.ParsePreference(prefName)
	if err != nil {
		return err
	}
	points := make([]r3.Vec, 0, len(f.outlets))
	for _, s := range f.outlets {
		p, err := parseVec(s)
		if err != nil {
			return fmt.Errorf("invalid --outlet: %w", err)
		}
		points = append(points, p)
	}

	session, out, occluders, err := scanRoom(ctx, &f.sourceFlags, cfg)
	if err != nil {
		return err
	}
	if out.VolumeErr != nil {
		monitoring.Logf("[roomlight] no volume estimate, first pick uses 0 m3: %v", out.VolumeErr)
	}
	sid := session.ID[:8]

	sampler := &visibility.Sampler{
		Caster: visibility.Scene{Mesh: visibility.NewMeshBVH(out.Mesh), Occluders: occluders},
		Mesh:   out.Mesh,
		Stride: cfg.GetCoverageSampleStride(),
	}
	candidates, err := collectCandidates(cmd, out, sampler, cfg, points, sid)
	if err != nil {
		return err
	}

	var b budget.Budget
	if fb := cfg.GetFrameBudget(); fb > 0 {
		b = budget.NewSlicer(fb)
	}
	p, err := planner.New(planner.Config{
		Mesh:       out.Mesh,
		Sampler:    sampler,
		Candidates: candidates,
		Volume:     out.Dimensions.Volume,
		Preference: pref,
		Budget:     b,
		Session:    sid,
	})
	if err != nil {
		return err
	}
	res, err := p.Run(ctx)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	printRoom(w, out, f.units)
	printPlan(w, res, pref)

	if f.plotPath != "" {
		if err := report.WriteCoveragePlot(f.plotPath, out.Mesh, res); err != nil {
			return err
		}
		fmt.Fprintf(w, "coverage plot written to %s\n", f.plotPath)
	}
	if f.reportPath != "" {
		if err := writeReport(f.reportPath, report.Summary{
			Session:    sid,
			Preference: pref,
			Dimensions: out.Dimensions,
			Result:     res,
		}); err != nil {
			return err
		}
		fmt.Fprintf(w, "report written to %s\n", f.reportPath)
	}
	return nil
}

// collectCandidates feeds outlet points to a collection until it closes.
// Rejected points are reported and skipped.
func collectCandidates(cmd *cobra.Command, out scan.Outcome, sampler *visibility.Sampler, cfg *config.TuningConfig, points []r3.Vec, sid string) ([]outlet.Candidate, error) {
	if len(points) == 0 {
		points = planeCentres(out.Catalog)
	}
	coll := outlet.NewCollection(out.Catalog, sampler,
		outlet.WithRequired(cfg.GetRequiredCandidates()),
		outlet.WithSampleStride(cfg.GetCandidateSampleStride()),
		outlet.WithSurfaceTolerance(cfg.GetSurfaceTolerance()),
		outlet.WithSession(sid),
	)
	for _, pt := range points {
		if coll.Full() {
			break
		}
		_, err := coll.Add(cmd.Context(), pt)
		switch {
		case errors.Is(err, outlet.ErrNoCandidateMatch):
			fmt.Fprintf(cmd.ErrOrStderr(), "skipping outlet: %v\n", err)
		case err != nil:
			return nil, err
		}
	}
	if !coll.Full() {
		fmt.Fprintf(cmd.ErrOrStderr(), "only %d of %d outlet candidates placed\n", coll.Len(), coll.Required())
	}
	return coll.Close(), nil
}

// planeCentres lists the box centres of the walls, then the floor and the
// ceiling.
func planeCentres(cat *surface.Catalog) []r3.Vec {
	var out []r3.Vec
	for _, w := range cat.ByType(surface.Wall) {
		out = append(out, w.Bounds.Center)
	}
	for _, t := range []surface.PlaneType{surface.Floor, surface.Ceiling} {
		if sp := cat.FloorOrCeiling(t); !sp.IsZero() {
			out = append(out, sp.Bounds.Center)
		}
	}
	return out
}

func printRoom(w io.Writer, out scan.Outcome, unit string) {
	if out.VolumeErr != nil {
		fmt.Fprintf(w, "room: %v\n", out.VolumeErr)
		return
	}
	d := out.Dimensions
	ls := units.LengthSuffix(unit)
	fmt.Fprintf(w, "room: %.2f x %.2f x %.2f %s, volume %.1f %s (%s)\n",
		units.ConvertLength(d.Width, unit), units.ConvertLength(d.Length, unit), units.ConvertLength(d.Height, unit), ls,
		units.ConvertVolume(d.Volume, unit), units.VolumeSuffix(unit), d.Case)
}

func printPlan(w io.Writer, res planner.Result, pref planner.Preference) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTYPE\tPLANE\tPOSITION\tHITS\tWATT\tYEARS\tW/m2")
	for i, u := range res.Units {
		fmt.Fprintf(tw, "%d\t%s\t%s\t(%.2f, %.2f, %.2f)\t%d\t%d\t%d\t%.2f\n",
			i+1, u.Fixture, u.PlaneType, u.Position.X, u.Position.Y, u.Position.Z,
			u.Hits, u.Watt, u.Durability, u.Fixture.Spec().EnergyPerArea())
	}
	tw.Flush()

	status := "met"
	switch {
	case res.Exhausted:
		status = "not met, candidates exhausted"
	case !pref.Satisfied(res.Coverage):
		status = "not met"
	}
	fmt.Fprintf(w, "coverage %.1f%% (%s preference %.0f%%: %s)\n", res.Coverage, pref, pref.Threshold(), status)
}

func writeReport(path string, s report.Summary) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := report.WriteHTML(file, s); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
