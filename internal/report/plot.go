// Package report renders a finished lighting plan for people: a top-down
// coverage plot and an HTML summary page.
package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/roomlight/internal/geom"
	"github.com/banshee-data/roomlight/internal/planner"
)

var remainingColor = color.RGBA{R: 160, G: 160, B: 160, A: 255}

// CoveragePlot builds a top-down view of the plan: triangle centroids on the
// x/z plane coloured by the unit that first lit them, unlit triangles in
// grey and fixtures as labelled triangles.
func CoveragePlot(mesh *geom.TriangleMesh, res planner.Result) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Lighting coverage %.1f%% (%d units)", res.Coverage, len(res.Units))
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "z (m)"
	p.Add(plotter.NewGrid())

	if len(res.Remaining) > 0 {
		s, err := centroidScatter(mesh, res.Remaining, remainingColor, draw.CircleGlyph{})
		if err != nil {
			return nil, err
		}
		p.Add(s)
		p.Legend.Add(fmt.Sprintf("unlit (%d)", len(res.Remaining)), s)
	}

	fixtures := make(plotter.XYs, 0, len(res.Units))
	labels := make([]string, 0, len(res.Units))
	for i, u := range res.Units {
		covered := res.Covered(i)
		if len(covered) > 0 {
			s, err := centroidScatter(mesh, covered, plotutil.Color(i), draw.CircleGlyph{})
			if err != nil {
				return nil, err
			}
			p.Add(s)
			p.Legend.Add(fmt.Sprintf("unit %d type %s (%d)", i+1, u.Fixture, len(covered)), s)
		}
		fixtures = append(fixtures, plotter.XY{X: u.Position.X, Y: u.Position.Z})
		labels = append(labels, fmt.Sprintf("%d:%s", i+1, u.Fixture))
	}

	if len(fixtures) > 0 {
		s, err := plotter.NewScatter(fixtures)
		if err != nil {
			return nil, err
		}
		s.GlyphStyle.Shape = draw.TriangleGlyph{}
		s.GlyphStyle.Radius = vg.Points(6)
		s.GlyphStyle.Color = color.Black
		p.Add(s)

		l, err := plotter.NewLabels(plotter.XYLabels{XYs: fixtures, Labels: labels})
		if err != nil {
			return nil, err
		}
		l.Offset = vg.Point{Y: vg.Points(8)}
		p.Add(l)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func centroidScatter(mesh *geom.TriangleMesh, tris []int, c color.Color, shape draw.GlyphDrawer) (*plotter.Scatter, error) {
	pts := make(plotter.XYs, len(tris))
	for i, t := range tris {
		ct := mesh.Centroid(t)
		pts[i] = plotter.XY{X: ct.X, Y: ct.Z}
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Radius = vg.Points(1.5)
	s.GlyphStyle.Shape = shape
	return s, nil
}

// WriteCoveragePlot saves the coverage plot to path. The format follows the
// extension (.png, .svg or .pdf).
func WriteCoveragePlot(path string, mesh *geom.TriangleMesh, res planner.Result) error {
	p, err := CoveragePlot(mesh, res)
	if err != nil {
		return fmt.Errorf("building coverage plot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("saving coverage plot: %w", err)
	}
	return nil
}
