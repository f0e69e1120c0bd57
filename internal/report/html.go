package report

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/roomlight/internal/planner"
	"github.com/banshee-data/roomlight/internal/volume"
)

// DefaultAssetsHost serves the echarts scripts.
const DefaultAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// Summary is everything the HTML report shows.
type Summary struct {
	Title      string
	Session    string
	Preference planner.Preference
	Dimensions volume.Dimensions
	Result     planner.Result
	// AssetsHost overrides DefaultAssetsHost, for offline use.
	AssetsHost string
}

func (s Summary) assetsHost() string {
	if s.AssetsHost == "" {
		return DefaultAssetsHost
	}
	return s.AssetsHost
}

func unitLabels(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("unit %d", i+1)
	}
	return out
}

// CoverageChart plots coverage after each placed unit against the
// preference threshold.
func CoverageChart(s Summary) *charts.Line {
	res := s.Result
	coverage := make([]opts.LineData, len(res.History))
	target := make([]opts.LineData, len(res.History))
	for i, c := range res.History {
		coverage[i] = opts.LineData{Value: math.Round(c*10) / 10}
		target[i] = opts.LineData{Value: s.Preference.Threshold()}
	}

	subtitle := fmt.Sprintf("preference=%s final=%.1f%%", s.Preference, res.Coverage)
	if res.Exhausted {
		subtitle += " (candidates exhausted)"
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "420px", AssetsHost: s.assetsHost()}),
		charts.WithTitleOpts(opts.Title{Title: "Coverage per unit", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100, Name: "coverage (%)", NameLocation: "middle", NameGap: 40}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
	)
	line.SetXAxis(unitLabels(len(res.History))).
		AddSeries("coverage", coverage,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		).
		AddSeries("target", target)
	return line
}

// HitsChart shows the ray hits of each unit.
func HitsChart(s Summary) *charts.Bar {
	units := s.Result.Units
	hits := make([]opts.BarData, len(units))
	labels := make([]string, len(units))
	for i, u := range units {
		hits[i] = opts.BarData{Value: u.Hits}
		labels[i] = fmt.Sprintf("unit %d (%s)", i+1, u.Fixture)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "420px", AssetsHost: s.assetsHost()}),
		charts.WithTitleOpts(opts.Title{Title: "Hits per unit"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).
		AddSeries("hits", hits,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// WriteHTML renders the coverage and hits charts as one page.
func WriteHTML(w io.Writer, s Summary) error {
	title := s.Title
	if title == "" {
		title = "Lighting plan"
	}
	if s.Session != "" {
		title = fmt.Sprintf("%s %s", title, s.Session)
	}
	if d := s.Dimensions; d.Volume > 0 {
		title = fmt.Sprintf("%s: %.1f x %.1f x %.1f m, %.1f m3", title, d.Width, d.Length, d.Height, d.Volume)
	}

	page := components.NewPage()
	page.PageTitle = title
	page.SetAssetsHost(s.assetsHost())
	page.AddCharts(CoverageChart(s), HitsChart(s))
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	return nil
}
