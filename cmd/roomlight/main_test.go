package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/roomlight/internal/geom"
	"github.com/banshee-data/roomlight/internal/monitoring"
)

// execute runs the command tree without fang's styling.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	monitoring.SetLogger(nil)
	return stdout.String(), stderr.String(), err
}

func TestParseVec(t *testing.T) {
	v, err := parseVec(" 1.5, -2,3 ")
	require.NoError(t, err)
	assert.Equal(t, r3.Vec{X: 1.5, Y: -2, Z: 3}, v)

	for _, bad := range []string{"", "1,2", "1,2,x", "1,2,3,4"} {
		if _, err := parseVec(bad); err == nil {
			t.Errorf("parseVec(%q) succeeded, want error", bad)
		}
	}
}

func TestParseBox(t *testing.T) {
	b, err := parseBox("1,0,1,-1,-1,-1")
	require.NoError(t, err)
	want := geom.AABB{Min: r3.Vec{X: -1, Y: -1, Z: -1}, Max: r3.Vec{X: 1, Z: 1}}
	if diff := cmp.Diff(want, b); diff != "" {
		t.Errorf("parseBox mismatch (-want +got):\n%s", diff)
	}
	_, err = parseBox("1,2,3")
	assert.ErrorContains(t, err, "--obstacle")
}

func TestPlanesCommand(t *testing.T) {
	out, _, err := execute(t, "planes", "--synthetic", "4x2.5x5", "--divisions", "4", "--table")
	require.NoError(t, err)
	assert.Contains(t, out, "TAG")
	assert.Contains(t, out, "7 planes: floor=1 ceiling=1 wall=4 table=1 unknown=0")
}

func TestVolumeCommand(t *testing.T) {
	out, _, err := execute(t, "volume", "--synthetic", "4x2.5x5", "--divisions", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "volume 50.0 m³")
	assert.Contains(t, out, "floor+ceiling+walls")

	out, _, err = execute(t, "volume", "--synthetic", "4x2.5x5", "--divisions", "4", "--units", "imperial")
	require.NoError(t, err)
	assert.Contains(t, out, "volume 1765.7 ft³")
}

func TestPlanCommand(t *testing.T) {
	dir := t.TempDir()
	plot := filepath.Join(dir, "out", "coverage.png")
	html := filepath.Join(dir, "out", "plan.html")

	out, errOut, err := execute(t, "plan",
		"--synthetic", "4x2.5x5", "--divisions", "6",
		"--outlet", "0,0,0",
		"--outlet", "2,-1.3,0",
		"--outlet", "-2,-1.3,1",
		"--outlet", "0,-1.6,-2",
		"--plot", plot,
		"--report", html,
	)
	require.NoError(t, err)
	assert.Contains(t, errOut, "skipping outlet")
	assert.NotContains(t, errOut, "only")

	// Medium preference in a 50 m3 room starts with a type B.
	assert.Regexp(t, regexp.MustCompile(`(?m)^1\s+B\s`), out)
	assert.Contains(t, out, "medium preference 50%")
	assert.Contains(t, out, "coverage plot written")

	for _, p := range []string{plot, html} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

func TestPlanCommandUsesPlaneCentres(t *testing.T) {
	out, errOut, err := execute(t, "plan", "--synthetic", "4x2.5x5", "--divisions", "4", "--preference", "low",
		"--obstacle", "-0.5,-1.6,-0.5,0.5,-0.6,0.5")
	require.NoError(t, err)
	assert.Empty(t, errOut)
	assert.Contains(t, out, "low preference 30%")
}

func TestPlanCommandTimed(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "tuning.json")
	require.NoError(t, os.WriteFile(cfg, []byte(`{"scan_interval": "1ms", "preference": "high"}`), 0644))

	out, _, err := execute(t, "plan", "--synthetic", "4x2.5x5", "--divisions", "4", "--timed", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "high preference 80%")
	assert.Contains(t, out, "volume 50.0")
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no source", []string{"volume"}, "mesh"},
		{"both sources", []string{"volume", "--mesh", "a.glb", "--synthetic", "1x1x1"}, "mesh"},
		{"bad units", []string{"volume", "--synthetic", "4x2.5x5", "--units", "cubits"}, "invalid units"},
		{"bad size", []string{"planes", "--synthetic", "4x2.5"}, "--synthetic"},
		{"eye above ceiling", []string{"planes", "--synthetic", "4x1.5x5"}, "eye height"},
		{"bad preference", []string{"plan", "--synthetic", "4x2.5x5", "--preference", "dazzling"}, "unknown preference"},
		{"bad outlet", []string{"plan", "--synthetic", "4x2.5x5", "--outlet", "1,2"}, "--outlet"},
		{"missing mesh", []string{"planes", "--mesh", "does-not-exist.glb"}, "open gltf"},
		{"missing config", []string{"volume", "--synthetic", "4x2.5x5", "--config", "nope.json"}, "config"},
	}
	for _, tt := range tests {
		_, _, err := execute(t, tt.args...)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: error = %v, want it to mention %q", tt.name, err, tt.want)
		}
	}
}

func TestFlatSyntheticRoomRejected(t *testing.T) {
	_, _, err := execute(t, "volume", "--synthetic", "4x0x5")
	assert.ErrorContains(t, err, "dimensions must be positive")
}

func TestRunThroughFang(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"volume", "--synthetic", "4x2.5x5", "--divisions", "2"}, &stdout, &stderr)
	monitoring.SetLogger(nil)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "volume 50.0")
}
