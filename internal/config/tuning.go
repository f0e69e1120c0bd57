package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the thresholds and budgets of the room pipeline.
// Every field is optional; the Get* accessors fall back to the built-in
// defaults for anything left out of the JSON.
type TuningConfig struct {
	// Plane detection
	MinArea                *float64 `json:"min_area,omitempty"`
	SnapToGravityDegrees   *float64 `json:"snap_to_gravity_degrees,omitempty"`
	PlaneDistanceTolerance *float64 `json:"plane_distance_tolerance,omitempty"`
	UpNormalThreshold      *float64 `json:"up_normal_threshold,omitempty"`

	// Cooperative scheduling
	FrameBudget *string `json:"frame_budget,omitempty"` // duration string like "8ms"

	// Coverage sampling
	CoverageSampleStride  *int `json:"coverage_sample_stride,omitempty"`
	CandidateSampleStride *int `json:"candidate_sample_stride,omitempty"`

	// Candidate placement
	RequiredCandidates *int     `json:"required_candidates,omitempty"`
	SurfaceTolerance   *float64 `json:"surface_tolerance,omitempty"`
	Preference         *string  `json:"preference,omitempty"` // low, medium or high

	// Scanning session
	ScanInterval        *string  `json:"scan_interval,omitempty"`     // duration string like "30s"
	MaxScanningTime     *string  `json:"max_scanning_time,omitempty"` // duration string like "120s"
	SufficientPlaneArea *float64 `json:"sufficient_plane_area,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a config with every field populated from the
// built-in defaults.
func DefaultTuningConfig() *TuningConfig {
	e := EmptyTuningConfig()
	return &TuningConfig{
		MinArea:                ptrFloat64(e.GetMinArea()),
		SnapToGravityDegrees:   ptrFloat64(e.GetSnapToGravityDegrees()),
		PlaneDistanceTolerance: ptrFloat64(e.GetPlaneDistanceTolerance()),
		UpNormalThreshold:      ptrFloat64(e.GetUpNormalThreshold()),
		FrameBudget:            ptrString(e.GetFrameBudget().String()),
		CoverageSampleStride:   ptrInt(e.GetCoverageSampleStride()),
		CandidateSampleStride:  ptrInt(e.GetCandidateSampleStride()),
		RequiredCandidates:     ptrInt(e.GetRequiredCandidates()),
		SurfaceTolerance:       ptrFloat64(e.GetSurfaceTolerance()),
		Preference:             ptrString(e.GetPreference()),
		ScanInterval:           ptrString(e.GetScanInterval().String()),
		MaxScanningTime:        ptrString(e.GetMaxScanningTime().String()),
		SufficientPlaneArea:    ptrFloat64(e.GetSufficientPlaneArea()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file keep their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory or
// one of its parents. Panics if the file cannot be loaded; intended for tests.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,       // from cmd/
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.MinArea != nil && *c.MinArea < 0 {
		return fmt.Errorf("min_area must be non-negative, got %f", *c.MinArea)
	}
	if c.SnapToGravityDegrees != nil {
		if *c.SnapToGravityDegrees < 0 || *c.SnapToGravityDegrees > 45 {
			return fmt.Errorf("snap_to_gravity_degrees must be between 0 and 45, got %f", *c.SnapToGravityDegrees)
		}
	}
	if c.UpNormalThreshold != nil {
		if *c.UpNormalThreshold <= 0 || *c.UpNormalThreshold > 1 {
			return fmt.Errorf("up_normal_threshold must be in (0, 1], got %f", *c.UpNormalThreshold)
		}
	}
	if c.PlaneDistanceTolerance != nil && *c.PlaneDistanceTolerance < 0 {
		return fmt.Errorf("plane_distance_tolerance must be non-negative, got %f", *c.PlaneDistanceTolerance)
	}
	if c.SurfaceTolerance != nil && *c.SurfaceTolerance < 0 {
		return fmt.Errorf("surface_tolerance must be non-negative, got %f", *c.SurfaceTolerance)
	}
	if c.CoverageSampleStride != nil && *c.CoverageSampleStride < 1 {
		return fmt.Errorf("coverage_sample_stride must be at least 1, got %d", *c.CoverageSampleStride)
	}
	if c.CandidateSampleStride != nil && *c.CandidateSampleStride < 1 {
		return fmt.Errorf("candidate_sample_stride must be at least 1, got %d", *c.CandidateSampleStride)
	}
	if c.RequiredCandidates != nil && *c.RequiredCandidates < 1 {
		return fmt.Errorf("required_candidates must be at least 1, got %d", *c.RequiredCandidates)
	}
	if c.Preference != nil {
		switch strings.ToLower(*c.Preference) {
		case "low", "medium", "high":
		default:
			return fmt.Errorf("preference must be low, medium or high, got %q", *c.Preference)
		}
	}

	for name, v := range map[string]*string{
		"frame_budget":      c.FrameBudget,
		"scan_interval":     c.ScanInterval,
		"max_scanning_time": c.MaxScanningTime,
	} {
		if v == nil || *v == "" {
			continue
		}
		if _, err := time.ParseDuration(*v); err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetFrameBudget returns the per-frame work budget. Zero disables slicing.
func (c *TuningConfig) GetFrameBudget() time.Duration {
	return durationOr(c.FrameBudget, 8*time.Millisecond)
}

// GetScanInterval returns how often a timed scan re-checks its planes.
func (c *TuningConfig) GetScanInterval() time.Duration {
	return durationOr(c.ScanInterval, 30*time.Second)
}

// GetMaxScanningTime returns the hard limit on a timed scan.
func (c *TuningConfig) GetMaxScanningTime() time.Duration {
	return durationOr(c.MaxScanningTime, 120*time.Second)
}

// GetMinArea returns the min_area value or the default.
func (c *TuningConfig) GetMinArea() float64 {
	if c.MinArea == nil {
		return 0.025
	}
	return *c.MinArea
}

// GetSnapToGravityDegrees returns the snap_to_gravity_degrees value or the default.
func (c *TuningConfig) GetSnapToGravityDegrees() float64 {
	if c.SnapToGravityDegrees == nil {
		return 5
	}
	return *c.SnapToGravityDegrees
}

// GetPlaneDistanceTolerance returns the plane_distance_tolerance value or the default.
func (c *TuningConfig) GetPlaneDistanceTolerance() float64 {
	if c.PlaneDistanceTolerance == nil {
		return 0.05
	}
	return *c.PlaneDistanceTolerance
}

// GetUpNormalThreshold returns the up_normal_threshold value or the default.
func (c *TuningConfig) GetUpNormalThreshold() float64 {
	if c.UpNormalThreshold == nil {
		return 0.9
	}
	return *c.UpNormalThreshold
}

// GetCoverageSampleStride returns the coverage_sample_stride value or the default.
func (c *TuningConfig) GetCoverageSampleStride() int {
	if c.CoverageSampleStride == nil {
		return 1
	}
	return *c.CoverageSampleStride
}

// GetCandidateSampleStride returns the candidate_sample_stride value or the default.
func (c *TuningConfig) GetCandidateSampleStride() int {
	if c.CandidateSampleStride == nil {
		return 100
	}
	return *c.CandidateSampleStride
}

// GetRequiredCandidates returns the required_candidates value or the default.
func (c *TuningConfig) GetRequiredCandidates() int {
	if c.RequiredCandidates == nil {
		return 3
	}
	return *c.RequiredCandidates
}

// GetSurfaceTolerance returns the surface_tolerance value or the default.
func (c *TuningConfig) GetSurfaceTolerance() float64 {
	if c.SurfaceTolerance == nil {
		return 0.05
	}
	return *c.SurfaceTolerance
}

// GetPreference returns the lower-cased preference or "medium".
func (c *TuningConfig) GetPreference() string {
	if c.Preference == nil || *c.Preference == "" {
		return "medium"
	}
	return strings.ToLower(*c.Preference)
}

// GetSufficientPlaneArea returns the sufficient_plane_area value or the default.
func (c *TuningConfig) GetSufficientPlaneArea() float64 {
	if c.SufficientPlaneArea == nil {
		return 10
	}
	return *c.SufficientPlaneArea
}
