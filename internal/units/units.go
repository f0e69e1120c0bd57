// Package units provides shared constants and conversion for display units
package units

import "strings"

// Unit constants
const (
	Metric   = "metric"
	Imperial = "imperial"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Metric, Imperial}

const (
	feetPerMetre         = 3.28084
	squareFeetPerSquareM = 10.7639
	cubicFeetPerCubicM   = 35.3147
)

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertLength converts metres to the target system.
func ConvertLength(m float64, target string) float64 {
	if target == Imperial {
		return m * feetPerMetre
	}
	return m
}

// ConvertArea converts square metres to the target system.
func ConvertArea(m2 float64, target string) float64 {
	if target == Imperial {
		return m2 * squareFeetPerSquareM
	}
	return m2
}

// ConvertVolume converts cubic metres to the target system.
func ConvertVolume(m3 float64, target string) float64 {
	if target == Imperial {
		return m3 * cubicFeetPerCubicM
	}
	return m3
}

// LengthSuffix returns the display suffix for lengths.
func LengthSuffix(target string) string {
	if target == Imperial {
		return "ft"
	}
	return "m"
}

// VolumeSuffix returns the display suffix for volumes.
func VolumeSuffix(target string) string {
	if target == Imperial {
		return "ft³"
	}
	return "m³"
}
