package planner

import (
	"fmt"
	"math"
	"strings"
)

// Preference is the requested brightness. Its value is the coverage
// percentage that satisfies it.
type Preference int32

const (
	Low    Preference = 30
	Medium Preference = 50
	High   Preference = 80
)

// ParsePreference accepts "low", "medium" or "high" in any case.
func ParsePreference(s string) (Preference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return Low, nil
	case "medium", "":
		return Medium, nil
	case "high":
		return High, nil
	default:
		return 0, fmt.Errorf("unknown preference %q: must be low, medium or high", s)
	}
}

func (p Preference) String() string {
	switch p {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return fmt.Sprintf("Preference(%d)", int32(p))
	}
}

// Threshold returns the coverage percentage that satisfies p.
func (p Preference) Threshold() float64 {
	return float64(p)
}

// Satisfied reports whether coverage, a percentage, meets p.
func (p Preference) Satisfied(coverage float64) bool {
	return coverage >= p.Threshold()
}

// FixtureType names one of the fixed fixture models.
type FixtureType string

const (
	TypeA FixtureType = "A"
	TypeB FixtureType = "B"
	TypeC FixtureType = "C"
)

// FixtureSpec describes a fixture model. Lux doubles as its reach in metres.
type FixtureSpec struct {
	Lux        float64
	Durability int // years
	Watt       int
}

var fixtureSpecs = map[FixtureType]FixtureSpec{
	TypeA: {Lux: 4, Durability: 3, Watt: 100},
	TypeB: {Lux: 3, Durability: 4, Watt: 70},
	TypeC: {Lux: 1, Durability: 6, Watt: 10},
}

// ParseFixtureType accepts "A", "B" or "C", optionally prefixed with "type".
func ParseFixtureType(s string) (FixtureType, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	s = strings.TrimSpace(strings.TrimPrefix(s, "TYPE"))
	ft := FixtureType(s)
	if _, ok := fixtureSpecs[ft]; !ok {
		return "", fmt.Errorf("unknown fixture type %q", s)
	}
	return ft, nil
}

// Spec returns the model data of f. Unknown types return the zero spec.
func (f FixtureType) Spec() FixtureSpec {
	return fixtureSpecs[f]
}

// EnergyPerArea is the power drawn per square metre lit, treating the lit
// area as a disc of radius Lux.
func (s FixtureSpec) EnergyPerArea() float64 {
	if s.Lux <= 0 {
		return 0
	}
	return float64(s.Watt) / (math.Pi * s.Lux * s.Lux)
}

// FirstPick selects the fixture for the first unit from the room volume in
// cubic metres.
func FirstPick(p Preference, volume float64) FixtureType {
	switch p {
	case High:
		if volume > 60 {
			return TypeA
		}
		return TypeB
	case Low:
		switch {
		case volume > 120:
			return TypeA
		case volume > 65:
			return TypeB
		default:
			return TypeC
		}
	default:
		switch {
		case volume > 70:
			return TypeA
		case volume > 35:
			return TypeB
		default:
			return TypeC
		}
	}
}

// FollowingPick selects the fixture for a later unit from the coverage
// percentage reached so far.
func FollowingPick(p Preference, coverage float64) FixtureType {
	switch p {
	case High:
		if coverage < 50 {
			return TypeA
		}
		return TypeB
	case Low:
		switch {
		case coverage < 5:
			return TypeA
		case coverage < 15:
			return TypeB
		default:
			return TypeC
		}
	default:
		if coverage < 40 {
			return TypeA
		}
		return TypeB
	}
}
