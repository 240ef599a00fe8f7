// Package units provides shared constants and validation for acceleration
// units and recording timezones.
package units

import (
	"fmt"
	"strings"
)

// Unit constants
const (
	G    = "g"    // standard gravity
	MPS2 = "mps2" // metres per second squared
)

// StandardGravity is the divisor used to convert m/s² to g.
const StandardGravity = 9.81

// ValidUnits contains all valid unit values
var ValidUnits = []string{G, MPS2}

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

// ToG converts an acceleration sample in the given unit to g.
func ToG(v float64, unit string) (float64, error) {
	switch unit {
	case G:
		return v, nil
	case MPS2:
		return v / StandardGravity, nil
	default:
		return v, fmt.Errorf("unknown acceleration unit %q (valid: %s)", unit, GetValidUnitsString())
	}
}

// Converter returns a per-sample conversion function from unit to g.
func Converter(unit string) (func(float64) float64, error) {
	if _, err := ToG(0, unit); err != nil {
		return nil, err
	}
	if unit == G {
		return func(v float64) float64 { return v }, nil
	}
	return func(v float64) float64 { return v / StandardGravity }, nil
}
