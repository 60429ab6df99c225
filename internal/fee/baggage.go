// Package fee prices optional extras on a booking.
package fee

import "math"

const (
	// FreeBaggageKg is the checked baggage allowance included in every fare.
	FreeBaggageKg = 25.0
	// ExcessBaggageCentsPerKg is charged for every kilogram above the
	// allowance, pro rata for fractions.
	ExcessBaggageCentsPerKg = 1500
	// MaxBaggageKg is the heaviest declaration accepted.
	MaxBaggageKg = 500.0
)

// Baggage returns the excess baggage fee in cents for weightKg.  Weights at
// or below the allowance, negative weights included, cost nothing.
func Baggage(weightKg float64) int64 {
	if weightKg <= FreeBaggageKg || math.IsNaN(weightKg) {
		return 0
	}
	return int64(math.Round((weightKg - FreeBaggageKg) * ExcessBaggageCentsPerKg))
}
