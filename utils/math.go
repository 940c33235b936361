package utils

import "math"

// InputModulus maps value into the half-open range [min, max) by adding or subtracting whole
// multiples of max-min. The caller must ensure min < max.
func InputModulus(value, min, max float64) float64 {
	span := max - min
	offset := math.Mod(value-min, span)
	if offset < 0 {
		offset += span
	}
	// Mod of a tiny negative offset can round back up to span.
	if offset >= span {
		offset = 0
	}
	return min + offset
}

// Clamp bounds value to [lo, hi].
func Clamp(value, lo, hi float64) float64 {
	return math.Max(lo, math.Min(value, hi))
}

// IsFinite reports whether x is neither NaN nor an infinity.
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
