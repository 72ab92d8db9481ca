// Package mathutil provides generic ordered-value helper functions.
package mathutil

import "cmp"

// Min returns the smaller of two ordered values.
func Min[T cmp.Ordered](a, b T) T {
	if a < b {
		return a
	}

	return b
}

// Max returns the larger of two ordered values.
func Max[T cmp.Ordered](a, b T) T {
	if a < b {
		return b
	}

	return a
}

// Clamp limits v to the inclusive range [lo, hi].
func Clamp[T cmp.Ordered](v, lo, hi T) T {
	return Max(lo, Min(v, hi))
}
