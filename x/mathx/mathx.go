// Package mathx holds small generic helpers shared by the bus core and
// drivers. Integer-only, TinyGo-friendly.
package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// CeilDiv returns ceil(a/b) for positive integers. b == 0 yields 0.
func CeilDiv[T constraints.Integer](a, b T) T {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
