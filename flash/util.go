package flash

import (
	"golang.org/x/exp/constraints"
)

// ceilDiv will return the number of d sized units needed to hold n
func ceilDiv[T constraints.Unsigned](n, d T) T {
	if n == 0 {
		return 0
	}
	return (n-1)/d + 1
}

// min will return the minimum of the two values
func min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// max will return the maximum of the two values
func max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// firstMismatch will return the index of the first byte that differs between
// the two buffers, or -1 if they are identical over the expected length
func firstMismatch(expected, actual []byte) int {
	for i := range expected {
		if i >= len(actual) || expected[i] != actual[i] {
			return i
		}
	}
	return -1
}
