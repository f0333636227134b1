/*
Package bitint provides the power-of-two helpers used to size FFT
transforms. All functions are allocation free and constant time, so they
are safe to call from validation code and from the analysis hot path.

Usage:

	// Reject transform sizes the FFT cannot use
	if !bitint.IsPowerOfTwo(fftSize) { ... }

	// Suggest the nearest usable size in error messages
	suggested := bitint.NextPowerOfTwo(2000) // 2048

NextPowerOfTwo subtracts one before taking the bit length so that values
which already are a power of two map onto themselves:

	8 -> 7 (0111) -> Len 3 -> 1<<3 = 8
	9 -> 8 (1000) -> Len 4 -> 1<<4 = 16
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size.
// Non-positive inputs return 1.
//
//	Input  Output
//	2048   2048
//	2000   2048
//	0      1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
// A power of two has a single set bit, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
