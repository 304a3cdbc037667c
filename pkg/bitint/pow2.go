// SPDX-License-Identifier: MIT
//
// Package bitint holds the small power-of-two helpers used to size analysis
// frames. FFT frame sizes must be powers of two; these checks run once at
// configuration time and never inside a tick.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size. Values <= 0 map to 1.
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

// IsPowerOfTwo reports whether n is a positive power of 2.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Log2 returns log2(n) for a power of two n, and -1 otherwise.
func Log2(n int) int {
	if !IsPowerOfTwo(n) {
		return -1
	}
	return bits.TrailingZeros(uint(n))
}
