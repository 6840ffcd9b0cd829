// Package hash implements the fast modular hash used to derive split
// membership and per-batch seeds.
package hash

// Hash mixes n with the salt s and reduces the result into the range 0..max-1.
func Hash(n uint32, s uint32, max uint32) uint32 {
	// mixing stage, mix input with salt using subtraction
	var m = uint32(n) - uint32(s)

	// hashing stage, use xor shift with prime coefficients
	m ^= m << 2
	m ^= m << 3
	m ^= m >> 5
	m ^= m >> 7
	m ^= m << 11
	m ^= m << 13
	m ^= m >> 17
	m ^= m << 19

	// mixing stage 2, mix input with salt using addition
	m += s

	// modular stage, Lemire's multiply shift instead of a modulo
	// https://lemire.me/blog/2016/06/27/a-fast-alternative-to-the-modulo-reduction/
	return uint32((uint64(m) * uint64(max)) >> 32)
}

// Hash64 hashes a 64 bit identifier by folding its high word into the salt.
func Hash64(n uint64, s uint32, max uint32) uint32 {
	return Hash(uint32(n), s^Hash(uint32(n>>32), s, 0xffffffff), max)
}

// Seed derives a deterministic 63 bit seed from a base seed and a path of
// indices (epoch, batch, ...). Distinct paths give unrelated seeds.
func Seed(base int64, path ...uint32) int64 {
	var lo = uint32(base)
	var hi = uint32(uint64(base) >> 32)
	for i, p := range path {
		lo = Hash(p, lo+uint32(i), 0xffffffff)
		hi = Hash(p^lo, hi, 0xffffffff)
	}
	return int64((uint64(hi)<<32 | uint64(lo)) >> 1)
}
