package scope

import "github.com/dchest/siphash"

// hash32 computes a non-zero 32-bit hash of name, salted per table by k0/k1.
// Zero results are remapped to 1 so a zero hash can mean "uncomputed".
func hash32(k0, k1 uint64, name []byte) uint32 {
	h := uint32(siphash.Hash(k0, k1, name))
	if h == 0 {
		h = 1
	}
	return h
}
