package testutil

import "math/rand/v2"

// NewRand returns a generator whose sequence depends only on seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x5d5f_7665_7269_6679))
}
