package testutil

import "math/rand"

// Rand returns a fixed-seed random source for deterministic schedules.
func Rand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
