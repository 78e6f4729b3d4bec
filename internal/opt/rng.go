package opt

import "math/rand"

// defaultSeed replaces a zero seed so runs are reproducible by default.
const defaultSeed int64 = 1

// rngFromSeed never seeds from the clock; seed 0 maps to defaultSeed.
func rngFromSeed(seed int64) *rand.Rand {
	if seed == 0 {
		seed = defaultSeed
	}
	return rand.New(rand.NewSource(seed))
}

// NewRand returns the generator the solver would use for seed.
func NewRand(seed int64) *rand.Rand { return rngFromSeed(seed) }

// deriveSeed mixes a parent seed and a stream id with the SplitMix64 finalizer.
// Multi-start uses it to give each restart an independent, reproducible stream.
func deriveSeed(parent int64, stream uint64) int64 {
	if parent == 0 {
		parent = defaultSeed
	}
	x := uint64(parent) ^ (stream + 0x9e3779b97f4a7c15)
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x ^= x >> 31
	return int64(x)
}

// shuffleIntsInPlace is a Fisher-Yates shuffle driven by rng.
func shuffleIntsInPlace(a []int, rng *rand.Rand) {
	for i := len(a) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		a[i], a[j] = a[j], a[i]
	}
}
