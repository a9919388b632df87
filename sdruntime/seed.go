package sdruntime

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
)

// RandomSeedValue asks the backend to pick its own seed.
const RandomSeedValue int64 = -1

// maxSeed keeps drawn seeds inside the 32-bit range every backend accepts.
const maxSeed = 1 << 32

// Generator is the run's deterministic random source. It is created once
// from the user seed and shared by every batch; it is never reseeded, so
// the seed a batch receives depends on how many draws came before it.
//
// A nil *Generator is valid and means "unseeded": Next returns
// RandomSeedValue.
type Generator struct {
	seed  int64
	rng   *mrand.Rand
	draws int
}

// NewGenerator seeds a PCG source from seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		seed: seed,
		rng:  mrand.New(mrand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15)),
	}
}

// Next draws the seed for the next pipeline invocation.
func (g *Generator) Next() int64 {
	if g == nil {
		return RandomSeedValue
	}
	g.draws++
	return g.rng.Int64N(maxSeed)
}

// Seed reports the seed the generator was built from.
func (g *Generator) Seed() (int64, bool) {
	if g == nil {
		return 0, false
	}
	return g.seed, true
}

// Draws counts calls to Next.
func (g *Generator) Draws() int {
	if g == nil {
		return 0
	}
	return g.draws
}

// RandomSeed returns a non-negative seed from crypto/rand.
func RandomSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 42
	}
	return int64(binary.LittleEndian.Uint64(buf[:]) % maxSeed)
}
