package utils

import (
	"math/rand"
	"sync"
	"time"
)

// RandSource is a seeded random number generator. A single search owns one
// source so the sequence of proposals is reproducible from the seed.
type RandSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeed returns a non-zero seed taken from the clock
func NewSeed() int64 {
	if seed := time.Now().UnixNano(); seed != 0 {
		return seed
	}
	return 1
}

// NewRandSource creates a new random source with the given seed.
// A zero seed uses NewSeed.
func NewRandSource(seed int64) *RandSource {
	if seed == 0 {
		seed = NewSeed()
	}
	return &RandSource{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Float64 returns a random float64 in [0.0, 1.0)
func (r *RandSource) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// Intn returns a random int in [0, n)
func (r *RandSource) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

// Int63 returns a non-negative random int64, useful for deriving child seeds
func (r *RandSource) Int63() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Int63()
}

// Perm returns a random permutation of [0, n)
func (r *RandSource) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Perm(n)
}

// NormFloat64 returns a normally distributed random number with mean and stddev
func (r *RandSource) NormFloat64(mean, stddev float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.NormFloat64()*stddev + mean
}

// BernoulliBool returns true with probability p, false otherwise
func (r *RandSource) BernoulliBool(p float64) bool {
	return r.Float64() < p
}

// UniformFloat64 returns a uniformly distributed random number in [min, max)
func (r *RandSource) UniformFloat64(min, max float64) float64 {
	return min + r.Float64()*(max-min)
}

// Global default random source, used for jitter only
var (
	defaultMu   sync.Mutex
	defaultRand = NewRandSource(0)
)

// SetSeed sets the seed for the default random source
func SetSeed(seed int64) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRand = NewRandSource(seed)
}

// Float64 returns a random float64 from the default source
func Float64() float64 {
	defaultMu.Lock()
	src := defaultRand
	defaultMu.Unlock()
	return src.Float64()
}
