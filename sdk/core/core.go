// Copyright 2025 Zintix Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package core provides the seeded random source used by every
// stochastic step in monocal (multi-start perturbations).
//
// The generator is PCG, seeded deterministically: the same seed must
// produce the same output sequence in the same version, because
// calibration runs have to be reproducible for audit and replay.
package core

import (
	"crypto/rand"
	"math"
	"math/big"
	r2 "math/rand/v2"
)

// Core wraps a PCG generator and exposes the sampling methods the
// fitting code needs. It also satisfies math/rand/v2 Source (Uint64),
// so it can be plugged into gonum distuv distributions directly.
type Core struct {
	rng *r2.Rand
}

// NewDefault builds a Core with a crypto/rand derived seed.
func NewDefault() *Core {
	seed, _ := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	return NewWithSeed(seed.Int64())
}

// NewWithSeed builds a deterministic Core. The 64-bit seed is expanded
// into the 128-bit PCG state with splitmix64 so that nearby seeds do
// not produce correlated streams.
func NewWithSeed(seed int64) *Core {
	x := uint64(seed) ^ 0x9e3779b97f4a7c15
	hi := splitmix64(x)
	lo := splitmix64(x ^ 0xDA942042E4DD58B5)
	return &Core{rng: r2.New(r2.NewPCG(hi, lo))}
}

// Uint64 returns a uint64 sample. This is the rand/v2 Source method.
func (c *Core) Uint64() uint64 {
	return c.rng.Uint64()
}

// Float64 returns a sample in [0,1).
func (c *Core) Float64() float64 {
	return c.rng.Float64()
}

// NormFloat64 returns a standard normal sample.
func (c *Core) NormFloat64() float64 {
	return c.rng.NormFloat64()
}

// IntN returns a sample in [0,max); if max <= 0 it returns -1.
func (c *Core) IntN(max int) int {
	if max <= 0 {
		return -1
	}
	return c.rng.IntN(max)
}

// splitmix64 is the standard 64-bit state mixer.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
