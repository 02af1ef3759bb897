// Package randutil hands out independently seeded random generators so that
// parallel workers never share a stream.
package randutil

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Seeder produces fresh seeds for per-call generators. With a fixed seed the
// sequence of generators is reproducible; the order in which seeds are drawn
// is the only thing that determines the streams handed out.
type Seeder struct {
	mu     sync.Mutex
	master *rand.Rand
}

// NewSeeder creates a seeder. A zero seed is replaced by the current time.
func NewSeeder(seed uint64) *Seeder {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Seeder{master: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Next returns the next seed.
func (s *Seeder) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.master.Uint64()
}

// Rand returns a new generator seeded from the next two seeds.
func (s *Seeder) Rand() *rand.Rand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rand.New(rand.NewPCG(s.master.Uint64(), s.master.Uint64()))
}

// FromSeed builds a generator from a seed obtained with Next.
func FromSeed(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Sample draws k distinct indices from [0, n) uniformly without replacement,
// in draw order. k is capped at n.
func Sample(rng *rand.Rand, n, k int) []int {
	if k > n {
		k = n
	}
	if k <= 0 {
		return []int{}
	}
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + rng.IntN(n-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm[:k]
}

// SampleExcluding draws k distinct indices from [0, n) without exclude. When
// fewer than k candidates exist the draws fall back to sampling with
// replacement from the candidates, or from exclude itself when it is the only
// index.
func SampleExcluding(rng *rand.Rand, n, k, exclude int) []int {
	candidates := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if i != exclude {
			candidates = append(candidates, i)
		}
	}
	out := make([]int, k)
	if len(candidates) == 0 {
		for i := range out {
			out[i] = exclude
		}
		return out
	}
	if len(candidates) < k {
		for i := range out {
			out[i] = candidates[rng.IntN(len(candidates))]
		}
		return out
	}
	for i := 0; i < k; i++ {
		j := i + rng.IntN(len(candidates)-i)
		candidates[i], candidates[j] = candidates[j], candidates[i]
		out[i] = candidates[i]
	}
	return out
}
