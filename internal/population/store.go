// Package population holds the working set of candidate vectors.
package population

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/iwvelando/strategy-optimizer/internal/space"
)

// ErrInvalidPopulation is returned for unusable population settings or data.
var ErrInvalidPopulation = errors.New("invalid population")

// Store owns the population. It is not safe for concurrent mutation; the run
// loop is the single writer and workers only see snapshots.
type Store struct {
	space   *space.Space
	vectors []space.Vector
}

// New samples scaleFactor * k candidates uniformly within the space bounds.
func New(s *space.Space, scaleFactor int, rng *rand.Rand) (*Store, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: parameter space cannot be nil", ErrInvalidPopulation)
	}
	if scaleFactor < 1 {
		return nil, fmt.Errorf("%w: scale factor %d must be at least 1", ErrInvalidPopulation, scaleFactor)
	}

	size := scaleFactor * s.Dimensionality()
	vectors := make([]space.Vector, size)
	for i := range vectors {
		vectors[i] = s.Random(rng)
	}
	return &Store{space: s, vectors: vectors}, nil
}

// Restore rebuilds a store from previously saved vectors, e.g. a checkpoint.
func Restore(s *space.Space, vectors []space.Vector) (*Store, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: parameter space cannot be nil", ErrInvalidPopulation)
	}
	restored := make([]space.Vector, len(vectors))
	for i, v := range vectors {
		merged := s.Merge(v)
		if err := s.Check(merged); err != nil {
			return nil, fmt.Errorf("%w: vector %d: %v", ErrInvalidPopulation, i, err)
		}
		restored[i] = merged
	}
	return &Store{space: s, vectors: restored}, nil
}

// Space returns the parameter space the population lives in.
func (p *Store) Space() *space.Space {
	return p.space
}

// Len is the fixed population size.
func (p *Store) Len() int {
	if p == nil {
		return 0
	}
	return len(p.vectors)
}

// Get returns a copy of the vector at index i.
func (p *Store) Get(i int) space.Vector {
	return p.vectors[i].Clone()
}

// Snapshot returns a deep copy of the whole population.
func (p *Store) Snapshot() []space.Vector {
	out := make([]space.Vector, len(p.vectors))
	for i, v := range p.vectors {
		out[i] = v.Clone()
	}
	return out
}

// Replace stores a copy of v at index i. The vector must belong to the space.
func (p *Store) Replace(i int, v space.Vector) error {
	if i < 0 || i >= len(p.vectors) {
		return fmt.Errorf("%w: index %d outside population of %d", ErrInvalidPopulation, i, len(p.vectors))
	}
	if err := p.space.Check(v); err != nil {
		return fmt.Errorf("%w: replacement at %d: %v", ErrInvalidPopulation, i, err)
	}
	p.vectors[i] = v.Clone()
	return nil
}
