// Package shuffle randomizes presented choice order with a reversible mapping.
package shuffle

import (
	"math/rand"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
)

// Mapping translates presented index -> original index: m[presented] = original.
type Mapping []int

// Original returns the original index behind a presented index.
func (m Mapping) Original(presented int) (int, bool) {
	if presented < 0 || presented >= len(m) {
		return 0, false
	}
	return m[presented], true
}

// Presented returns where an original index was shown to clients.
func (m Mapping) Presented(original int) (int, bool) {
	for p, o := range m {
		if o == original {
			return p, true
		}
	}
	return 0, false
}

// Inverse returns the original -> presented mapping.
func (m Mapping) Inverse() Mapping {
	inv := make(Mapping, len(m))
	for p, o := range m {
		inv[o] = p
	}
	return inv
}

// IsPermutation reports whether m is a permutation of [0..len(m)).
func (m Mapping) IsPermutation() bool {
	seen := make([]bool, len(m))
	for _, o := range m {
		if o < 0 || o >= len(m) || seen[o] {
			return false
		}
		seen[o] = true
	}
	return true
}

// Identity returns the mapping that leaves order unchanged.
func Identity(n int) Mapping {
	m := make(Mapping, n)
	for i := range m {
		m[i] = i
	}
	return m
}

// Apply returns choices in presented order.
func (m Mapping) Apply(choices []domain.Choice) []domain.Choice {
	out := make([]domain.Choice, len(m))
	for p, o := range m {
		out[p] = choices[o]
	}
	return out
}

// Shuffler produces uniformly random mappings. Safe for concurrent use.
type Shuffler struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a Shuffler seeded from the wall clock.
func New() *Shuffler {
	return NewWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewWithSource allows deterministic shuffles in tests.
func NewWithSource(src rand.Source) *Shuffler {
	return &Shuffler{rnd: rand.New(src)}
}

// Shuffle returns the presented choices and the mapping that produced them.
func (s *Shuffler) Shuffle(choices []domain.Choice) ([]domain.Choice, Mapping) {
	s.mu.Lock()
	perm := s.rnd.Perm(len(choices))
	s.mu.Unlock()

	m := Mapping(perm)
	return m.Apply(choices), m
}
