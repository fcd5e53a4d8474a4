package services

import (
	"math/rand/v2"
	"sync"

	"github.com/akagifreeez/gemini-key-pool/internal/models"
)

// Selector draws one enabled key uniformly at random per call.
type Selector struct {
	registry *KeyRegistry

	mu  sync.Mutex // rand.Rand is not safe for concurrent use
	rng *rand.Rand
}

// NewSelector creates a selector over registry. A nil src is seeded randomly;
// tests pass a fixed PCG source for reproducible draws.
func NewSelector(registry *KeyRegistry, src rand.Source) *Selector {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Selector{
		registry: registry,
		rng:      rand.New(src),
	}
}

// Pick returns a random enabled key or ErrNoAvailableKey.
func (s *Selector) Pick() (models.KeyRecord, error) {
	key, ok := s.registry.pickEnabled(s.intN)
	if !ok {
		return models.KeyRecord{}, ErrNoAvailableKey
	}
	return key, nil
}

func (s *Selector) intN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}
