package services

import (
	"github.com/rs/zerolog/log"

	"github.com/akagifreeez/gemini-key-pool/internal/models"
)

// StatsAggregator keeps the global counters. Its state is guarded by the
// registry lock so a key's counters and the totals always move together.
type StatsAggregator struct {
	registry *KeyRegistry
	stats    models.GlobalStats
}

func NewStatsAggregator(registry *KeyRegistry) *StatsAggregator {
	return &StatsAggregator{
		registry: registry,
		stats: models.GlobalStats{
			SuccessRate: 100,
			LastResetAt: registry.now(),
		},
	}
}

// Record applies one proxied call outcome. A secret that was removed while the
// call was in flight still counts toward the totals.
func (s *StatsAggregator) Record(secret string, success bool) {
	r := s.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.index[secret]; ok {
		now := r.now()
		rec.Requests++
		rec.LastUsedAt = &now
		if !success {
			rec.Errors++
		}
	}

	s.stats.TotalRequests++
	if !success {
		s.stats.TotalErrors++
	}
	s.stats.SuccessRate = models.ComputeSuccessRate(s.stats.TotalRequests, s.stats.TotalErrors)
}

// Snapshot returns a consistent copy of the global counters
func (s *StatsAggregator) Snapshot() models.GlobalStats {
	s.registry.mu.RLock()
	defer s.registry.mu.RUnlock()
	return s.stats
}

// Reset zeroes the totals and every key's counters. Keys and their
// enablement are left alone.
func (s *StatsAggregator) Reset() {
	r := s.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	s.stats = models.GlobalStats{
		SuccessRate: 100,
		LastResetAt: r.now(),
	}
	for _, k := range r.keys {
		k.Requests = 0
		k.Errors = 0
		k.LastUsedAt = nil
	}

	log.Info().Int("keys", len(r.keys)).Msg("Statistics reset")
}
