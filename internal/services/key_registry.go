package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/akagifreeez/gemini-key-pool/internal/models"
)

// KeyRegistry owns the pooled credentials. The same lock also guards the
// global counters held by StatsAggregator so one outcome is applied atomically.
type KeyRegistry struct {
	mu    sync.RWMutex
	keys  []*models.KeyRecord // insertion order
	index map[string]*models.KeyRecord
	now   func() time.Time
}

// NewKeyRegistry creates an empty registry. A nil clock defaults to time.Now.
func NewKeyRegistry(now func() time.Time) *KeyRegistry {
	if now == nil {
		now = time.Now
	}
	return &KeyRegistry{
		index: make(map[string]*models.KeyRecord),
		now:   now,
	}
}

// Add pools a new enabled key. An empty name defaults to "Key N".
func (r *KeyRegistry) Add(secret, name string) (models.KeyRecord, error) {
	if secret == "" {
		return models.KeyRecord{}, ErrEmptyKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[secret]; exists {
		return models.KeyRecord{}, ErrDuplicateKey
	}

	if name == "" {
		name = fmt.Sprintf("Key %d", len(r.keys)+1)
	}

	rec := &models.KeyRecord{
		Key:       secret,
		Name:      name,
		Enabled:   true,
		CreatedAt: r.now(),
	}
	r.keys = append(r.keys, rec)
	r.index[secret] = rec

	log.Info().Str("key", models.MaskKey(secret)).Str("name", name).Int("pool_size", len(r.keys)).Msg("API key added")
	return copyRecord(rec), nil
}

// Remove deletes the key with the given secret. Unknown secrets are ignored.
func (r *KeyRegistry) Remove(secret string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[secret]; !ok {
		return false
	}
	delete(r.index, secret)

	kept := r.keys[:0]
	for _, k := range r.keys {
		if k.Key != secret {
			kept = append(kept, k)
		}
	}
	// Clear the dangling tail so removed records can be collected
	for i := len(kept); i < len(r.keys); i++ {
		r.keys[i] = nil
	}
	r.keys = kept

	log.Info().Str("key", models.MaskKey(secret)).Int("pool_size", len(r.keys)).Msg("API key removed")
	return true
}

// SetEnabled flips a key in or out of rotation. Unknown secrets are ignored.
func (r *KeyRegistry) SetEnabled(secret string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.index[secret]
	if !ok {
		return false
	}
	rec.Enabled = enabled

	log.Info().Str("key", models.MaskKey(secret)).Bool("enabled", enabled).Msg("API key status changed")
	return true
}

// List returns a copy of every key in insertion order
func (r *KeyRegistry) List() []models.KeyRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.KeyRecord, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, copyRecord(k))
	}
	return out
}

// Get looks up a key by its secret
func (r *KeyRegistry) Get(secret string) (models.KeyRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.index[secret]
	if !ok {
		return models.KeyRecord{}, false
	}
	return copyRecord(rec), true
}

// Counts returns the number of enabled and disabled keys
func (r *KeyRegistry) Counts() (enabled, disabled int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, k := range r.keys {
		if k.Enabled {
			enabled++
		} else {
			disabled++
		}
	}
	return enabled, disabled
}

// pickEnabled returns the enabled key at the index chosen by choose, which is
// called with the number of enabled keys while the read lock is held.
func (r *KeyRegistry) pickEnabled(choose func(n int) int) (models.KeyRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	enabled := make([]*models.KeyRecord, 0, len(r.keys))
	for _, k := range r.keys {
		if k.Enabled {
			enabled = append(enabled, k)
		}
	}
	if len(enabled) == 0 {
		return models.KeyRecord{}, false
	}
	return copyRecord(enabled[choose(len(enabled))]), true
}

func copyRecord(rec *models.KeyRecord) models.KeyRecord {
	c := *rec
	if rec.LastUsedAt != nil {
		t := *rec.LastUsedAt
		c.LastUsedAt = &t
	}
	return c
}
