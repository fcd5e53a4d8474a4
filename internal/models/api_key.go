package models

import (
	"time"
)

// KeyRecord is one credential in the pool. Key is the secret itself.
type KeyRecord struct {
	Key        string     `json:"key"`
	Name       string     `json:"name"`
	Enabled    bool       `json:"enabled"`
	Requests   int64      `json:"requests"`
	Errors     int64      `json:"errors"`
	LastUsedAt *time.Time `json:"lastUsed,omitempty"` // nil until first use
	CreatedAt  time.Time  `json:"created"`
}

// MaskKey shortens a secret for logs and alerts.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
