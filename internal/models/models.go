package models

import (
	"time"
)

// NoKeySentinel is recorded as the key of failures that happened before any key was chosen.
const NoKeySentinel = "N/A"

// ErrorLogEntry is an immutable record of one failed proxied call
type ErrorLogEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	KeyID       string    `json:"apiKey"`
	Message     string    `json:"error"`
	RequestPath string    `json:"request"`
	// Present only when an upstream body was captured
	ResponseBody *string `json:"response,omitempty"`
}

// GlobalStats aggregates outcomes across the whole pool
type GlobalStats struct {
	TotalRequests int64     `json:"totalRequests"`
	TotalErrors   int64     `json:"totalErrors"`
	SuccessRate   float64   `json:"successRate"`
	LastResetAt   time.Time `json:"lastReset"`
}

// ComputeSuccessRate returns the success percentage, 100 when nothing was recorded yet.
func ComputeSuccessRate(total, errors int64) float64 {
	if total == 0 {
		return 100
	}
	return float64(total-errors) / float64(total) * 100
}

// LogPage is the paginated error log response
type LogPage struct {
	Logs  []ErrorLogEntry `json:"logs"`
	Total int             `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}
