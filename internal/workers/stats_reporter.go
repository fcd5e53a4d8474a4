package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/akagifreeez/gemini-key-pool/internal/metrics"
	"github.com/akagifreeez/gemini-key-pool/internal/services"
)

// StatsReporter periodically logs a pool summary and refreshes the pool gauges
type StatsReporter struct {
	registry *services.KeyRegistry
	stats    *services.StatsAggregator
	errorLog *services.ErrorLog
	metrics  *metrics.Metrics
	interval time.Duration
	printer  *message.Printer
}

// NewStatsReporter creates a new StatsReporter worker
func NewStatsReporter(registry *services.KeyRegistry, stats *services.StatsAggregator, errorLog *services.ErrorLog, m *metrics.Metrics, interval time.Duration) *StatsReporter {
	return &StatsReporter{
		registry: registry,
		stats:    stats,
		errorLog: errorLog,
		metrics:  m,
		interval: interval,
		printer:  message.NewPrinter(language.English),
	}
}

// Start reports until ctx is cancelled. A non-positive interval disables it.
func (s *StatsReporter) Start(ctx context.Context) {
	if s.interval <= 0 {
		log.Info().Msg("Stats reporter disabled")
		return
	}
	log.Info().Dur("interval", s.interval).Msg("Starting stats reporter")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stats reporter stopped")
			return
		case <-ticker.C:
			s.Report()
		}
	}
}

// Report takes one snapshot, updates gauges and logs it
func (s *StatsReporter) Report() {
	enabled, disabled := s.registry.Counts()
	snapshot := s.stats.Snapshot()
	logSize := s.errorLog.Len()

	s.metrics.SetPoolSize(enabled, disabled)
	s.metrics.SetErrorLogSize(logSize)

	event := log.Info()
	if enabled == 0 {
		event = log.Warn()
	}
	event.
		Int("enabled_keys", enabled).
		Int("disabled_keys", disabled).
		Str("total_requests", s.printer.Sprintf("%d", snapshot.TotalRequests)).
		Str("total_errors", s.printer.Sprintf("%d", snapshot.TotalErrors)).
		Float64("success_rate", snapshot.SuccessRate).
		Int("error_log_entries", logSize).
		Msg("Key pool summary")
}
