package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/akagifreeez/gemini-key-pool/internal/metrics"
	"github.com/akagifreeez/gemini-key-pool/internal/models"
	"github.com/akagifreeez/gemini-key-pool/pkg/upstream"
)

const (
	defaultContentType = "application/json"
	notifyTimeout      = 5 * time.Second
)

// FailureNotifier is told about every failure after it has been logged.
// Calls run on their own goroutine with a bounded context.
type FailureNotifier interface {
	NotifyFailure(ctx context.Context, entry models.ErrorLogEntry)
}

// Upstream sends one request with the given key
type Upstream interface {
	Do(ctx context.Context, req upstream.Request, key string) (*upstream.Response, error)
}

// ProxyRequest is an inbound call headed upstream
type ProxyRequest struct {
	upstream.Request
	// InboundPath is the path as received, before any prefix was stripped.
	// It is what the error log records.
	InboundPath string
}

// ProxyForwarder sends each inbound call upstream with one randomly drawn
// key and reports the outcome. It never retries with another key.
type ProxyForwarder struct {
	selector  *Selector
	stats     *StatsAggregator
	errorLog  *ErrorLog
	upstream  Upstream
	metrics   *metrics.Metrics
	notifiers []FailureNotifier
	now       func() time.Time
}

type ForwarderOption func(*ProxyForwarder)

func WithMetrics(m *metrics.Metrics) ForwarderOption {
	return func(f *ProxyForwarder) { f.metrics = m }
}

func WithNotifiers(n ...FailureNotifier) ForwarderOption {
	return func(f *ProxyForwarder) { f.notifiers = append(f.notifiers, n...) }
}

func WithClock(now func() time.Time) ForwarderOption {
	return func(f *ProxyForwarder) { f.now = now }
}

func NewProxyForwarder(selector *Selector, stats *StatsAggregator, errorLog *ErrorLog, up Upstream, opts ...ForwarderOption) *ProxyForwarder {
	f := &ProxyForwarder{
		selector: selector,
		stats:    stats,
		errorLog: errorLog,
		upstream: up,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Forward relays req upstream. Any upstream status is returned as a Response
// with a nil error; non-2xx statuses are still counted and logged as failures.
// Errors are ErrNoAvailableKey or *TransportError.
//
// Cancellation of ctx is not propagated: the upstream exchange runs to
// completion (or to the client timeout) even if the caller goes away.
func (f *ProxyForwarder) Forward(ctx context.Context, req ProxyRequest) (*upstream.Response, error) {
	inboundPath := req.InboundPath
	if inboundPath == "" {
		inboundPath = req.Path
	}

	key, err := f.selector.Pick()
	if err != nil {
		f.metrics.RecordOutcome(metrics.OutcomeNoKey)
		log.Warn().Str("path", inboundPath).Msg("No enabled API key available")
		f.logFailure(models.NoKeySentinel, NoAvailableKeyMessage, inboundPath, nil)
		return nil, ErrNoAvailableKey
	}

	start := time.Now()
	resp, err := f.upstream.Do(context.WithoutCancel(ctx), req.Request, key.Key)
	f.metrics.ObserveUpstream(time.Since(start))

	if err != nil {
		f.stats.Record(key.Key, false)
		f.metrics.RecordOutcome(metrics.OutcomeTransportError)
		log.Error().Err(err).Str("key", models.MaskKey(key.Key)).Str("path", inboundPath).Msg("Upstream transport failure")
		f.logFailure(key.Key, err.Error(), inboundPath, nil)
		return nil, &TransportError{Err: err}
	}

	if resp.ContentType == "" {
		resp.ContentType = defaultContentType
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.stats.Record(key.Key, false)
		f.metrics.RecordOutcome(metrics.OutcomeUpstreamError)
		log.Warn().Int("status", resp.StatusCode).Str("key", models.MaskKey(key.Key)).Str("path", inboundPath).Msg("Upstream returned error status")
		body := string(resp.Body)
		f.logFailure(key.Key, fmt.Sprintf("HTTP %d", resp.StatusCode), inboundPath, &body)
		return resp, nil
	}

	f.stats.Record(key.Key, true)
	f.metrics.RecordOutcome(metrics.OutcomeSuccess)
	return resp, nil
}

func (f *ProxyForwarder) logFailure(keyID, message, path string, responseBody *string) {
	entry := NewErrorLogEntry(f.now(), keyID, message, path, responseBody)
	f.errorLog.Append(entry)

	for _, n := range f.notifiers {
		go func(n FailureNotifier) {
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			n.NotifyFailure(ctx, entry)
		}(n)
	}
}
