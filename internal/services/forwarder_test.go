package services

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/akagifreeez/gemini-key-pool/internal/metrics"
	"github.com/akagifreeez/gemini-key-pool/internal/models"
	"github.com/akagifreeez/gemini-key-pool/pkg/upstream"
)

type fakeUpstream struct {
	mu      sync.Mutex
	resp    *upstream.Response
	err     error
	keys    []string
	ctxErrs []error
}

func (f *fakeUpstream) Do(ctx context.Context, req upstream.Request, key string) (*upstream.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if f.err != nil {
		return nil, f.err
	}
	r := *f.resp
	return &r, nil
}

type recordingNotifier struct {
	got chan models.ErrorLogEntry
}

func (n *recordingNotifier) NotifyFailure(ctx context.Context, entry models.ErrorLogEntry) {
	n.got <- entry
}

type forwarderFixture struct {
	registry  *KeyRegistry
	stats     *StatsAggregator
	errorLog  *ErrorLog
	up        *fakeUpstream
	metrics   *metrics.Metrics
	notifier  *recordingNotifier
	forwarder *ProxyForwarder
}

func newForwarderFixture(up *fakeUpstream, keys ...string) *forwarderFixture {
	registry := NewKeyRegistry(nil)
	for _, k := range keys {
		registry.Add(k, "")
	}
	stats := NewStatsAggregator(registry)
	errorLog := NewErrorLog(10)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	notifier := &recordingNotifier{got: make(chan models.ErrorLogEntry, 4)}

	return &forwarderFixture{
		registry: registry,
		stats:    stats,
		errorLog: errorLog,
		up:       up,
		metrics:  m,
		notifier: notifier,
		forwarder: NewProxyForwarder(NewSelector(registry, rand.NewPCG(1, 1)), stats, errorLog, up,
			WithMetrics(m),
			WithNotifiers(notifier),
		),
	}
}

func generateRequest() ProxyRequest {
	return ProxyRequest{
		Request: upstream.Request{
			Method: http.MethodPost,
			Path:   "/v1beta/models/gemini-pro:generateContent",
			Body:   []byte(`{"contents":[]}`),
		},
		InboundPath: "/gemini/v1beta/models/gemini-pro:generateContent",
	}
}

func TestForward_Success(t *testing.T) {
	up := &fakeUpstream{resp: &upstream.Response{StatusCode: 200, ContentType: "application/json", Body: []byte(`{"ok":true}`)}}
	fx := newForwarderFixture(up, "only-key")

	resp, err := fx.forwarder.Forward(context.Background(), generateRequest())
	if err != nil {
		t.Fatalf("Forward() error: %v", err)
	}
	if resp.StatusCode != 200 || string(resp.Body) != `{"ok":true}` {
		t.Errorf("resp = %d %s", resp.StatusCode, resp.Body)
	}
	if len(up.keys) != 1 || up.keys[0] != "only-key" {
		t.Errorf("upstream keys = %v", up.keys)
	}

	snap := fx.stats.Snapshot()
	if snap.TotalRequests != 1 || snap.TotalErrors != 0 || snap.SuccessRate != 100 {
		t.Errorf("stats = %+v", snap)
	}
	if fx.errorLog.Len() != 0 {
		t.Errorf("error log has %d entries after success", fx.errorLog.Len())
	}
	if got := testutil.ToFloat64(fx.metrics.ProxyRequestsTotal.WithLabelValues(metrics.OutcomeSuccess)); got != 1 {
		t.Errorf("success counter = %v, want 1", got)
	}
}

func TestForward_DefaultsContentType(t *testing.T) {
	up := &fakeUpstream{resp: &upstream.Response{StatusCode: 200, Body: []byte(`{}`)}}
	fx := newForwarderFixture(up, "k")

	resp, err := fx.forwarder.Forward(context.Background(), generateRequest())
	if err != nil {
		t.Fatalf("Forward() error: %v", err)
	}
	if resp.ContentType != "application/json" {
		t.Errorf("ContentType = %q, want application/json", resp.ContentType)
	}
}

func TestForward_UpstreamErrorStatusIsRelayedAndLogged(t *testing.T) {
	body := `{"error":{"code":429,"message":"quota"}}`
	up := &fakeUpstream{resp: &upstream.Response{StatusCode: 429, ContentType: "application/json", Body: []byte(body)}}
	fx := newForwarderFixture(up, "limited-key")

	resp, err := fx.forwarder.Forward(context.Background(), generateRequest())
	if err != nil {
		t.Fatalf("Forward() error: %v", err)
	}
	if resp.StatusCode != 429 || string(resp.Body) != body {
		t.Errorf("resp = %d %s", resp.StatusCode, resp.Body)
	}

	rec, _ := fx.registry.Get("limited-key")
	if rec.Requests != 1 || rec.Errors != 1 {
		t.Errorf("key counters = %d/%d, want 1/1", rec.Requests, rec.Errors)
	}

	entries, total := fx.errorLog.Page(1, 10)
	if total != 1 {
		t.Fatalf("error log total = %d, want 1", total)
	}
	e := entries[0]
	if e.KeyID != "limited-key" || e.Message != "HTTP 429" {
		t.Errorf("entry = %+v", e)
	}
	if e.RequestPath != "/gemini/v1beta/models/gemini-pro:generateContent" {
		t.Errorf("RequestPath = %q", e.RequestPath)
	}
	if e.ResponseBody == nil || *e.ResponseBody != body {
		t.Errorf("ResponseBody = %v", e.ResponseBody)
	}

	select {
	case got := <-fx.notifier.got:
		if got.ID != e.ID {
			t.Errorf("notifier got %s, want %s", got.ID, e.ID)
		}
	case <-time.After(time.Second):
		t.Error("notifier was not called")
	}
}

func TestForward_TransportError(t *testing.T) {
	up := &fakeUpstream{err: errors.New("upstream request failed: connection refused")}
	fx := newForwarderFixture(up, "k")

	resp, err := fx.forwarder.Forward(context.Background(), generateRequest())
	if resp != nil {
		t.Errorf("resp = %+v, want nil", resp)
	}
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
	if err.Error() != "upstream request failed: connection refused" {
		t.Errorf("err = %q", err.Error())
	}

	snap := fx.stats.Snapshot()
	if snap.TotalRequests != 1 || snap.TotalErrors != 1 {
		t.Errorf("stats = %+v", snap)
	}

	entries, _ := fx.errorLog.Page(1, 10)
	if len(entries) != 1 || entries[0].Message != err.Error() || entries[0].ResponseBody != nil {
		t.Errorf("entries = %+v", entries)
	}
	if got := testutil.ToFloat64(fx.metrics.ProxyRequestsTotal.WithLabelValues(metrics.OutcomeTransportError)); got != 1 {
		t.Errorf("transport_error counter = %v, want 1", got)
	}
}

func TestForward_NoAvailableKey(t *testing.T) {
	up := &fakeUpstream{resp: &upstream.Response{StatusCode: 200}}
	fx := newForwarderFixture(up, "disabled")
	fx.registry.SetEnabled("disabled", false)

	_, err := fx.forwarder.Forward(context.Background(), generateRequest())
	if !errors.Is(err, ErrNoAvailableKey) {
		t.Fatalf("err = %v, want ErrNoAvailableKey", err)
	}
	if len(up.keys) != 0 {
		t.Errorf("upstream was called %d times", len(up.keys))
	}

	snap := fx.stats.Snapshot()
	if snap.TotalRequests != 0 || snap.TotalErrors != 0 {
		t.Errorf("stats changed: %+v", snap)
	}

	entries, _ := fx.errorLog.Page(1, 10)
	if len(entries) != 1 {
		t.Fatalf("error log len = %d, want 1", len(entries))
	}
	if entries[0].KeyID != models.NoKeySentinel || entries[0].Message != NoAvailableKeyMessage {
		t.Errorf("entry = %+v", entries[0])
	}
	if got := testutil.ToFloat64(fx.metrics.ProxyRequestsTotal.WithLabelValues(metrics.OutcomeNoKey)); got != 1 {
		t.Errorf("no_key counter = %v, want 1", got)
	}
}

func TestForward_IgnoresCallerCancellation(t *testing.T) {
	up := &fakeUpstream{resp: &upstream.Response{StatusCode: 200}}
	fx := newForwarderFixture(up, "k")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := fx.forwarder.Forward(ctx, generateRequest()); err != nil {
		t.Fatalf("Forward() error: %v", err)
	}
	if up.ctxErrs[0] != nil {
		t.Errorf("upstream saw a cancelled context: %v", up.ctxErrs[0])
	}
	if fx.stats.Snapshot().TotalRequests != 1 {
		t.Error("outcome was not recorded")
	}
}

func TestForward_ConcurrentCallsRecordEveryOutcome(t *testing.T) {
	up := &fakeUpstream{resp: &upstream.Response{StatusCode: 200}}
	fx := newForwarderFixture(up, "a", "b", "c")

	const calls = 200
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fx.forwarder.Forward(context.Background(), generateRequest())
		}()
	}
	wg.Wait()

	if got := fx.stats.Snapshot().TotalRequests; got != calls {
		t.Errorf("TotalRequests = %d, want %d", got, calls)
	}
}
