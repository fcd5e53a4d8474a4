package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akagifreeez/gemini-key-pool/internal/services"
)

// RouterConfig wires the services into the HTTP surface
type RouterConfig struct {
	Registry  *services.KeyRegistry
	Stats     *services.StatsAggregator
	ErrorLog  *services.ErrorLog
	Forwarder *services.ProxyForwarder

	ProxyPrefix   string // e.g. /gemini, stripped before forwarding
	VersionPrefix string // e.g. /v1beta, forwarded as is

	// Gatherer serves /metrics when set
	Gatherer prometheus.Gatherer
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	r.NotFound(NotFound)
	r.MethodNotAllowed(NotFound)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	admin := NewAdminHandler(cfg.Registry, cfg.Stats, cfg.ErrorLog)
	stream := NewStreamHandler(cfg.ErrorLog)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/keys", admin.ListKeys)
		r.Post("/keys", admin.AddKey)
		r.Delete("/keys", admin.DeleteKey)
		r.Put("/key-status", admin.SetKeyStatus)
		r.Get("/stats", admin.GetStats)
		r.Get("/logs", admin.GetLogs)
		r.Get("/logs/stream", stream.StreamLogs)
		r.Post("/clear-logs", admin.ClearLogs)
		r.Post("/reset-stats", admin.ResetStats)
	})

	proxy := NewProxyHandler(cfg.Forwarder, cfg.ProxyPrefix)
	if prefix := strings.TrimRight(cfg.ProxyPrefix, "/"); prefix != "" {
		r.Handle(prefix+"/*", proxy)
	}
	if version := strings.TrimRight(cfg.VersionPrefix, "/"); version != "" {
		r.Handle(version, proxy)
		r.Handle(version+"/*", proxy)
	}

	return r
}
