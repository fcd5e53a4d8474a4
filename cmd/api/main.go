package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/akagifreeez/gemini-key-pool/internal/config"
	"github.com/akagifreeez/gemini-key-pool/internal/handlers"
	"github.com/akagifreeez/gemini-key-pool/internal/metrics"
	"github.com/akagifreeez/gemini-key-pool/internal/models"
	"github.com/akagifreeez/gemini-key-pool/internal/services"
	"github.com/akagifreeez/gemini-key-pool/internal/workers"
	"github.com/akagifreeez/gemini-key-pool/pkg/events"
	"github.com/akagifreeez/gemini-key-pool/pkg/upstream"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg)

	log.Info().
		Str("environment", cfg.Environment).
		Str("upstream", cfg.UpstreamBaseURL).
		Str("proxy_prefix", cfg.ProxyPrefix).
		Msg("Starting Gemini key pool proxy")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	// Core state
	registry := services.NewKeyRegistry(time.Now)
	stats := services.NewStatsAggregator(registry)
	errorLog := services.NewErrorLog(cfg.ErrorLogCapacity)
	selector := services.NewSelector(registry, nil)

	for _, key := range cfg.SeedKeys {
		if _, err := registry.Add(key, ""); err != nil {
			log.Warn().Err(err).Str("key", models.MaskKey(key)).Msg("Skipping seed key")
		}
	}

	// Failure notifiers
	var notifiers []services.FailureNotifier
	if cfg.RedisURL != "" {
		publisher, err := events.NewPublisher(cfg.RedisURL, cfg.RedisEventsChannel)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Redis publisher, proceeding without failure events")
		} else {
			defer publisher.Close()
			notifiers = append(notifiers, publisher)
			log.Info().Str("channel", publisher.Channel()).Msg("Publishing failure events to Redis")
		}
	}
	if cfg.DiscordBotToken != "" && cfg.DiscordAlertChannelID != "" {
		session, err := services.NewDiscordSession(cfg.DiscordBotToken)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Discord alerts")
		} else {
			notifiers = append(notifiers, services.NewAlertService(session, cfg.DiscordAlertChannelID, cfg.AlertCooldown, registry, stats))
			log.Info().Dur("cooldown", cfg.AlertCooldown).Msg("Discord pool exhaustion alerts enabled")
		}
	}

	client := upstream.NewClient(cfg.UpstreamBaseURL, cfg.KeyQueryParam, cfg.UpstreamTimeout)
	forwarder := services.NewProxyForwarder(selector, stats, errorLog, client,
		services.WithMetrics(m),
		services.WithNotifiers(notifiers...),
	)

	// Workers
	reporter := workers.NewStatsReporter(registry, stats, errorLog, m, cfg.StatsReportInterval)
	reporter.Report()
	go reporter.Start(ctx)

	router := handlers.NewRouter(handlers.RouterConfig{
		Registry:      registry,
		Stats:         stats,
		ErrorLog:      errorLog,
		Forwarder:     forwarder,
		ProxyPrefix:   cfg.ProxyPrefix,
		VersionPrefix: cfg.UpstreamVersionPrefix,
		Gatherer:      reg,
	})

	// Start server
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Zero by default so slow upstream calls are not cut off
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("Shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
		cancel()
	}()

	log.Info().Str("port", cfg.Port).Int("keys", len(registry.List())).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Server error")
	}

	log.Info().Msg("Server stopped")
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Unknown LOG_LEVEL, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
