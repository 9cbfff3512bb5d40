package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crewclock/internal/api"
	"crewclock/internal/config"
	"crewclock/internal/connectivity"
	"crewclock/internal/events"
	"crewclock/internal/logging"
	"crewclock/internal/metrics"
	"crewclock/internal/queue"
	"crewclock/internal/remote"
	syncengine "crewclock/internal/sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewEventBus()

	store, err := queue.Open(cfg.Agent.QueuePath,
		queue.WithRetentionDays(cfg.Agent.RetentionDays),
		queue.WithEvents(bus),
	)
	if err != nil {
		logger.Error().Err(err).Str("queue_path", cfg.Agent.QueuePath).Msg("open queue")
		return err
	}
	defer store.Close()

	probe := connectivity.NewHTTPProbe(cfg.Agent.ServerURL, nil)
	monitor := connectivity.New(probe, cfg.Agent.ProbeIntervalDuration(), &logger)
	go monitor.Start(ctx)

	client := remote.NewClient(cfg.Agent.ServerURL, cfg.Agent.APIKey, cfg.Agent.APIExtra)
	engine := syncengine.New(store, client, monitor, &logger,
		syncengine.WithRetryInterval(cfg.Agent.RetryIntervalDuration()),
		syncengine.WithEvents(bus),
	)
	go engine.Start(ctx)

	startMetrics(ctx, cfg, &logger)

	agentServer := api.NewAgentServer(cfg.Agent, store, monitor, engine, &logger)
	go func() {
		if err := agentServer.Start(); err != nil {
			logger.Error().Err(err).Msg("agent server stopped")
		}
	}()

	logger.Info().
		Int("port", cfg.Agent.ListenPort).
		Str("server_url", cfg.Agent.ServerURL).
		Msg("agent started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = agentServer.Shutdown(shutdownCtx)

	logger.Info().Msg("agent stopped")
	return nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9091
	}
	go startMetricsServer(ctx, port, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "agent-main").Logger()

	if cfg.Agent.QueuePath == "" {
		return nil, zerolog.Logger{}, closer, fmt.Errorf("agent.queue_path is required")
	}

	return cfg, logger, closer, nil
}
