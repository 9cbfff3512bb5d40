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
	"crewclock/internal/compliance"
	"crewclock/internal/config"
	"crewclock/internal/database"
	"crewclock/internal/domain"
	"crewclock/internal/google"
	"crewclock/internal/logging"
	"crewclock/internal/metrics"
	"crewclock/internal/models"
	"crewclock/internal/repository"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
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

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	acks := initAckRepository(redisClient, &logger)

	rules := loadRules(cfg, &logger)
	calc := compliance.NewCalculator(db, acks, rules, &logger)

	sheetsService := initGoogleSheets(cfg, &logger)
	if sheetsService != nil {
		go runWeeklyHoursExport(ctx, calc, sheetsService, cfg.Server.CompanyID, &logger)
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, db, calc, acks, cfg.Server.CompanyID, &logger)
	return startServer(ctx, httpServer, &logger)
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
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}
	if !db.Attested() {
		logger.Warn().Msg("attestation columns missing, compliance runs in degraded mode")
	}
	return db, nil
}

func loadRules(cfg *config.Config, logger *zerolog.Logger) compliance.Rules {
	path := cfg.Compliance.JurisdictionFile
	if path == "" {
		path = "configs/jurisdictions.yaml"
	}

	all, err := compliance.LoadJurisdictions(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("jurisdiction file unavailable, using defaults")
		return compliance.DefaultRules()
	}
	return compliance.SelectRules(all, cfg.Compliance.Jurisdiction)
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initAckRepository(redisClient *redis.Client, logger *zerolog.Logger) domain.AckRepository {
	fallback := repository.NewMemoryAckRepository()
	if redisClient == nil {
		logger.Warn().Msg("alert acknowledgements will not survive restarts")
		return fallback
	}
	primary := repository.NewRedisAckRepository(redisClient, time.Duration(models.DefaultAckTTL)*time.Second)
	return repository.NewFailoverAckRepository(primary, fallback, logger)
}

func initGoogleSheets(cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if !cfg.Google.Enabled || cfg.Google.GoogleCredentialsFile == "" || cfg.Google.HoursSpreadSheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(cfg.Google.GoogleCredentialsFile, cfg.Google.HoursSpreadSheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

// runWeeklyHoursExport pushes the current weekly summary to the payroll
// sheet once a day.
func runWeeklyHoursExport(ctx context.Context, calc *compliance.Calculator, exporter domain.HoursExporter, companyID string, logger *zerolog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := calc.Report(ctx, companyID, models.RangeWeek)
			if err != nil {
				logger.Error().Err(err).Msg("weekly hours export: report failed")
				continue
			}
			weekStart := compliance.WeekStart(time.Now())
			if err := exporter.AppendWeeklySummary(ctx, weekStart, report.Stats.WorkerSummaries); err != nil {
				logger.Error().Err(err).Msg("weekly hours export: append failed")
				continue
			}
			logger.Info().Int("workers", len(report.Stats.WorkerSummaries)).Msg("weekly hours exported")
		}
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
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
