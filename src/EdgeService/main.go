package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/untruncd/untruncd/src/internal/adapters/memory"
	"github.com/untruncd/untruncd/src/internal/adapters/postgres"
	"github.com/untruncd/untruncd/src/internal/config"
	"github.com/untruncd/untruncd/src/internal/domain"
	xlog "github.com/untruncd/untruncd/src/internal/log"
	"github.com/untruncd/untruncd/src/internal/ports"
	"github.com/untruncd/untruncd/src/internal/services"
)

func main() {
	configFile := "config.yaml"
	if len(os.Args) > 1 {
		configFile = os.Args[1]
	}

	cfg := config.DefaultEdgeConfig()
	fileErr := config.Load(configFile, &cfg)
	cfg.ApplyEnv()

	xlog.Configure(xlog.Config{Level: cfg.LogLevel, Service: cfg.ServiceName})
	logger := xlog.WithComponent("main")

	if fileErr != nil {
		logger.Warn().Err(fileErr).Str("file", configFile).Msg("no config file loaded, using defaults and environment")
	} else {
		logger.Info().Str("file", configFile).Msg("loaded config")
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// An unresolvable repair tool is a configuration-level problem and may
	// surface as a process failure; per-file errors never do.
	binary, err := services.ResolveUntruncBinary(cfg.UntruncPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("repair tool unavailable")
	}

	for _, dir := range []string{cfg.ReadyPath(), cfg.ExportPath(), cfg.QuarantinePath()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Fatal().Err(err).Str("dir", dir).Msg("cannot create data directory")
		}
	}

	var history ports.HistoryRepository
	if cfg.DatabaseURL != "" {
		db, err := postgres.NewConnection(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to Postgres")
		}
		repo := postgres.NewHistoryRepo(db)
		if err := repo.InitSchema(); err != nil {
			logger.Fatal().Err(err).Msg("failed to init history schema")
		}
		history = repo
		logger.Info().Msg("repair history persisted to Postgres")
	} else {
		history = memory.NewHistoryRepo()
		logger.Info().Msg("no DATABASE_URL set, keeping repair history in memory")
	}

	runner := services.NewUntruncRunner(binary, time.Duration(cfg.UntruncTimeoutSeconds)*time.Second)
	fallback := services.NewFallbackDispatcher(cfg.FallbackBaseURL, cfg.FallbackAPIKey, cfg.FallbackRetries)
	tracker := services.NewStabilityTracker(time.Duration(cfg.SettleSeconds) * time.Second)

	scanner := services.NewDirectoryScanner(services.ScannerConfig{
		ReadyRoot:      cfg.ReadyPath(),
		ExportRoot:     cfg.ExportPath(),
		QuarantineRoot: cfg.QuarantinePath(),
		ScanInterval:   time.Duration(cfg.ScanIntervalSeconds) * time.Second,
		MinFileAge:     time.Duration(cfg.MinFileAgeSeconds) * time.Second,
		MaxConcurrent:  cfg.MaxConcurrentJobs,
		Strategy:       domain.ReferenceStrategy(cfg.ReferenceStrategy),
	}, tracker, runner, fallback, history)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go scanner.Run(ctx)

	api := newAPI(&cfg, scanner, history)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("edge repair service listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}
}
