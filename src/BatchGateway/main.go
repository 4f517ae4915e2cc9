package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/untruncd/untruncd/src/internal/adapters/awsbatch"
	"github.com/untruncd/untruncd/src/internal/adapters/s3catalog"
	"github.com/untruncd/untruncd/src/internal/config"
	xlog "github.com/untruncd/untruncd/src/internal/log"
)

func main() {
	configFile := "config.yaml"
	if len(os.Args) > 1 {
		configFile = os.Args[1]
	}

	cfg := config.DefaultGatewayConfig()
	fileErr := config.Load(configFile, &cfg)
	cfg.ApplyEnv()

	xlog.Configure(xlog.Config{Level: cfg.LogLevel, Service: cfg.ServiceName})
	logger := xlog.WithComponent("main")

	if fileErr != nil {
		logger.Warn().Err(fileErr).Str("file", configFile).Msg("no config file loaded, using defaults and environment")
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.APIKeyHash == "" {
		logger.Warn().Msg("API_KEY_HASH not configured - authentication disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load AWS config")
	}

	catalog := s3catalog.New(s3.NewFromConfig(awsCfg))
	submitter := awsbatch.New(batch.NewFromConfig(awsCfg), cfg.JobQueueARN, cfg.JobDefinitionARN)

	gw := newGateway(&cfg, catalog, submitter)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("batch gateway listening")
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
