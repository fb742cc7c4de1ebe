package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/anthropics/meeting-recap/internal/api"
	"github.com/anthropics/meeting-recap/internal/biz/domain"
	"github.com/anthropics/meeting-recap/internal/biz/repo"
	"github.com/anthropics/meeting-recap/internal/biz/usecase"
	"github.com/anthropics/meeting-recap/internal/conf"
	"github.com/anthropics/meeting-recap/internal/data"
	"github.com/anthropics/meeting-recap/internal/infra/openai"
	"github.com/anthropics/meeting-recap/internal/infra/teams"
	"github.com/anthropics/meeting-recap/internal/infra/zoom"
	"github.com/anthropics/meeting-recap/internal/ratelimit"
	"github.com/anthropics/meeting-recap/internal/retry"
	"github.com/anthropics/meeting-recap/internal/service"
)

func main() {
	once := flag.Bool("once", false, "run a single pipeline pass and exit")
	flag.Parse()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := conf.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := newLogger(cfg.Debug)
	defer logger.Sync()

	store, err := data.NewStore(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to open state store", zap.String("path", cfg.DBPath), zap.Error(err))
	}
	defer store.Close()
	logger.Info("state store opened", zap.String("path", cfg.DBPath))

	limits := ratelimit.NewSet(
		cfg.RateLimits.TeamsPerMinute,
		cfg.RateLimits.ZoomRecordingPerSecond,
		cfg.RateLimits.ZoomGeneralPerSecond,
		cfg.RateLimits.SummarizerPerMinute,
	)
	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BackoffBase: cfg.Retry.BackoffBase,
		InitialWait: cfg.Retry.InitialWait,
		MaxWait:     cfg.Retry.MaxWait,
	}

	teamsClient := teams.NewClient(cfg.Teams.BaseURL)
	connectors := []repo.Connector{
		data.NewTeamsConnector(teamsClient, store, limits.TeamsGeneral, policy, logger),
	}
	if cfg.IsZoomConfigured() {
		zoomClient := zoom.NewClient(cfg.Zoom.ClientID, cfg.Zoom.ClientSecret, cfg.Zoom.AccountID, cfg.Zoom.BaseURL)
		connectors = append(connectors, data.NewZoomConnector(zoomClient, limits.ZoomRecording, limits.ZoomGeneral, policy, logger))
		logger.Info("zoom connector enabled")
	} else {
		logger.Info("zoom credentials not set, zoom scanning disabled")
	}

	openaiClient := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	summarizer := data.NewSummarizer(openaiClient, limits.Summarizer, policy, cfg.OpenAI.MinTranscriptChars, logger)

	pipeline := usecase.NewPipeline(store, connectors, summarizer, usecase.Config{
		Lookback:           cfg.Lookback,
		Overlap:            cfg.ScanOverlap,
		MaxMeetingsPerUser: cfg.MaxMeetingsPerUser,
		Workers:            cfg.Workers,
	}, logger)

	runner := service.NewRunner(pipeline, cfg.RunInterval, cfg.RunTimeout, logger)

	var opsServer *api.Server
	if cfg.MetricsAddr != "" {
		opsServer = api.NewServer(store, cfg.MetricsAddr, logger)
		go func() {
			if err := opsServer.Start(); err != nil {
				logger.Error("ops server failed", zap.Error(err))
			}
		}()
	}

	ctx := context.Background()

	if *once {
		run, err := runner.RunOnce(ctx)
		if err != nil {
			logger.Fatal("run failed", zap.Error(err))
		}
		if run != nil && run.Status == domain.RunPartial {
			logger.Warn("run completed with errors", zap.Int("errors", run.ErrorsCount))
		}
		return
	}

	runner.Start(ctx)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")
	runner.Stop()
	if opsServer != nil {
		opsServer.Stop()
	}
}

func newLogger(debug bool) *zap.Logger {
	var logger *zap.Logger
	var err error
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	return logger
}
