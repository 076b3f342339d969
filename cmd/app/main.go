// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blueprint-room-pipeline/internal/backoff"
	"blueprint-room-pipeline/internal/config"
	"blueprint-room-pipeline/internal/domain/model"
	"blueprint-room-pipeline/internal/domain/ports/adapter"
	infAdapters "blueprint-room-pipeline/internal/infra/adapters/inference"
	"blueprint-room-pipeline/internal/infra/blob"
	pg "blueprint-room-pipeline/internal/infra/db/postgres"
	"blueprint-room-pipeline/internal/infra/logging"
	"blueprint-room-pipeline/internal/infra/metrics"
	"blueprint-room-pipeline/internal/infra/notify"
	red "blueprint-room-pipeline/internal/infra/redis"
	"blueprint-room-pipeline/internal/infra/web"
	"blueprint-room-pipeline/internal/infra/worker"
	"blueprint-room-pipeline/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode (console logs, canned inference)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	tm := pg.NewTxManager(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	// ---- Repositories ----
	jobRepo := pg.NewJobRepo(pool, tm)
	artifactRepo := pg.NewArtifactRepoCacheDecorator(pg.NewArtifactRepo(pool), redisClient, cfg.Redis.ArtifactTTL)
	subsRepo := red.NewSubscriptionRepo(redisClient, cfg.Redis.SubscriptionTTL)
	previewCache := red.NewPreviewCache(redisClient, cfg.Redis.PreviewTTL)
	blueprintStore, err := blob.NewFSStore(cfg.Blob.Dir)
	if err != nil {
		logger.Fatal().Err(err).Msg("blueprint store")
	}

	// ---- Backoff policy shared by retries ----
	policy := backoff.Policy{
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		Base:        cfg.Pipeline.BackoffBase,
		Max:         cfg.Pipeline.BackoffMax,
		Jitter:      true,
	}

	// ---- Inference ----
	var inference adapter.InferenceAdapter
	if cfg.Runtime.Dev && cfg.Inference.Preview.URL == "" {
		inference = infAdapters.NewNoopAdapter()
		logger.Info().Msg("inference adapter: noop (canned detections)")
	} else {
		inference = infAdapters.NewHTTPAdapter(&cfg.Inference, policy, logger)
	}

	// ---- Notification path ----
	hub := notify.NewHub(logger)
	defer hub.Close()
	notifier := usecase.NewProgressNotifier(subsRepo, hub, policy, logger)

	// ---- Pipeline stages ----
	opts := usecase.ProcessOptions{
		ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold,
		OverlapThreshold:    cfg.Pipeline.OverlapThreshold,
	}
	stageCfg := []usecase.StageConfig{
		{Stage: model.StagePreview, EndpointID: cfg.Inference.Preview.ID, ModelVersion: cfg.Inference.Preview.ModelVersion},
		{Stage: model.StageIntermediate, EndpointID: cfg.Inference.Intermediate.ID, ModelVersion: cfg.Inference.Intermediate.ModelVersion},
		{Stage: model.StageFinal, EndpointID: cfg.Inference.Final.ID, ModelVersion: cfg.Inference.Final.ModelVersion, PreciseBoundaries: cfg.Pipeline.PreciseBoundaries},
	}
	stages := make([]usecase.StageExecutor, 0, len(stageCfg))
	for _, sc := range stageCfg {
		stages = append(stages, usecase.NewStageExecutor(sc, inference, artifactRepo, blueprintStore, previewCache, notifier, opts, logger))
	}

	orchestrator := usecase.NewPipelineOrchestrator(
		jobRepo, artifactRepo, stages, notifier, policy,
		time.Duration(cfg.Pipeline.BudgetSeconds*float64(time.Second)), logger,
	)

	// ---- Workers ----
	workerPool := worker.NewPool(cfg.Pipeline.Workers, logger)
	workerPool.Start(ctx)
	defer workerPool.Stop()
	processor := worker.NewPipelineProcessor(jobRepo, orchestrator, subsRepo, cfg.Pipeline.PollInterval, logger)
	go processor.Start(ctx, workerPool)

	// ---- HTTP API ----
	auth := web.NewAuthManager(cfg.Web.SubscriberJWT, cfg.Web.TokenTTL)
	srv := web.NewServer(jobRepo, artifactRepo, blueprintStore, subsRepo, hub, auth, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Web.Port),
		Handler: srv.Router(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	cancel()
}
