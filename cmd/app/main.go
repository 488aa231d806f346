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

	"media-analysis-pipeline/internal/config"
	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/adapter"
	"media-analysis-pipeline/internal/domain/ports/repository"
	aiAdapters "media-analysis-pipeline/internal/infra/adapters/ai"
	pg "media-analysis-pipeline/internal/infra/db/postgres"
	"media-analysis-pipeline/internal/infra/logging"
	"media-analysis-pipeline/internal/infra/memstore"
	"media-analysis-pipeline/internal/infra/metrics"
	red "media-analysis-pipeline/internal/infra/redis"
	"media-analysis-pipeline/internal/infra/web"
	"media-analysis-pipeline/internal/infra/worker"
	"media-analysis-pipeline/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (memory queue, noop providers)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode enabled")
	}
	metrics.MustRegister()

	defaultBackoff := model.Backoff{
		Base:      cfg.Queue.Backoff.Base,
		JitterMax: cfg.Queue.Backoff.JitterMax,
		Max:       cfg.Queue.Backoff.Max,
	}

	// ---- Stores ----
	var (
		queue    repository.QueueStore
		ledger   repository.CostLedger
		status   repository.MediaStatusStore
		limiter  web.RateLimiter
		embCache adapter.EmbeddingCache
	)
	if cfg.Queue.Driver == "postgres" {
		pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.PoolSize)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		if err := pg.Migrate(ctx, pool); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		queue = pg.NewQueueRepo(pool, defaultBackoff)
		ledger = pg.NewCostLedgerRepo(pool)
		status = pg.NewMediaStatusRepo(pool)
	} else {
		queue = memstore.New(defaultBackoff)
		ledger = memstore.NewLedger()
		status = memstore.NewMediaStatusStore()
	}

	// ---- Redis ----
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer redisClient.Close()
		limiter = red.NewRateLimiter(redisClient)
		embCache = red.NewEmbeddingCache(redisClient, cfg.Redis.EmbeddingTTL)
	} else if cfg.Runtime.Dev {
		limiter = web.AllowAll{}
		embCache = memstore.NewEmbeddingCache()
	} else {
		log.Fatalf("redis.url is required outside dev mode")
	}

	// ---- Providers ----
	vision, moderation, textAnalysis, transcription, embedder, err := buildProviders(ctx, cfg)
	if err != nil {
		log.Fatalf("providers: %v", err)
	}
	lim := aiAdapters.NewLimiter(cfg.Providers.ConcurrentLimit)
	vision = aiAdapters.NewLimitedVision(vision, lim)
	moderation = aiAdapters.NewLimitedModeration(moderation, lim)
	textAnalysis = aiAdapters.NewLimitedTextAnalysis(textAnalysis, lim)
	transcription = aiAdapters.NewLimitedTranscription(transcription, lim)
	embedder = aiAdapters.NewLimitedEmbedding(embedder, lim)

	// ---- Workers ----
	rt := worker.NewRuntime(queue, ledger, status, logger, cfg.Queue.LeaseDuration, cfg.Providers.CallTimeout)
	processors := []worker.Processor{
		worker.NewImageProcessor(vision, moderation, cfg.Workers.Image.CommitPartial),
		worker.NewVideoProcessor(transcription, vision, cfg.Providers.Transcribe.PollInterval, cfg.Workers.Video.CommitPartial),
		worker.NewTextProcessor(textAnalysis, cfg.Workers.Text.CommitPartial),
		worker.NewEmbeddingProcessor(embedder, embCache, cfg.Providers.EmbeddingModel),
	}

	workCtx, stopWork := context.WithCancel(ctx)
	defer stopWork()
	pools := make([]*worker.Pool, 0, len(processors))
	for _, proc := range processors {
		tc := cfg.TypeConfig(string(proc.Type()))
		pool := worker.NewPool(rt, proc, tc.Concurrency, cfg.Queue.PollInterval, logger)
		pool.Start(workCtx)
		pools = append(pools, pool)
	}

	retention := repository.RetentionPolicy{
		CompletedAge:   cfg.Queue.Retention.CompletedAge,
		CompletedCount: cfg.Queue.Retention.CompletedCount,
		FailedAge:      cfg.Queue.Retention.FailedAge,
	}
	janitor := worker.NewJanitor(queue, retention, cfg.Queue.JanitorInterval, logger)
	go janitor.Run(workCtx)

	// ---- API ----
	auth := web.NewAuthManager(cfg.API.JWTSecret, 24*time.Hour)
	pipelineUC := usecase.NewPipelineUseCase(queue, defaultBackoff, cfg.Queue.DefaultMaxAttempts)
	server := web.NewServer(pipelineUC, auth, limiter, web.RateLimitSettings{
		Requests: cfg.API.RateLimit.Requests,
		Window:   cfg.API.RateLimit.Window,
	}, logger)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.API.Port),
		Handler: server.Router(),
	}
	go func() {
		logger.Info().Int("port", cfg.API.Port).Msg("api listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api server failed")
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")

	// Stop accepting API traffic first, then stop the pools and give in-flight
	// jobs the grace period to finish. Anything still running loses its lease
	// and is requeued by stall recovery.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Workers.ShutdownGrace)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api shutdown failed")
	}

	stopWork()
	done := make(chan struct{})
	go func() {
		for _, pool := range pools {
			pool.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
		logger.Info().Msg("workers drained")
	case <-time.After(cfg.Workers.ShutdownGrace):
		logger.Warn().Msg("shutdown grace exceeded, abandoning in-flight jobs")
	}
}

func buildProviders(ctx context.Context, cfg *config.Config) (
	adapter.VisionAdapter,
	adapter.ModerationAdapter,
	adapter.TextAnalysisAdapter,
	adapter.TranscriptionAdapter,
	adapter.EmbeddingAdapter,
	error,
) {
	if cfg.Runtime.Dev && cfg.Providers.GeminiKey == "" && cfg.Providers.OpenAIKey == "" {
		noop := aiAdapters.NewNoopProviders()
		return noop, noop, noop, noop, noop, nil
	}

	gemini, err := aiAdapters.NewGeminiVisionAdapter(ctx, cfg.Providers.GeminiKey, cfg.Providers.GeminiURL, cfg.Providers.VisionModel)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("gemini adapter: %w", err)
	}
	openAI, err := aiAdapters.NewOpenAIAdapter(cfg.Providers.OpenAIKey, cfg.Providers.TextModel, cfg.Providers.EmbeddingModel)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("openai adapter: %w", err)
	}
	transcribe, err := aiAdapters.NewHTTPTranscribeAdapter(cfg.Providers.Transcribe.APIKey, cfg.Providers.Transcribe.BaseURL)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("transcribe adapter: %w", err)
	}
	return gemini, gemini, openAI, transcribe, openAI, nil
}
