package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"legal-intel-platform/internal/ai"
	"legal-intel-platform/internal/config"
	"legal-intel-platform/internal/database"
	"legal-intel-platform/internal/logger"
	"legal-intel-platform/internal/queue"
	"legal-intel-platform/internal/storage"
	"legal-intel-platform/internal/telemetry"
	"legal-intel-platform/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("legal-intel-worker")
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
	} else {
		defer shutdownTracer()
	}
	metrics, err := telemetry.InitPipelineMetrics()
	if err != nil {
		logger.Warn("Pipeline metrics disabled", "error", err)
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	store := database.NewStore(mongoClient, cfg)
	objects, err := storage.NewLocalObjectStore(cfg.FileStorageDir)
	if err != nil {
		log.Fatal("Failed to initialize object storage:", err)
	}

	ctx := context.Background()
	ocrClient := ai.NewOCRClient(cfg, logger.Logger)
	embedder, err := ai.NewEmbeddingClient(ctx, cfg, logger.Logger)
	if err != nil {
		log.Fatal("Failed to initialize embedding client:", err)
	}
	defer embedder.Close()
	extractor, err := ai.NewExtractor(ctx, cfg, logger.Logger)
	if err != nil {
		log.Fatal("Failed to initialize extractor:", err)
	}
	defer extractor.Close()

	enqueuer := queue.NewClient(cfg)
	defer enqueuer.Close()

	notifier := services.NewRedisProgressNotifier(rdb, logger.Logger)
	ledger := services.NewLedger(store, logger.Logger, notifier)
	locker := services.NewChunkLocker(rdb, time.Duration(cfg.ChunkLockTTLS)*time.Second)
	cache := services.NewQueryCache(rdb,
		time.Duration(cfg.CacheQueryTTLS)*time.Second, logger.Logger)

	pipeline := services.NewPipeline(cfg, store, objects, ocrClient, embedder,
		extractor, ledger, locker, cache, enqueuer, metrics, logger.Logger)
	recovery := services.NewRecovery(cfg, store, objects, ledger, enqueuer,
		metrics, logger.Logger)

	scheduler := services.NewSweepScheduler(enqueuer, logger.Logger)
	if err := scheduler.Start(); err != nil {
		log.Fatal("Failed to start sweep scheduler:", err)
	}
	defer scheduler.Stop()

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				queue.QueueHigh:    6,
				queue.QueueDefault: 3,
				queue.QueueLow:     1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(pipeline, recovery, cfg, logger.Logger)
	mux := asynq.NewServeMux()
	processor.Register(mux)

	logger.Info("Starting worker",
		"concurrency", cfg.WorkerConcurrency,
		"redis", cfg.RedisURL)
	if err := server.Run(mux); err != nil {
		log.Fatal("Worker stopped:", err)
	}
}
