package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"legal-intel-platform/internal/config"
	"legal-intel-platform/internal/database"
	"legal-intel-platform/internal/logger"
	"legal-intel-platform/internal/queue"
	"legal-intel-platform/internal/storage"
	"legal-intel-platform/internal/telemetry"
	"legal-intel-platform/routes"
	"legal-intel-platform/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("legal-intel-api")
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
	} else {
		defer shutdownTracer()
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

	enqueuer := queue.NewClient(cfg)
	defer enqueuer.Close()

	notifier := services.NewRedisProgressNotifier(rdb, logger.Logger)
	ledger := services.NewLedger(store, logger.Logger, notifier)
	cache := services.NewQueryCache(rdb,
		time.Duration(cfg.CacheQueryTTLS)*time.Second, logger.Logger)

	hub := services.NewHub(rdb,
		time.Duration(cfg.WebsocketPingIntervalS)*time.Second, logger.Logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	routes.Setup(router, routes.Deps{
		Cfg:      cfg,
		Store:    store,
		Objects:  objects,
		Redis:    rdb,
		Ledger:   ledger,
		Cache:    cache,
		Enqueuer: enqueuer,
		Hub:      hub,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		logger.Info("API server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down API server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", "error", err)
	}
}
