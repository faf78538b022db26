package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"eCard/internal/card"
	"eCard/internal/config"
	"eCard/internal/database"
	"eCard/internal/export"
	"eCard/internal/metrics"
	"eCard/internal/storage"
	"eCard/internal/tasks"
	"eCard/internal/worker"
)

const metricsAddr = ":9091"

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	log.Println("database connection ready for worker")

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	log.Printf("storage client ready, bucket=%s", cfg.MinIO.Bucket)

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	// 截图页面里的 /profile1.png 等站内路径由 API 服务提供。
	renderer, err := card.NewRenderer(cfg.Worker.InternalAPIBaseURL)
	if err != nil {
		log.Fatalf("init card renderer: %v", err)
	}

	exportHandler := worker.NewExportTaskHandler(worker.ExportTaskDeps{
		DB:                 db,
		Storage:            storageClient,
		Publisher:          redisClient,
		Capturer:           export.NewRodCapturer(logger, cfg.Worker.CaptureTimeout),
		Renderer:           renderer,
		Logger:             logger,
		HTTPClient:         &http.Client{Timeout: 15 * time.Second},
		InternalSecret:     cfg.API.InternalSecret,
		InternalAPIBaseURL: cfg.Worker.InternalAPIBaseURL,
	})

	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Logger:      newAsynqLogger(logger),
	})

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeCardExport, exportHandler)

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(metricsAddr, metricsMux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", slog.Any("error", err))
		}
	}()

	logger.Info("worker service started",
		slog.String("redis_addr", redisAddr),
		slog.Int("concurrency", cfg.Worker.Concurrency),
		slog.String("metrics_addr", metricsAddr),
	)
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
