// recital-worker — выполняет серверные runs.
//
// Worker:
//   - получает run.requested из RabbitMQ и опрашивает PENDING runs в БД
//   - собирает конвейер из конфигурации и RunSpec
//   - сохраняет результаты item'ов и финальный статус run
//
// Воркер выполняет один run за раз. Для параллельных runs
// запускается несколько воркеров.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Recital/internal/config"
	"github.com/shaiso/Recital/internal/mq"
	"github.com/shaiso/Recital/internal/repo"
	"github.com/shaiso/Recital/internal/telemetry"
	"github.com/shaiso/Recital/internal/worker"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting recital-worker")

	cfg, err := config.LoadWithFallback(os.Getenv("RECITAL_CONFIG"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := repo.NewPool(ctx, cfg.Services.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repo.EnsureSchema(ctx, pool); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	workerCfg := worker.Config{
		Runs:    repo.NewRunRepo(pool),
		Items:   repo.NewItemRepo(pool),
		Base:    cfg,
		Metrics: telemetry.NewMetrics(prometheus.DefaultRegisterer),
		Logger:  logger,
	}

	mqConn, err := mq.NewConnection(cfg.Services.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		workerCfg.Conn = mqConn
		workerCfg.Publisher = mq.NewPublisher(mqConn, logger)
	}

	w := worker.New(workerCfg)
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		port = ":" + v
	}
	server := &http.Server{Addr: port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logger.Info("listening", "addr", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	// текущий run завершится как CANCELLED
	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	logger.Info("recital-worker stopped")
}
