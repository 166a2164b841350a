// recital-api — HTTP API для runs и расписаний.
//
// API только записывает run в БД и публикует runs.requested;
// синтез выполняет recital-worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Recital/internal/api"
	"github.com/shaiso/Recital/internal/config"
	"github.com/shaiso/Recital/internal/mq"
	"github.com/shaiso/Recital/internal/repo"
	"github.com/shaiso/Recital/internal/telemetry"
)

var startTime = time.Now()

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting recital-api")

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
	logger.Info("connected to database")

	handlerCfg := api.Config{
		Runs:      repo.NewRunRepo(pool),
		Items:     repo.NewItemRepo(pool),
		Schedules: repo.NewScheduleRepo(pool),
		Logger:    logger,
	}

	// без RabbitMQ run всё равно подхватит опрос воркера
	mqConn, err := mq.NewConnection(cfg.Services.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, runs will be picked up by polling", "error", err)
	} else {
		defer mqConn.Close()
		if err := mq.SetupTopology(mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		handlerCfg.Publisher = mq.NewPublisher(mqConn, logger)
	}

	handler := api.NewHandler(handlerCfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "db: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, "ok %s", time.Since(startTime).Round(time.Second))
	})
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux, api.Metrics(prometheus.DefaultRegisterer))

	addr := ":" + cfg.Services.APIPort
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
