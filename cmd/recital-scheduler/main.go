// recital-scheduler — создаёт runs по расписаниям.
//
// Несколько экземпляров могут работать одновременно: тики выполняет
// только держатель advisory lock в PostgreSQL.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Recital/internal/config"
	"github.com/shaiso/Recital/internal/mq"
	"github.com/shaiso/Recital/internal/repo"
	"github.com/shaiso/Recital/internal/scheduler"
	"github.com/shaiso/Recital/internal/telemetry"
)

const schedLockKey int64 = 424242

var (
	ticksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recital_scheduler_ticks_total",
		Help: "Scheduler ticks by result",
	}, []string{"result"})
	isLeader = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recital_scheduler_leader",
		Help: "1 if this instance holds the scheduler lock",
	})
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting recital-scheduler")

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

	schedCfg := scheduler.Config{
		Schedules: repo.NewScheduleRepo(pool),
		Runs:      repo.NewRunRepo(pool),
		Logger:    logger,
	}

	mqConn, err := mq.NewConnection(cfg.Services.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, runs will be picked up by polling", "error", err)
	} else {
		defer mqConn.Close()
		if err := mq.SetupTopology(mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		schedCfg.Publisher = mq.NewPublisher(mqConn, logger)
	}

	sched := scheduler.New(schedCfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8081"
	if v := os.Getenv("SCHED_PORT"); v != "" {
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

	loop(ctx, pool, sched, logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	logger.Info("recital-scheduler stopped")
}

// loop раз в секунду пытается взять lock и, если он наш, выполняет тик.
func loop(ctx context.Context, pool *pgxpool.Pool, sched *scheduler.Scheduler, logger *slog.Logger) {
	tk := time.NewTicker(time.Second)
	defer tk.Stop()

	// advisory lock держится на соединении, поэтому берём одно на всё время
	conn, err := pool.Acquire(ctx)
	if err != nil {
		logger.Error("failed to acquire connection", "error", err)
		return
	}
	defer conn.Release()

	var hasLock bool
	defer func() {
		if hasLock {
			_, _ = conn.Exec(context.Background(), "select pg_advisory_unlock($1)", schedLockKey)
		}
		isLeader.Set(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
		}

		if !hasLock {
			if err := conn.QueryRow(ctx, "select pg_try_advisory_lock($1)", schedLockKey).Scan(&hasLock); err != nil {
				if ctx.Err() == nil {
					logger.Warn("lock attempt failed", "error", err)
				}
				continue
			}
			if !hasLock {
				continue
			}
			logger.Info("became scheduler leader")
			isLeader.Set(1)
		}

		if err := sched.Tick(ctx); err != nil {
			ticksTotal.WithLabelValues("error").Inc()
			if ctx.Err() == nil {
				logger.Error("tick failed", "error", err)
			}
			continue
		}
		ticksTotal.WithLabelValues("ok").Inc()
	}
}
