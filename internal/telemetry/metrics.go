package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shaiso/Recital/internal/domain"
	"github.com/shaiso/Recital/internal/orchestrator"
)

// Metrics — Prometheus метрики выполнения. Реализует orchestrator.Observer.
type Metrics struct {
	items         *prometheus.CounterVec
	itemDuration  prometheus.Histogram
	inFlight      prometheus.Gauge
	workers       prometheus.Gauge
	batchSize     prometheus.Histogram
	batchDuration prometheus.Histogram
	batchFailures prometheus.Counter
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
}

// NewMetrics регистрирует метрики в reg.
// Для глобального /metrics передайте prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		items: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recital_items_total",
			Help: "Processed work items by outcome and failure stage",
		}, []string{"outcome", "stage"}),
		itemDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "recital_item_duration_seconds",
			Help:    "Time from item start to its result",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "recital_items_in_flight",
			Help: "Work items currently being synthesized or encoded",
		}),
		workers: f.NewGauge(prometheus.GaugeOpts{
			Name: "recital_workers",
			Help: "Engine handles of the current run",
		}),
		batchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "recital_batch_size",
			Help:    "Texts per SynthesizeBatch call",
			Buckets: prometheus.LinearBuckets(1, 4, 10),
		}),
		batchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "recital_batch_duration_seconds",
			Help:    "SynthesizeBatch call duration",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		batchFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "recital_batch_failures_total",
			Help: "SynthesizeBatch calls that failed as a whole",
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recital_runs_total",
			Help: "Finished runs by final status",
		}, []string{"status"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "recital_run_duration_seconds",
			Help:    "Run duration",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
	}
}

var _ orchestrator.Observer = (*Metrics)(nil)

func (m *Metrics) OnRunStart(info orchestrator.RunInfo) {
	m.workers.Set(float64(info.Workers))
}

func (m *Metrics) OnItemStart(string) {
	m.inFlight.Inc()
}

func (m *Metrics) OnItemDone(res domain.ProcessingResult) {
	m.inFlight.Dec()
	m.items.WithLabelValues(string(res.Outcome), string(res.Stage)).Inc()
	if res.Duration > 0 {
		m.itemDuration.Observe(res.Duration.Seconds())
	}
}

func (m *Metrics) OnBatch(size int, dur time.Duration, err error) {
	m.batchSize.Observe(float64(size))
	m.batchDuration.Observe(dur.Seconds())
	if err != nil {
		m.batchFailures.Inc()
	}
}

func (m *Metrics) OnRunDone(_ domain.Summary, dur time.Duration) {
	m.workers.Set(0)
	m.runDuration.Observe(dur.Seconds())
}

// RunFinished считает run с финальным статусом.
// Вызывается тем, кто управляет жизненным циклом run (CLI или воркер).
func (m *Metrics) RunFinished(status domain.RunStatus) {
	m.runs.WithLabelValues(string(status)).Inc()
}
