package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
)

const namespace = "batchserver"

// Metrics is the process-wide Prometheus registry for the batch server.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	batchesDelivered prometheus.Counter
	inputsLeased     prometheus.Counter
	poolExhausted    prometheus.Counter
	quotaRejected    prometheus.Counter
	outputsUploaded  *prometheus.CounterVec
	inputsCancelled  prometheus.Counter
	notifications    *prometheus.CounterVec
	inputPool        *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "API request latency in seconds by method/route/status.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "api_inflight_requests",
			Help:      "In-flight API requests.",
		}),
		batchesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_delivered_total",
			Help:      "Batches handed out to clients.",
		}),
		inputsLeased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inputs_leased_total",
			Help:      "Inputs assigned to clients across all batches.",
		}),
		poolExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_exhausted_total",
			Help:      "Batch requests that found no Ready input.",
		}),
		quotaRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_rejected_total",
			Help:      "Batch requests rejected by the per-client quota.",
		}),
		outputsUploaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outputs_uploaded_total",
			Help:      "Result uploads by whether they were the first submission for the input.",
		}, []string{"first"}),
		inputsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inputs_cancelled_total",
			Help:      "Inputs returned to the pool by their owner.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Result notifications by outcome (sent, failed, disabled).",
		}, []string{"outcome"}),
		inputPool: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inputs",
			Help:      "Inputs by status, sampled periodically.",
		}, []string{"status"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests,
		m.apiLatency,
		m.apiInflight,
		m.batchesDelivered,
		m.inputsLeased,
		m.poolExhausted,
		m.quotaRejected,
		m.outputsUploaded,
		m.inputsCancelled,
		m.notifications,
		m.inputPool,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) IncBatchDelivered(size int) {
	if m == nil {
		return
	}
	m.batchesDelivered.Inc()
	m.inputsLeased.Add(float64(size))
}

func (m *Metrics) IncPoolExhausted() {
	if m == nil {
		return
	}
	m.poolExhausted.Inc()
}

func (m *Metrics) IncQuotaRejected() {
	if m == nil {
		return
	}
	m.quotaRejected.Inc()
}

func (m *Metrics) IncOutputUploaded(first bool) {
	if m == nil {
		return
	}
	m.outputsUploaded.WithLabelValues(strconv.FormatBool(first)).Inc()
}

func (m *Metrics) AddInputsCancelled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.inputsCancelled.Add(float64(n))
}

func (m *Metrics) IncNotification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

// RegisterDBStats exports database/sql pool statistics for db.
func (m *Metrics) RegisterDBStats(db *gorm.DB, dbName string) error {
	if m == nil || db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return m.registry.Register(collectors.NewDBStatsCollector(sqlDB, dbName))
}

// StartInputPoolCollector samples input counts by status every interval until ctx ends.
func (m *Metrics) StartInputPoolCollector(ctx context.Context, log *logger.Logger, interval time.Duration, sample func(ctx context.Context) (map[string]int64, error)) {
	if m == nil || sample == nil {
		return
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	collect := func() {
		counts, err := sample(ctx)
		if err != nil {
			if log != nil && ctx.Err() == nil {
				log.Warn("metrics: input pool sample failed", "error", err)
			}
			return
		}
		for status, n := range counts {
			m.inputPool.WithLabelValues(status).Set(float64(n))
		}
	}
	go func() {
		collect()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collect()
			}
		}
	}()
}
