// Package metrics содержит Prometheus-метрики платёжного моста.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Исходы обработки платежа.
const (
	OutcomeSuccess    = "success"
	OutcomeDuplicate  = "duplicate"
	OutcomeInProgress = "in_progress"
	OutcomePricing    = "pricing_fault"
	OutcomeChain      = "chain_fault"
	OutcomeLedger     = "ledger_fault"
)

// Источники курса.
const (
	SourceReserves = "reserves"
	SourceToken0   = "token0"
	SourceOracle   = "oracle"
)

const (
	metricsNamespace    = "rwa_bridge"
	settlementSubsystem = "settlement"
)

// Metrics хранит счётчики и гистограммы сервиса.
type Metrics struct {
	registry    *prometheus.Registry
	settlements *prometheus.CounterVec
	rateReads   *prometheus.HistogramVec
}

// New создаёт набор метрик в отдельном реестре.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: settlementSubsystem,
			Name:      "requests_total",
			Help:      "Payment requests segmented by outcome.",
		}, []string{"outcome"}),
		rateReads: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: settlementSubsystem,
			Name:      "rate_read_duration_seconds",
			Help:      "Latency of on-chain rate source reads.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
	}

	registry.MustRegister(m.settlements, m.rateReads)

	return m
}

// ObserveSettlement учитывает исход обработки платежа.
func (m *Metrics) ObserveSettlement(outcome string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(outcome).Inc()
}

// ObserveRateRead учитывает длительность чтения источника курса.
func (m *Metrics) ObserveRateRead(source string, started time.Time) {
	if m == nil {
		return
	}
	m.rateReads.WithLabelValues(source).Observe(time.Since(started).Seconds())
}

// Handler возвращает HTTP-обработчик для экспорта метрик.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry возвращает реестр метрик.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
