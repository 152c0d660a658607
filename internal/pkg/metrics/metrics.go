// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PricingMetrics 是定价服务暴露的 Prometheus 指标。
type PricingMetrics struct {
	Calculations       *prometheus.CounterVec
	CalculationLatency prometheus.Histogram
	Confidence         prometheus.Histogram
	Warnings           prometheus.Counter
	BulkItems          *prometheus.CounterVec
	SyncResults        *prometheus.CounterVec
	RuleReloads        *prometheus.CounterVec
	WSClients          prometheus.Gauge
}

// NewPricingMetrics 创建并注册所有指标。reg 为 nil 时使用默认注册表。
func NewPricingMetrics(reg prometheus.Registerer) *PricingMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PricingMetrics{
		Calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricewise",
			Name:      "calculations_total",
			Help:      "Price calculations by outcome.",
		}, []string{"outcome"}),
		CalculationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pricewise",
			Name:      "calculation_duration_seconds",
			Help:      "Latency of a single price calculation.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		Confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pricewise",
			Name:      "recommendation_confidence",
			Help:      "Confidence of produced recommendations.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		Warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pricewise",
			Name:      "calculation_warnings_total",
			Help:      "Warnings emitted by price calculations.",
		}),
		BulkItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricewise",
			Name:      "bulk_adjust_items_total",
			Help:      "Bulk adjustment items by field and outcome.",
		}, []string{"field", "outcome"}),
		SyncResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricewise",
			Name:      "catalog_sync_total",
			Help:      "Catalog price pushes by outcome.",
		}, []string{"outcome"}),
		RuleReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricewise",
			Name:      "rule_reloads_total",
			Help:      "Rule set reloads from the config center by outcome.",
		}, []string{"outcome"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pricewise",
			Name:      "ws_clients",
			Help:      "Connected recommendation stream clients.",
		}),
	}
	reg.MustRegister(m.Calculations, m.CalculationLatency, m.Confidence, m.Warnings,
		m.BulkItems, m.SyncResults, m.RuleReloads, m.WSClients)
	return m
}

// Outcome 把错误折算成指标标签。
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
