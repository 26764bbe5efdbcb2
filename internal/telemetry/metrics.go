// Package telemetry exposes Prometheus metrics and the HTTP surface
// serving them alongside the node health endpoint.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "marketd"

// Metrics is the full instrument set, registered on a dedicated registry
// so tests can gather without global state.
type Metrics struct {
	Registry *prometheus.Registry

	NodeHeartbeat   *prometheus.GaugeVec
	SymbolsAssigned *prometheus.GaugeVec

	CalcLatencyMs *prometheus.HistogramVec
	DataAgeMs     *prometheus.HistogramVec

	ReportPublishTotal *prometheus.CounterVec

	LeaseConflictsTotal prometheus.Counter
	HRWRebalancesTotal  prometheus.Counter
	WSResubscribeTotal  *prometheus.CounterVec
	SlowCycleSkipsTotal prometheus.Counter
}

// NewMetrics builds and registers every instrument.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,

		NodeHeartbeat: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "node_heartbeat",
			Help:      "Node heartbeat status (1=alive, 0=dead).",
		}, []string{"node"}),

		SymbolsAssigned: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "symbols_assigned",
			Help:      "Number of symbols assigned to the node.",
		}, []string{"node"}),

		CalcLatencyMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "calc_latency_ms",
			Help:      "Calculation latency in milliseconds.",
			Buckets:   []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 2000},
		}, []string{"metric", "cycle"}),

		DataAgeMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "data_age_ms",
			Help:      "Data age in milliseconds at publish time.",
			Buckets:   []float64{10, 50, 100, 250, 500, 750, 1000, 1500, 2000, 5000},
		}, []string{"symbol"}),

		ReportPublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_publish_total",
			Help:      "Total reports published.",
		}, []string{"symbol"}),

		LeaseConflictsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lease_conflicts_total",
			Help:      "Writer lease conflicts detected before publishing.",
		}),

		HRWRebalancesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hrw_rebalances_total",
			Help:      "Rebalancing cycles that changed local ownership.",
		}),

		WSResubscribeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_resubscribe_total",
			Help:      "WebSocket resubscriptions by reason.",
		}, []string{"reason"}),

		SlowCycleSkipsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_cycle_skips_total",
			Help:      "Slow cycles skipped because the previous one was still running.",
		}),
	}
}
