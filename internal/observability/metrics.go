// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"math/big"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Adapter metrics
	OperationsTotal     *prometheus.CounterVec
	HarvestsTotal       *prometheus.CounterVec
	ReportedTotalAssets *prometheus.GaugeVec
	ReportedProfit      *prometheus.GaugeVec
	ReportedLoss        *prometheus.GaugeVec

	// Keeper metrics
	KeeperHeads      prometheus.Counter
	KeeperErrors     *prometheus.CounterVec
	HighestBlockSeen prometheus.Gauge

	// Node metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec
	WSReconnects   prometheus.Counter

	// Simulation metrics
	SimulationRuns     *prometheus.CounterVec
	SimulationDuration prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulHarvest prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "yield_adapter_lab"
	}

	return &Metrics{
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "operations_total",
			Help:      "Total number of adapter operations by outcome",
		}, []string{"adapter", "op", "status"}),
		HarvestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "harvests_total",
			Help:      "Total number of successful harvest reports",
		}, []string{"adapter"}),
		ReportedTotalAssets: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "reported_total_assets",
			Help:      "Total assets returned by the last harvest, in base units",
		}, []string{"adapter"}),
		ReportedProfit: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "reported_profit",
			Help:      "Profit of the last harvest, in base units",
		}, []string{"adapter"}),
		ReportedLoss: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "reported_loss",
			Help:      "Loss of the last harvest, in base units",
		}, []string{"adapter"}),

		KeeperHeads: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "heads_total",
			Help:      "Total number of block heads processed by the keeper",
		}),
		KeeperErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "errors_total",
			Help:      "Total number of failed keeper actions",
		}, []string{"adapter", "action"}),
		HighestBlockSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "highest_block_seen",
			Help:      "Highest block number seen",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evm",
			Name:      "rpc_call_latency_seconds",
			Help:      "JSON-RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evm",
			Name:      "rpc_call_errors_total",
			Help:      "Total number of failed JSON-RPC calls",
		}, []string{"method"}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evm",
			Name:      "ws_reconnects_total",
			Help:      "Total number of websocket reconnects",
		}),

		SimulationRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "harness",
			Name:      "runs_total",
			Help:      "Total number of scenario runs by status",
		}, []string{"status"}),
		SimulationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "harness",
			Name:      "duration_seconds",
			Help:      "Scenario run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulHarvest: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_harvest_timestamp",
			Help:      "Block timestamp of the last successful harvest",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordOperation counts one adapter operation.
func RecordOperation(adapter, op, status string) {
	DefaultMetrics.OperationsTotal.WithLabelValues(adapter, op, status).Inc()
}

// RecordHarvest records a successful harvest report.
func RecordHarvest(adapter string, totalAssets, profit, loss *big.Int, timestamp int64) {
	DefaultMetrics.HarvestsTotal.WithLabelValues(adapter).Inc()
	DefaultMetrics.ReportedTotalAssets.WithLabelValues(adapter).Set(toFloat(totalAssets))
	DefaultMetrics.ReportedProfit.WithLabelValues(adapter).Set(toFloat(profit))
	DefaultMetrics.ReportedLoss.WithLabelValues(adapter).Set(toFloat(loss))
	DefaultMetrics.LastSuccessfulHarvest.Set(float64(timestamp))
}

// RecordKeeperHead counts one processed head.
func RecordKeeperHead(block uint64) {
	DefaultMetrics.KeeperHeads.Inc()
	DefaultMetrics.HighestBlockSeen.Set(float64(block))
}

// RecordKeeperError counts one failed keeper action.
func RecordKeeperError(adapter, action string) {
	DefaultMetrics.KeeperErrors.WithLabelValues(adapter, action).Inc()
}

// RecordRPCCall records JSON-RPC call metrics.
func RecordRPCCall(method string, seconds float64, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordWSReconnect counts one websocket reconnect.
func RecordWSReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordSimulationRun records a scenario run.
func RecordSimulationRun(status string, durationSeconds float64) {
	DefaultMetrics.SimulationRuns.WithLabelValues(status).Inc()
	DefaultMetrics.SimulationDuration.Observe(durationSeconds)
}

// toFloat converts a base-unit amount for a gauge. Precision loss is accepted.
func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
