package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SwapsTotal counts swaps reaching a final or queued state by type and status
var SwapsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "swaptrade_swaps_total",
		Help: "Total number of swaps by type and resulting status",
	},
	[]string{"type", "status"},
)

// SettlementLatency records the time spent inside a settlement attempt
var SettlementLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "swaptrade_settlement_latency_seconds",
		Help:    "Latency in seconds of a single settlement attempt",
		Buckets: prometheus.DefBuckets,
	},
)

// RealizedSlippage records |actual slippage| of settled swaps
var RealizedSlippage = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "swaptrade_realized_slippage_ratio",
		Help:    "Absolute slippage between quoted and executed rate",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
	},
)

// Queue and worker metrics
var (
	SwapRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swaptrade_swap_retries_total",
			Help: "Number of swap jobs rescheduled for retry by error code",
		},
		[]string{"code"},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "swaptrade_queue_depth",
			Help: "Number of jobs waiting in the swap queue",
		},
	)

	BatchOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swaptrade_batch_outcomes_total",
			Help: "Finalized batches by atomicity and status",
		},
		[]string{"atomic", "status"},
	)
)

// Database connection pool metrics
var (
	DBOpenConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swaptrade_db_open_connections",
			Help: "Number of open connections in the DB pool",
		},
		[]string{"db"},
	)

	DBInUseConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swaptrade_db_in_use_connections",
			Help: "Number of in-use connections in the DB pool",
		},
		[]string{"db"},
	)
)

func init() {
	prometheus.MustRegister(SwapsTotal, SettlementLatency, RealizedSlippage)
	prometheus.MustRegister(SwapRetries, QueueDepth, BatchOutcomes)
	prometheus.MustRegister(DBOpenConns, DBInUseConns)
}
