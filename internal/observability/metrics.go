// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Vault transition metrics
	VaultsInitialized  prometheus.Counter
	DepositsTotal      prometheus.Counter
	DepositedBaseUnits prometheus.Counter
	SharesMintedUnits  prometheus.Counter
	AllocationsTotal   prometheus.Counter
	AllocatedBaseUnits prometheus.Counter
	Rejections         *prometheus.CounterVec
	TransitionLatency  *prometheus.HistogramVec

	// Vault state gauges
	TotalBaseAssets *prometheus.GaugeVec
	CustodyBalance  *prometheus.GaugeVec
	SharesSupply    *prometheus.GaugeVec

	// Analytics sink metrics
	AnalyticsForwardErrors prometheus.Counter

	// Chain observer metrics
	RPCCallLatency   *prometheus.HistogramVec
	WSMessageLatency prometheus.Histogram
	Reconciliations  *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "share_vault"
	}

	return &Metrics{
		VaultsInitialized: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "initialized_total",
			Help:      "Total number of vaults initialized",
		}),
		DepositsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "deposits_total",
			Help:      "Total number of committed deposits",
		}),
		DepositedBaseUnits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "deposited_base_units_total",
			Help:      "Total base-asset units deposited",
		}),
		SharesMintedUnits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "shares_minted_units_total",
			Help:      "Total share units minted",
		}),
		AllocationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "allocations_total",
			Help:      "Total number of committed allocations",
		}),
		AllocatedBaseUnits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "allocated_base_units_total",
			Help:      "Total base-asset units allocated out of custody",
		}),
		Rejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "rejections_total",
			Help:      "Total number of rejected transitions by operation and reason",
		}, []string{"operation", "reason"}),
		TransitionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "transition_latency_seconds",
			Help:      "Vault transition latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		TotalBaseAssets: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "total_base_assets",
			Help:      "Ledger value of base assets credited to the vault",
		}, []string{"vault"}),
		CustodyBalance: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "custody_balance",
			Help:      "Base-asset balance of the custody account at last reconciliation",
		}, []string{"vault"}),
		SharesSupply: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "shares_supply",
			Help:      "Outstanding share units",
		}, []string{"vault"}),

		AnalyticsForwardErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "forward_errors_total",
			Help:      "Total number of events that failed to reach the analytics store",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WSMessageLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_message_latency_seconds",
			Help:      "WebSocket message processing latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		Reconciliations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Total number of reconciliation runs by outcome",
		}, []string{"outcome"}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests by route and status code",
		}, []string{"route", "code"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordInitialize increments the initialized vaults counter.
func RecordInitialize(vault string) {
	DefaultMetrics.VaultsInitialized.Inc()
	DefaultMetrics.TotalBaseAssets.WithLabelValues(vault).Set(0)
	DefaultMetrics.SharesSupply.WithLabelValues(vault).Set(0)
}

// RecordDeposit records a committed deposit and the resulting vault state.
func RecordDeposit(vault string, amount, shares, totalBaseAssets, sharesSupply uint64) {
	DefaultMetrics.DepositsTotal.Inc()
	DefaultMetrics.DepositedBaseUnits.Add(float64(amount))
	DefaultMetrics.SharesMintedUnits.Add(float64(shares))
	DefaultMetrics.TotalBaseAssets.WithLabelValues(vault).Set(float64(totalBaseAssets))
	DefaultMetrics.SharesSupply.WithLabelValues(vault).Set(float64(sharesSupply))
}

// RecordAllocate records a committed allocation.
func RecordAllocate(vault string, amount, custodyAfter uint64) {
	DefaultMetrics.AllocationsTotal.Inc()
	DefaultMetrics.AllocatedBaseUnits.Add(float64(amount))
	DefaultMetrics.CustodyBalance.WithLabelValues(vault).Set(float64(custodyAfter))
}

// RecordRejection records a rejected transition.
func RecordRejection(operation, reason string) {
	DefaultMetrics.Rejections.WithLabelValues(operation, reason).Inc()
}

// RecordTransitionLatency records how long a transition took.
func RecordTransitionLatency(operation string, seconds float64) {
	DefaultMetrics.TransitionLatency.WithLabelValues(operation).Observe(seconds)
}

// RecordAnalyticsError increments the analytics forward error counter.
func RecordAnalyticsError() {
	DefaultMetrics.AnalyticsForwardErrors.Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordWSMessage records WebSocket message handling latency.
func RecordWSMessage(seconds float64) {
	DefaultMetrics.WSMessageLatency.Observe(seconds)
}

// RecordReconciliation records a reconciliation run and the observed custody and supply.
func RecordReconciliation(vault, outcome string, custody, sharesSupply uint64) {
	DefaultMetrics.Reconciliations.WithLabelValues(outcome).Inc()
	DefaultMetrics.CustodyBalance.WithLabelValues(vault).Set(float64(custody))
	DefaultMetrics.SharesSupply.WithLabelValues(vault).Set(float64(sharesSupply))
}

// RecordHTTPRequest records an API request.
func RecordHTTPRequest(route string, code int) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, http.StatusText(code)).Inc()
}

// RecordReconcileError records a reconciliation run that could not read the ledger.
func RecordReconcileError() {
	DefaultMetrics.Reconciliations.WithLabelValues("error").Inc()
}
