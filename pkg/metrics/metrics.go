package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Path health metrics
	PathHealthScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshroute_path_health_score",
			Help: "Path health score (0-100)",
		},
		[]string{"path_id"},
	)

	PathLatency = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshroute_path_latency_ms",
			Help: "Path round-trip latency in milliseconds",
		},
		[]string{"path_id"},
	)

	PathPacketLoss = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshroute_path_packet_loss_pct",
			Help: "Path packet loss percentage",
		},
		[]string{"path_id"},
	)

	PathJitter = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshroute_path_jitter_ms",
			Help: "Path jitter in milliseconds",
		},
		[]string{"path_id"},
	)

	PathStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshroute_path_status",
			Help: "Path status (1 = up, 0.5 = degraded, 0 = down)",
		},
		[]string{"path_id"},
	)

	// Failover metrics
	FailoverPoliciesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshroute_failover_policies_total",
			Help: "Number of failover policies by enabled state",
		},
		[]string{"enabled"},
	)

	FailoverUsingPrimary = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshroute_failover_using_primary",
			Help: "Whether a policy is on its primary path (1 = primary, 0 = backup)",
		},
		[]string{"policy_id", "policy_name"},
	)

	FailoverCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshroute_failover_transitions",
			Help: "Number of path transitions per policy since startup",
		},
		[]string{"policy_id", "policy_name"},
	)

	FailoverEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshroute_failover_events_total",
			Help: "Failover events emitted since startup, by type",
		},
		[]string{"type"},
	)

	// Routing metrics
	FlowsTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meshroute_flows_tracked",
			Help: "Number of flows with an active path binding",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(PathHealthScore)
	prometheus.MustRegister(PathLatency)
	prometheus.MustRegister(PathPacketLoss)
	prometheus.MustRegister(PathJitter)
	prometheus.MustRegister(PathStatus)
	prometheus.MustRegister(FailoverPoliciesTotal)
	prometheus.MustRegister(FailoverUsingPrimary)
	prometheus.MustRegister(FailoverCount)
	prometheus.MustRegister(FailoverEventsTotal)
	prometheus.MustRegister(FlowsTracked)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
