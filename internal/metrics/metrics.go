// Package metrics registers the Prometheus collectors shared by the
// administration orchestrator, the consumer/coordinator actors, and the
// stream validators, and exposes them over a plain HTTP /metrics
// listener started by the daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every collector this repository emits. It is
// constructed once at daemon (or CLI) startup and passed by reference to
// every component that records a metric, rather than relying on the
// default global registry directly, so tests can construct an isolated
// instance.
type Registry struct {
	AdminOperationsTotal     *prometheus.CounterVec
	AdminOperationDuration   *prometheus.HistogramVec
	ConsumerState            *prometheus.GaugeVec
	ConsumerLagBatches       *prometheus.GaugeVec
	LeaseAcquisitionsTotal   *prometheus.CounterVec
	ValidatorRejectionsTotal *prometheus.CounterVec
}

// New registers every collector against a fresh prometheus.Registry and
// returns both.
func New() (*Registry, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Registry{
		AdminOperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shovel_admin_operations_total",
			Help: "Count of administration orchestrator operations by outcome.",
		}, []string{"operation", "outcome"}),

		AdminOperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shovel_admin_operation_duration_seconds",
			Help:    "Duration of administration orchestrator operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		ConsumerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shovel_consumer_state",
			Help: "Numeric state code of each consumer actor.",
		}, []string{"database", "set", "consumer_group"}),

		ConsumerLagBatches: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shovel_consumer_lag_batches",
			Help: "Batches outstanding between the queue head and the last finished batch.",
		}, []string{"database", "set"}),

		LeaseAcquisitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shovel_lease_acquisitions_total",
			Help: "Count of ownership lease acquisition attempts by outcome.",
		}, []string{"set", "outcome"}),

		ValidatorRejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shovel_validator_rejections_total",
			Help: "Count of stream messages rejected by a validator, by reason.",
		}, []string{"validator", "reason"}),
	}

	return r, reg
}

// ConsumerStateCode maps a consumer's state name to the numeric gauge
// value recorded for shovel_consumer_state.
func ConsumerStateCode(state string) float64 {
	switch state {
	case "starting":
		return 0
	case "acquiring_lease":
		return 1
	case "registering":
		return 2
	case "running":
		return 3
	case "draining":
		return 4
	case "stopped":
		return 5
	case "failed":
		return 6
	default:
		return -1
	}
}
