package scoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fraud_decisions_total",
		Help: "Fraud decisions by detection method and outcome.",
	}, []string{"method", "outcome"})

	decisionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fraud_decision_duration_seconds",
		Help:    "End-to-end latency of the detection pipeline.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"method"})

	scorerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fraud_external_scorer_failures_total",
		Help: "External model calls that failed open.",
	})

	persistenceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fraud_persistence_failures_total",
		Help: "Transaction log and profile write failures.",
	}, []string{"operation"})
)

func outcomeLabel(isFraud bool) string {
	if isFraud {
		return "fraud"
	}
	return "clean"
}
