package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	passesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raiseflow",
		Subsystem: "scheduler",
		Name:      "passes_total",
		Help:      "Scheduler passes by result.",
	}, []string{"result"})

	passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "raiseflow",
		Subsystem: "scheduler",
		Name:      "pass_duration_seconds",
		Help:      "Wall time of a scheduler pass.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	enrollmentOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raiseflow",
		Subsystem: "scheduler",
		Name:      "enrollment_outcomes_total",
		Help:      "Per-enrollment pass outcomes.",
	}, []string{"outcome"})

	gatewaySends = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raiseflow",
		Subsystem: "gateway",
		Name:      "sends_total",
		Help:      "Outbound email sends by result.",
	}, []string{"result"})
)

// ObservePass records a finished scheduler pass. result is "ok", "error" or
// "locked".
func ObservePass(result string, elapsed time.Duration) {
	passesTotal.WithLabelValues(result).Inc()
	if result != "locked" {
		passDuration.Observe(elapsed.Seconds())
	}
}

func ObserveOutcome(outcome string) {
	enrollmentOutcomes.WithLabelValues(outcome).Inc()
}

func ObserveSend(ok bool) {
	if ok {
		gatewaySends.WithLabelValues("sent").Inc()
		return
	}
	gatewaySends.WithLabelValues("failed").Inc()
}
