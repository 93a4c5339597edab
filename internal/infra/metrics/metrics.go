package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tracking"

var (
	operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Allocations and transfers by result.",
	}, []string{"op", "result"})

	units = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "units_total",
		Help:      "Units moved by kind: allocated, transferred, rejected, rework.",
	}, []string{"kind"})

	retries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retries_total",
		Help:      "Operation attempts repeated after a concurrency conflict.",
	}, []string{"op"})

	duration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_seconds",
		Help:      "Wall time of an operation including retries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
)

func ObserveOperation(op, result string, started time.Time) {
	operations.WithLabelValues(op, result).Inc()
	duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func AddUnits(kind string, n int) {
	if n > 0 {
		units.WithLabelValues(kind).Add(float64(n))
	}
}

func IncRetry(op string) { retries.WithLabelValues(op).Inc() }
