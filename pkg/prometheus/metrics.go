package prometheus

import (
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/go-kit/kit/metrics"
)

// MakeMetrics returns a request counter and a latency histogram, both
// labelled by method.
func MakeMetrics(namespace, subsystem string) (metrics.Counter, metrics.Histogram) {
	counter := kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_count",
		Help:      "Number of requests received.",
	}, []string{"method"})
	latency := kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_latency_microseconds",
		Help:      "Total duration of requests in microseconds.",
	}, []string{"method"})

	return counter, latency
}

// RoundMetrics are the scheduler gauges exported per aggregated round.
type RoundMetrics struct {
	Quorum    metrics.Gauge
	Admitted  metrics.Counter
	Forced    metrics.Counter
	Metric    metrics.Gauge
	Staleness metrics.Histogram
}

func MakeRoundMetrics(namespace string) RoundMetrics {
	return RoundMetrics{
		Quorum: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rounds",
			Name:      "quorum",
			Help:      "Quorum estimated for the last aggregated round.",
		}, nil),
		Admitted: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rounds",
			Name:      "admitted_total",
			Help:      "Number of local results admitted into aggregation.",
		}, nil),
		Forced: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rounds",
			Name:      "forced_total",
			Help:      "Number of local results admitted past the quorum.",
		}, nil),
		Metric: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rounds",
			Name:      "metric",
			Help:      "Aggregate metric of the last round.",
		}, nil),
		Staleness: kitprometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rounds",
			Name:      "staleness_weight",
			Help:      "Staleness weight of admitted results.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 0.75, 1},
		}, nil),
	}
}
