package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PromCollector mirrors aggregated outcomes into Prometheus metrics so a
// running attack can be scraped. Prometheus counters are monotonic, so a
// metrics reset after hatching does not affect them.
type PromCollector struct {
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewPromCollector creates the collectors and registers them with reg.
func NewPromCollector(reg prometheus.Registerer) (*PromCollector, error) {
	labels := []string{"method", "name"}

	c := &PromCollector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drove",
			Name:      "requests_total",
			Help:      "Requests completed by virtual users.",
		}, labels),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drove",
			Name:      "request_failures_total",
			Help:      "Requests recorded as failed.",
		}, labels),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "drove",
			Name:      "request_duration_seconds",
			Help:      "Request response time.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, labels),
	}

	for _, col := range []prometheus.Collector{c.requests, c.failures, c.latency} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Observe implements Collector.
func (c *PromCollector) Observe(o *RequestOutcome) {
	c.requests.WithLabelValues(o.Method, o.Name).Inc()
	if !o.Success {
		c.failures.WithLabelValues(o.Method, o.Name).Inc()
	}
	c.latency.WithLabelValues(o.Method, o.Name).Observe(o.Elapsed.Seconds())
}
