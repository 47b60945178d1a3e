package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chainctl"

// Collectors groups the counters exported by the chain client. A nil *Collectors
// is valid and records nothing.
type Collectors struct {
	registry *prometheus.Registry

	probeFailures  *prometheus.CounterVec
	failovers      prometheus.Counter
	activeEndpoint *prometheus.GaugeVec
	transactions   *prometheus.CounterVec
	poolLookups    *prometheus.CounterVec
}

func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		probeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "endpoint",
			Name:      "probe_failures_total",
			Help:      "Liveness probes that failed, by endpoint.",
		}, []string{"endpoint"}),
		failovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "endpoint",
			Name:      "failovers_total",
			Help:      "Times the active connection was replaced.",
		}),
		activeEndpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "endpoint",
			Name:      "active",
			Help:      "1 for the endpoint currently serving calls.",
		}, []string{"endpoint"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "submitted_total",
			Help:      "Submitted transactions by terminal status.",
		}, []string{"status"}),
		poolLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "pool_lookups_total",
			Help:      "Pool address lookups by the layer that answered.",
		}, []string{"source"}),
	}
	c.registry.MustRegister(c.probeFailures, c.failovers, c.activeEndpoint, c.transactions, c.poolLookups)
	return c
}

// Handler serves the collectors in the Prometheus text format.
func (c *Collectors) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collectors) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collectors) ProbeFailed(endpoint string) {
	if c == nil {
		return
	}
	c.probeFailures.WithLabelValues(endpoint).Inc()
}

func (c *Collectors) Failover(from, to string) {
	if c == nil {
		return
	}
	c.failovers.Inc()
	if from != "" {
		c.activeEndpoint.WithLabelValues(from).Set(0)
	}
	c.activeEndpoint.WithLabelValues(to).Set(1)
}

func (c *Collectors) TxFinished(status string) {
	if c == nil {
		return
	}
	c.transactions.WithLabelValues(status).Inc()
}

func (c *Collectors) PoolLookup(source string) {
	if c == nil {
		return
	}
	c.poolLookups.WithLabelValues(source).Inc()
}
