// Package metrics wires the proxy's runtime counters and gauges into a
// dedicated prometheus.Registry, kept separate from the default global
// registry so tests can spin up isolated instances.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every metric the runtime updates. Construct once at
// startup and thread through workers, the pool, and cluster monitors.
type Metrics struct {
	Registry *prometheus.Registry

	PoolSize        *prometheus.GaugeVec
	PoolTakes       *prometheus.CounterVec
	PoolOffers      *prometheus.CounterVec
	PoolEvictions   *prometheus.CounterVec

	SessionsActive *prometheus.GaugeVec

	HealthCheckTotal    *prometheus.CounterVec
	HealthCheckFailures *prometheus.CounterVec
	ServerStatus        *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		PoolSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relaydb",
			Subsystem: "pool",
			Name:      "size",
			Help:      "Number of pooled backend connections currently parked, by server.",
		}, []string{"server"}),
		PoolTakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaydb",
			Subsystem: "pool",
			Name:      "takes_total",
			Help:      "Pool take() attempts, by server and outcome.",
		}, []string{"server", "outcome"}),
		PoolOffers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaydb",
			Subsystem: "pool",
			Name:      "offers_total",
			Help:      "Pool offer() attempts, by server and outcome.",
		}, []string{"server", "outcome"}),
		PoolEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaydb",
			Subsystem: "pool",
			Name:      "evictions_total",
			Help:      "Pool entries evicted, by server and reason.",
		}, []string{"server", "reason"}),
		SessionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relaydb",
			Subsystem: "worker",
			Name:      "sessions_active",
			Help:      "Sessions currently owned by each worker.",
		}, []string{"worker"}),
		HealthCheckTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaydb",
			Subsystem: "cluster",
			Name:      "health_checks_total",
			Help:      "HTTP health checks performed, by node.",
		}, []string{"monitor", "node"}),
		HealthCheckFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaydb",
			Subsystem: "cluster",
			Name:      "health_check_failures_total",
			Help:      "HTTP health checks that did not return 200, by node.",
		}, []string{"monitor", "node"}),
		ServerStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relaydb",
			Subsystem: "server",
			Name:      "status_bit",
			Help:      "Current value (0/1) of one status bit on one server.",
		}, []string{"server", "bit"}),
	}

	reg.MustRegister(
		m.PoolSize, m.PoolTakes, m.PoolOffers, m.PoolEvictions,
		m.SessionsActive,
		m.HealthCheckTotal, m.HealthCheckFailures, m.ServerStatus,
	)
	return m
}
