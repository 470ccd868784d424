// Package metrics registers the process-wide Prometheus instruments for the
// persistence layer. Init must be called once at startup (main.go); until
// then the vars below are nil and callers are expected to nil-check.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Operations counts repository operations by entity and operation name.
	Operations *prometheus.CounterVec

	// PoolOpen / PoolInUse / PoolIdle mirror database/sql pool stats.
	PoolOpen  prometheus.Gauge
	PoolInUse prometheus.Gauge
	PoolIdle  prometheus.Gauge

	// PoolWaitTotal is the cumulative number of times a caller had to wait
	// for a pooled connection.
	PoolWaitTotal prometheus.Gauge
)

func Init() {
	Operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sora2api",
			Name:      "db_operations_total",
			Help:      "Total number of repository operations issued.",
		},
		[]string{"entity", "op"},
	)
	PoolOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sora2api",
		Name:      "db_pool_open_connections",
		Help:      "Open connections in the database pool.",
	})
	PoolInUse = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sora2api",
		Name:      "db_pool_in_use_connections",
		Help:      "Pool connections currently in use.",
	})
	PoolIdle = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sora2api",
		Name:      "db_pool_idle_connections",
		Help:      "Idle connections in the database pool.",
	})
	PoolWaitTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sora2api",
		Name:      "db_pool_wait_total",
		Help:      "Cumulative count of waits for a pooled connection.",
	})
	prometheus.MustRegister(Operations, PoolOpen, PoolInUse, PoolIdle, PoolWaitTotal)
}
