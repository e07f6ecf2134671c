package store

import (
	"github.com/prometheus/client_golang/prometheus"
)

var opsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "huddle",
		Subsystem: "store",
		Name:      "ops_total",
		Help:      "Count of store operations by kind.",
	},
	[]string{"op"},
)

func init() {
	prometheus.MustRegister(opsTotal)
}

func recordOp(op string) {
	opsTotal.WithLabelValues(op).Inc()
}
