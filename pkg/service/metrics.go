package service

import "github.com/prometheus/client_golang/prometheus"

var (
	sendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "huddle",
			Subsystem: "service",
			Name:      "sends_total",
			Help:      "Messages accepted and stored, by conversation kind.",
		},
		[]string{"kind"},
	)
	blockedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "huddle",
		Subsystem: "service",
		Name:      "blocked_total",
		Help:      "Messages rejected by the moderation gate.",
	})
	flaggedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "huddle",
		Subsystem: "service",
		Name:      "flagged_total",
		Help:      "Messages stored but flagged for review.",
	})
	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "huddle",
			Subsystem: "service",
			Name:      "rate_limited_total",
			Help:      "Actions denied by the rate limiter, by action.",
		},
		[]string{"action"},
	)
)

func init() {
	prometheus.MustRegister(sendsTotal, blockedTotal, flaggedTotal, rateLimitedTotal)
}
