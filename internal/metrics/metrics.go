package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "staylink",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "API requests by method and response class.",
	}, []string{"method", "class"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "staylink",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "API round-trip latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "staylink",
		Subsystem: "auth",
		Name:      "refreshes_total",
		Help:      "Token refresh calls by outcome.",
	}, []string{"outcome"})

	ForcedLogouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "staylink",
		Subsystem: "auth",
		Name:      "forced_logouts_total",
		Help:      "Sessions cleared after a failed refresh.",
	})

	ChatReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "staylink",
		Subsystem: "chat",
		Name:      "reconnects_total",
		Help:      "Reconnect attempts of the realtime channel.",
	})

	ChatDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "staylink",
		Subsystem: "chat",
		Name:      "stream_dropped_total",
		Help:      "Room stream deliveries dropped because the consumer was slow.",
	})
)

// ResponseClass maps a status code to a low-cardinality label.
func ResponseClass(status int) string {
	switch {
	case status == 0:
		return "error"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
