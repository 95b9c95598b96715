package servicebus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the broker's Prometheus collectors.
type Metrics struct {
	published       *prometheus.CounterVec
	unrouted        prometheus.Counter
	delivered       *prometheus.CounterVec
	handlerErrors   *prometheus.CounterVec
	forwardErrors   prometheus.Counter
	queueDepth      *prometheus.GaugeVec
	handlerDuration *prometheus.HistogramVec
}

// NewMetrics builds the collectors and registers them on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "servicebus", Name: "published_total", Help: "Messages published by routing key."},
			[]string{"routing_key"},
		),
		unrouted: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: "servicebus", Name: "unrouted_total", Help: "Published messages that matched no binding."},
		),
		delivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "servicebus", Name: "delivered_total", Help: "Messages dequeued and handed to handlers."},
			[]string{"queue"},
		),
		handlerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "servicebus", Name: "handler_errors_total", Help: "Failed handler invocations by reason."},
			[]string{"queue", "reason"},
		),
		forwardErrors: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: "servicebus", Name: "forward_errors_total", Help: "Messages the external mirror failed to accept."},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: "servicebus", Name: "queue_depth", Help: "Messages waiting per queue."},
			[]string{"queue"},
		),
		handlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "servicebus",
				Name:      "handler_duration_seconds",
				Help:      "Handler invocation latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"queue"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.published,
			m.unrouted,
			m.delivered,
			m.handlerErrors,
			m.forwardErrors,
			m.queueDepth,
			m.handlerDuration,
		)
	}

	return m
}
