// Package metrics holds the Prometheus collectors for the ingestion
// pipeline. Collectors register themselves at import; the /metrics
// endpoint serves the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailstash_smtp_received_total",
			Help: "Messages accepted over SMTP.",
		},
	)
	metricDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailstash_pipeline_dropped_total",
			Help: "Messages dropped before persistence, by reason.",
		},
		[]string{
			"reason",
		},
	)
	metricPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailstash_persist_total",
			Help: "Records written to the store.",
		},
	)
	metricPersistRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailstash_persist_retries_total",
			Help: "Failed insert attempts that scheduled a retry.",
		},
	)
	metricNotified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailstash_notify_total",
			Help: "Notification outcomes, by result.",
		},
		[]string{
			"result",
		},
	)
	metricSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailstash_subscribers",
			Help: "Currently connected subscribers.",
		},
	)
)

func ReceivedInc() {
	metricReceived.Inc()
}

func DroppedInc(reason string) {
	metricDropped.WithLabelValues(reason).Inc()
}

func PersistedInc() {
	metricPersisted.Inc()
}

func PersistRetryInc() {
	metricPersistRetries.Inc()
}

func NotifiedInc(result string) {
	metricNotified.WithLabelValues(result).Inc()
}

func SubscribersInc() {
	metricSubscribers.Inc()
}

func SubscribersDec() {
	metricSubscribers.Dec()
}
