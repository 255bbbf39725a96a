package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "timetrack",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Number of outbox events successfully published to Kafka.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "timetrack",
		Subsystem: "outbox",
		Name:      "delivery_failures_total",
		Help:      "Number of outbox batches that failed to publish and will be retried.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "timetrack",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent fetching, delivering, and marking outbox batches.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	backlogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "timetrack",
		Subsystem: "outbox",
		Name:      "backlog_events",
		Help:      "Unpublished outbox events observed at the last poll.",
	})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, batchDuration, backlogGauge)
}
