package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityStartedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "timetrack",
		Subsystem: "activities",
		Name:      "last_started_timestamp_seconds",
		Help:      "Unix timestamp of the most recently started activity.",
	})
	activityFinishedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "timetrack",
		Subsystem: "activities",
		Name:      "last_finished_timestamp_seconds",
		Help:      "Unix timestamp of the most recently finished activity.",
	})
	authEventsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timetrack",
		Subsystem: "identity",
		Name:      "auth_events_total",
		Help:      "Count of authentication events, labeled by kind.",
	}, []string{"event"})
)

func init() {
	prometheus.MustRegister(activityStartedGauge, activityFinishedGauge, authEventsCounter)
}

// RecordActivityStarted updates the started-activity watermark gauge.
func RecordActivityStarted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityStartedGauge.Set(float64(ts.Unix()))
}

// RecordActivityFinished updates the finished-activity watermark gauge.
func RecordActivityFinished(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityFinishedGauge.Set(float64(ts.Unix()))
}

// RecordAuthEvent counts a sign-up, sign-in, or sign-out.
func RecordAuthEvent(event string) {
	authEventsCounter.WithLabelValues(event).Inc()
}
