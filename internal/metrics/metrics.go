package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus 指标
var (
	ReadingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anxiety_readings_total",
			Help: "Total number of readings processed, by outcome.",
		},
		[]string{"outcome"},
	)
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anxiety_alerts_total",
			Help: "Total number of alerts created, by severity and rule.",
		},
		[]string{"severity", "rule"},
	)
	SuppressionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anxiety_alert_suppressions_total",
			Help: "Total number of triggers suppressed by the cooldown window.",
		},
		[]string{"severity"},
	)
	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anxiety_alert_deliveries_total",
			Help: "Total number of alert deliveries, by final status.",
		},
		[]string{"status"},
	)
	NotificationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anxiety_notification_attempts_total",
			Help: "Total number of notification attempts, by channel and result.",
		},
		[]string{"channel", "result"},
	)
	IngestMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anxiety_ingest_messages_total",
			Help: "Total number of ingested messages, by source and result.",
		},
		[]string{"source", "result"},
	)
	EvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "anxiety_evaluation_duration_seconds",
			Help:    "Time spent handling a single reading.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		ReadingsTotal,
		AlertsTotal,
		SuppressionsTotal,
		DeliveriesTotal,
		NotificationAttemptsTotal,
		IngestMessagesTotal,
		EvaluationDuration,
	)
}
