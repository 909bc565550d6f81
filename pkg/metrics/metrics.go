package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 入队计数
	EnqueuedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_enqueued_total",
			Help: "Total number of notification envelopes enqueued",
		},
		[]string{"channel", "priority"},
	)

	// 投递结果计数
	DeliveredCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_delivered_total",
			Help: "Total number of notifications delivered successfully",
		},
		[]string{"channel"},
	)

	DeliveryFailureCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_delivery_failures_total",
			Help: "Total number of failed delivery attempts",
		},
		[]string{"channel", "kind"}, // kind: retryable, terminal
	)

	DeadLetteredCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_dead_lettered_total",
			Help: "Total number of envelopes moved to the dead-letter area",
		},
		[]string{"channel"},
	)

	// 单次投递耗时（秒）
	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_delivery_duration_seconds",
			Help:    "Provider delivery attempt duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"channel", "outcome"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of slow database queries",
		},
		[]string{"query"},
	)
)

// RecordEnqueued 记录一次入队
func RecordEnqueued(channel, priority string) {
	EnqueuedCount.WithLabelValues(channel, priority).Inc()
}

// RecordDelivered 记录一次成功投递
func RecordDelivered(channel string, duration time.Duration) {
	DeliveredCount.WithLabelValues(channel).Inc()
	DeliveryDuration.WithLabelValues(channel, "delivered").Observe(duration.Seconds())
}

// RecordDeliveryFailure 记录一次投递失败
func RecordDeliveryFailure(channel, kind string, duration time.Duration) {
	DeliveryFailureCount.WithLabelValues(channel, kind).Inc()
	DeliveryDuration.WithLabelValues(channel, "failed").Observe(duration.Seconds())
}

// RecordDeadLettered 记录一次死信
func RecordDeadLettered(channel string) {
	DeadLetteredCount.WithLabelValues(channel).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery(query string, duration time.Duration) {
	SlowQueryCount.WithLabelValues(query).Inc()
}
