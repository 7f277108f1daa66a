package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 单账户抓取耗时（秒）
	AccountFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "account_fetch_duration_seconds",
			Help:    "Per-account fetch run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~200s
		},
		[]string{"status"},
	)

	// 整轮抓取耗时（秒）
	IngestPassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_pass_duration_seconds",
			Help:    "Full ingestion pass duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~400s
		},
		[]string{"trigger"}, // trigger: scheduled, manual
	)

	// 邮件入库计数
	EmailIngestedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_ingested_count",
			Help: "Total number of messages run through the ingestion pipeline",
		},
		[]string{"status"}, // status: new, updated, duplicate, error
	)

	// 账户级失败计数
	AccountFailureCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_failure_count",
			Help: "Total number of account-level fetch failures",
		},
		[]string{"reason"},
	)

	// 分类结果计数
	CategorizedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_categorized_count",
			Help: "Total number of messages per assigned main category",
		},
		[]string{"main_category"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"query"},
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

	// Outbox 事件发布计数
	OutboxPublishCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_publish_count",
			Help: "Total number of outbox events published to MQ",
		},
		[]string{"status"}, // status: sent, failed
	)
)

// RecordAccountFetchDuration 记录单账户抓取耗时
func RecordAccountFetchDuration(status string, duration time.Duration) {
	AccountFetchDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordIngestPassDuration 记录整轮抓取耗时
func RecordIngestPassDuration(trigger string, duration time.Duration) {
	IngestPassDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// IncrementEmailIngested 增加邮件入库计数
func IncrementEmailIngested(status string) {
	EmailIngestedCount.WithLabelValues(status).Inc()
}

// IncrementAccountFailure 增加账户失败计数
func IncrementAccountFailure(reason string) {
	AccountFailureCount.WithLabelValues(reason).Inc()
}

// IncrementCategorized 增加分类计数
func IncrementCategorized(mainCategory string) {
	CategorizedCount.WithLabelValues(mainCategory).Inc()
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery(query string) {
	SlowQueryCount.WithLabelValues(query).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementOutboxPublish 增加 outbox 发布计数
func IncrementOutboxPublish(status string) {
	OutboxPublishCount.WithLabelValues(status).Inc()
}
