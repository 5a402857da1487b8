package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mailsync/backend/internal/domain"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 同步指标
	SyncRunsTotal    *prometheus.CounterVec
	SyncRunDuration  *prometheus.HistogramVec
	SyncItemsTotal   *prometheus.CounterVec
	SyncLastSuccess  prometheus.Gauge
	MailItemsStored  prometheus.Gauge

	// 上游指标
	GraphRequestsTotal *prometheus.CounterVec
	TokenRefreshTotal  *prometheus.CounterVec

	// 存储指标
	StoreRetriesTotal   *prometheus.CounterVec
	DatabaseConnections prometheus.Gauge

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		// HTTP 请求指标
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsync_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailsync_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		// 同步指标
		SyncRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsync_sync_runs_total",
				Help: "Total number of sync runs",
			},
			[]string{"mode", "outcome"},
		),

		SyncRunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailsync_sync_run_duration_seconds",
				Help:    "Sync run duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"mode"},
		),

		SyncItemsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsync_sync_items_total",
				Help: "Total number of items processed by sync runs",
			},
			[]string{"result"},
		),

		SyncLastSuccess: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailsync_sync_last_success_timestamp_seconds",
				Help: "Unix timestamp of the last successful sync run",
			},
		),

		MailItemsStored: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailsync_mail_items_stored",
				Help: "Number of active mail items in the store",
			},
		),

		// 上游指标
		GraphRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsync_graph_requests_total",
				Help: "Total number of Microsoft Graph requests",
			},
			[]string{"operation", "status_code"},
		),

		TokenRefreshTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsync_token_refresh_total",
				Help: "Total number of token refresh attempts",
			},
			[]string{"outcome"},
		),

		// 存储指标
		StoreRetriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsync_store_retries_total",
				Help: "Total number of store operation retries",
			},
			[]string{"operation"},
		),

		DatabaseConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailsync_database_connections",
				Help: "Number of database connections",
			},
		),

		// 错误指标
		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsync_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailsync_panics_total",
				Help: "Total number of panics",
			},
		),

		// 限流指标
		RateLimitBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsync_rate_limit_blocks_total",
				Help: "Total number of rate limit blocks",
			},
			[]string{"endpoint"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSyncRun 记录一次同步运行
func (m *Metrics) RecordSyncRun(mode, outcome string, duration time.Duration) {
	m.SyncRunsTotal.WithLabelValues(mode, outcome).Inc()
	m.SyncRunDuration.WithLabelValues(mode).Observe(duration.Seconds())
	if outcome == domain.SyncOutcomeOK {
		m.SyncLastSuccess.SetToCurrentTime()
	}
}

// RecordSyncItems 记录对账结果计数
func (m *Metrics) RecordSyncItems(stats domain.SyncStats) {
	m.SyncItemsTotal.WithLabelValues("inserted").Add(float64(stats.Inserted))
	m.SyncItemsTotal.WithLabelValues("updated").Add(float64(stats.Updated))
	m.SyncItemsTotal.WithLabelValues("unchanged").Add(float64(stats.Unchanged))
	m.SyncItemsTotal.WithLabelValues("skipped").Add(float64(stats.Skipped))
}

// RecordGraphRequest 记录上游请求
func (m *Metrics) RecordGraphRequest(operation, statusCode string) {
	m.GraphRequestsTotal.WithLabelValues(operation, statusCode).Inc()
}

// RecordTokenRefresh 记录令牌刷新
func (m *Metrics) RecordTokenRefresh(outcome string) {
	m.TokenRefreshTotal.WithLabelValues(outcome).Inc()
}

// RecordStoreRetry 记录存储重试
func (m *Metrics) RecordStoreRetry(operation string) {
	m.StoreRetriesTotal.WithLabelValues(operation).Inc()
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(endpoint string) {
	m.RateLimitBlocks.WithLabelValues(endpoint).Inc()
}

// UpdateMailItemsStored 更新库内邮件数
func (m *Metrics) UpdateMailItemsStored(count int) {
	m.MailItemsStored.Set(float64(count))
}

// UpdateDatabaseConnections 更新数据库连接数
func (m *Metrics) UpdateDatabaseConnections(count int) {
	m.DatabaseConnections.Set(float64(count))
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
