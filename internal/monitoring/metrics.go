package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 提交指标
	SubmissionsTotal  *prometheus.CounterVec // 按结果分类: success / queued / error / blocked / bot
	SubmissionLatency prometheus.Histogram

	// 发件箱指标
	OutboxDepth     prometheus.Gauge
	FlushCycles     prometheus.Counter
	FlushDelivered  prometheus.Counter
	FlushFailures   prometheus.Counter
	FlushLockMissed prometheus.Counter // 跨进程锁被其他实例持有的次数

	// 连通性指标
	ProbeResults *prometheus.CounterVec // 按结果分类: online / offline

	// 离线缓存指标
	CacheHits      *prometheus.CounterVec // 按资源类别分类
	CacheMisses    *prometheus.CounterVec
	CacheFallbacks prometheus.Counter // 离线回退页命中次数

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks prometheus.Counter
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agencysite_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agencysite_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		SubmissionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agencysite_submissions_total",
				Help: "Contact form submissions by outcome",
			},
			[]string{"outcome"},
		),

		SubmissionLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agencysite_submission_duration_seconds",
				Help:    "Time spent handling a submission end to end",
				Buckets: prometheus.DefBuckets,
			},
		),

		OutboxDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "agencysite_outbox_depth",
				Help: "Number of submissions waiting in the outbox",
			},
		),

		FlushCycles: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "agencysite_flush_cycles_total",
				Help: "Total outbox flush cycles started",
			},
		),

		FlushDelivered: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "agencysite_flush_delivered_total",
				Help: "Queued submissions delivered by the flusher",
			},
		),

		FlushFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "agencysite_flush_failures_total",
				Help: "Flush cycles aborted by a delivery failure",
			},
		),

		FlushLockMissed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "agencysite_flush_lock_missed_total",
				Help: "Flush cycles skipped because another writer held the lock",
			},
		),

		ProbeResults: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agencysite_probe_results_total",
				Help: "Connectivity probe results",
			},
			[]string{"result"},
		),

		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agencysite_cache_hits_total",
				Help: "Offline cache hits by request class",
			},
			[]string{"class"},
		),

		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agencysite_cache_misses_total",
				Help: "Offline cache misses by request class",
			},
			[]string{"class"},
		),

		CacheFallbacks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "agencysite_cache_fallbacks_total",
				Help: "Navigations served by the offline fallback chain",
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agencysite_errors_total",
				Help: "Total errors by component",
			},
			[]string{"component"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "agencysite_panics_total",
				Help: "Total recovered panics",
			},
		),

		RateLimitBlocks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "agencysite_rate_limit_blocks_total",
				Help: "Requests rejected by the contact rate limiter",
			},
		),
	}
}

// Handler 返回 Prometheus 指标的 HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSubmission 记录一次提交结果
func (m *Metrics) RecordSubmission(outcome string) {
	m.SubmissionsTotal.WithLabelValues(outcome).Inc()
}

// RecordProbe 记录一次连通性探测结果
func (m *Metrics) RecordProbe(online bool) {
	if online {
		m.ProbeResults.WithLabelValues("online").Inc()
	} else {
		m.ProbeResults.WithLabelValues("offline").Inc()
	}
}
