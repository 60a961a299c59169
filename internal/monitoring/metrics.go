package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 代理池指标
	ProxiesAllocated prometheus.Counter
	ProxiesConsumed  prometheus.Counter
	ProxiesUploaded  prometheus.Counter
	ProxiesDeleted   prometheus.Counter
	PoolAvailable    prometheus.Gauge
	PoolReserved     prometheus.Gauge

	// 用户指标
	UsersTotal  prometheus.Gauge
	UsersActive prometheus.Gauge

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxypool_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "proxypool_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		ProxiesAllocated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "proxypool_proxies_allocated_total",
				Help: "Total number of proxies reserved into batches",
			},
		),

		ProxiesConsumed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "proxypool_proxies_consumed_total",
				Help: "Total number of proxies delivered and removed from the pool",
			},
		),

		ProxiesUploaded: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "proxypool_proxies_uploaded_total",
				Help: "Total number of proxies imported",
			},
		),

		ProxiesDeleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "proxypool_proxies_deleted_total",
				Help: "Total number of proxies removed by pool wipes",
			},
		),

		PoolAvailable: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "proxypool_pool_available",
				Help: "Number of unused proxies currently in the pool",
			},
		),

		PoolReserved: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "proxypool_pool_reserved",
				Help: "Number of proxies held by active reservations",
			},
		),

		UsersTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "proxypool_users_total",
				Help: "Total number of accounts",
			},
		),

		UsersActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "proxypool_users_active",
				Help: "Number of active accounts",
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxypool_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "proxypool_panics_total",
				Help: "Total number of panics",
			},
		),

		RateLimitBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxypool_rate_limit_blocks_total",
				Help: "Total number of rate limited requests",
			},
			[]string{"type"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
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
func (m *Metrics) RecordRateLimitBlock(limitType string) {
	m.RateLimitBlocks.WithLabelValues(limitType).Inc()
}

// UpdatePool 更新池规模指标
func (m *Metrics) UpdatePool(available, reserved int) {
	m.PoolAvailable.Set(float64(available))
	m.PoolReserved.Set(float64(reserved))
}

// UpdateUsers 更新账户指标
func (m *Metrics) UpdateUsers(total, active int) {
	m.UsersTotal.Set(float64(total))
	m.UsersActive.Set(float64(active))
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
