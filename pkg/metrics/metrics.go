package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 指标管理器
// 所有方法在 nil 接收者上都是空操作，方便测试时不注入
type Metrics struct {
	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 任务指标
	tasksTotal   *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec

	// 播放指标
	playbackTransitions *prometheus.CounterVec

	// 注册表指标
	registrySize *prometheus.GaugeVec

	// 缓存指标
	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal *prometheus.CounterVec
}

// NewMetrics 在 reg 上注册指标，同一个 reg 只能调用一次
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicestudio_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voicestudio_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		tasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicestudio_tasks_total",
				Help: "Total number of finished simulated tasks",
			},
			[]string{"scope", "kind", "status"},
		),

		taskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voicestudio_task_duration_seconds",
				Help:    "Simulated task duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 3, 5, 10, 30, 60, 180},
			},
			[]string{"kind"},
		),

		playbackTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicestudio_playback_transitions_total",
				Help: "Playback session state transitions",
			},
			[]string{"state"},
		),

		registrySize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "voicestudio_registry_size",
				Help: "Current number of entries per registry",
			},
			[]string{"registry"},
		),

		cacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicestudio_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),

		cacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicestudio_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),
	}
}

// RecordTask 记录一个结束的任务
func (m *Metrics) RecordTask(scope, kind, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(scope, kind, status).Inc()
	m.taskDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordPlayback 记录播放状态切换
func (m *Metrics) RecordPlayback(state string) {
	if m == nil {
		return
	}
	m.playbackTransitions.WithLabelValues(state).Inc()
}

// SetRegistrySize 设置注册表大小
func (m *Metrics) SetRegistrySize(registry string, size int) {
	if m == nil {
		return
	}
	m.registrySize.WithLabelValues(registry).Set(float64(size))
}

// RecordCacheHit 记录缓存命中
func (m *Metrics) RecordCacheHit(cacheType string) {
	if m == nil {
		return
	}
	m.cacheHitsTotal.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (m *Metrics) RecordCacheMiss(cacheType string) {
	if m == nil {
		return
	}
	m.cacheMissesTotal.WithLabelValues(cacheType).Inc()
}

// GinMiddleware 记录HTTP请求指标，path 使用路由模板避免高基数
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
