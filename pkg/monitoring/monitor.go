package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// 打卡提交结果：success / 失败时为错误分类
	CheckInSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_submissions_total",
			Help: "Check-in submissions by result",
		},
		[]string{"result"},
	)

	AnalysisGenerations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_generations_total",
			Help: "Text generation calls for progress analysis by result",
		},
		[]string{"result"},
	)

	AnalysisGenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_generation_duration_seconds",
			Help:    "Latency of text generation calls",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40},
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			CheckInSubmissions,
			AnalysisGenerations,
			AnalysisGenerationDuration,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
