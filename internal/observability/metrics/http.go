package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics records request counts and latencies for the Prometheus scrape endpoint.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
}

func NewHTTPMetrics(cfg Config) *HTTPMetrics {
	return newHTTPMetrics(prometheus.DefaultRegisterer, cfg)
}

func newHTTPMetrics(registerer prometheus.Registerer, cfg Config) *HTTPMetrics {
	constLabels := prometheus.Labels{"service": cfg.ServiceName}
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "procura_http_requests_total",
			Help:        "HTTP requests by route, method and status code.",
			ConstLabels: constLabels,
		}, []string{"route", "method", "status_code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "procura_http_request_duration_seconds",
			Help:        "HTTP request latency by route and method.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"route", "method"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "procura_http_requests_inflight",
			Help:        "HTTP requests currently being served, including open event streams.",
			ConstLabels: constLabels,
		}),
	}
	m.requests = registerOrExisting(registerer, m.requests).(*prometheus.CounterVec)
	m.duration = registerOrExisting(registerer, m.duration).(*prometheus.HistogramVec)
	m.inflight = registerOrExisting(registerer, m.inflight).(prometheus.Gauge)
	return m
}

func registerOrExisting(registerer prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := registerer.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return already.ExistingCollector
		}
	}
	return c
}

// GinMiddleware records request metrics for every route.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		m.inflight.Inc()
		defer m.inflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
