package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminMetrics метрики admin API в пространстве namespace:
//
//	http_request_duration_seconds{method,route,class}
//	http_requests_inflight
//	operator_actions_total{route,operator,outcome}
type AdminMetrics struct {
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
	actions  *prometheus.CounterVec
}

// NewAdminMetrics регистрирует метрики в reg
func NewAdminMetrics(namespace string, reg prometheus.Registerer) *AdminMetrics {
	m := &AdminMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Длительность запросов admin API.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "route", "class"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_inflight",
			Help:      "Запросы admin API в обработке.",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operator_actions_total",
			Help:      "Изменяющие запросы операторов.",
		}, []string{"route", "operator", "outcome"}),
	}
	reg.MustRegister(m.duration, m.inflight, m.actions)
	return m
}

func (m *AdminMetrics) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.inflight.Inc()
		defer m.inflight.Dec()

		c.Next()

		route := routeOf(c)
		status := c.Writer.Status()
		m.duration.WithLabelValues(c.Request.Method, route, statusClass(status)).Observe(time.Since(start).Seconds())

		if isMutation(c.Request.Method) && route != "unmatched" {
			operator := c.GetString(KeyOperator)
			if operator == "" {
				operator = "anonymous"
			}
			outcome := "ok"
			if status >= 400 {
				outcome = "rejected"
			}
			m.actions.WithLabelValues(route, operator, outcome).Inc()
		}
	}
}

// statusClass 2xx, 4xx и т.д.
func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

// RegisterMetricsEndpoint добавляет GET /metrics для реестра g
func RegisterMetricsEndpoint(r gin.IRoutes, g prometheus.Gatherer) {
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
}
