// metrics.go — Prometheus HTTP метрики Fantasy Cricket.
// Регистрирует метрики: fc_http_requests_total, fc_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fc_http_requests_total",
			Help: "Общее количество HTTP-запросов",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fc_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			normalizedPath := normalizePath(r.URL.Path)

			ww := wrap(w, r)
			next.ServeHTTP(ww, r)

			status := strconv.Itoa(statusOf(ww))
			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath заменяет UUID-сегменты пути на {id}; пути вне /api,
// /health и /admin сводятся к "/other" для ограничения кардинальности.
// /api/admin/users/a1b2c3d4-.../transactions → /api/admin/users/{id}/transactions
func normalizePath(path string) string {
	switch {
	case path == "/", path == "/metrics":
		return path
	case strings.HasPrefix(path, "/health/"),
		strings.HasPrefix(path, "/api/"),
		path == "/admin", strings.HasPrefix(path, "/admin/"):
	default:
		return "/other"
	}

	segments := strings.Split(path, "/")
	for i, s := range segments {
		if len(s) == 36 {
			if _, err := uuid.Parse(s); err == nil {
				segments[i] = "{id}"
			}
		}
	}
	return strings.Join(segments, "/")
}
