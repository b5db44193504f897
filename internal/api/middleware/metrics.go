// metrics.go — Prometheus HTTP метрики BFF.
// Регистрирует метрики: ta_http_requests_total, ta_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ta_http_requests_total",
			Help: "Общее количество HTTP-запросов к Traffic Admin",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ta_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Traffic Admin в секундах",
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

			wrapped := newStatusRecorder(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.status)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// normalizePath заменяет идентификаторы записей на {id}.
// Ключ сущности остаётся: набор сущностей конечен.
// /api/entities/offenses/42 → /api/entities/offenses/{id}
// /api/appeals/7/approve → /api/appeals/{id}/approve
func normalizePath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) >= 4 && parts[0] == "api" && parts[1] == "entities":
		if parts[3] != "form" {
			parts[3] = "{id}"
		}
	case len(parts) >= 3 && parts[0] == "api" && parts[1] == "appeals":
		parts[2] = "{id}"
	case len(parts) > 0 && parts[0] != "api" && parts[0] != "health" && parts[0] != "metrics":
		// Страницы SPA и статика — одним лейблом
		return "/app"
	}
	return "/" + strings.Join(parts, "/")
}
