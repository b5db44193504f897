// metrics.go — Prometheus метрики исходящих запросов к backend.
// Регистрирует метрики: ta_backend_requests_total, ta_backend_request_duration_seconds.
package apiclient

import (
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// backendRequestsTotal — количество запросов к backend по статусу.
	// status = "error" для сбоев транспорта.
	backendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ta_backend_requests_total",
			Help: "Общее количество запросов к backend REST API",
		},
		[]string{"method", "path", "status"},
	)

	// backendRequestDuration — длительность запросов к backend.
	backendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ta_backend_request_duration_seconds",
			Help:    "Длительность запросов к backend REST API в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// normalizeBackendPath заменяет числовые и UUID-сегменты пути на {id},
// чтобы кардинальность лейблов не росла с числом записей.
// /api/offenses/42 → /api/offenses/{id}
func normalizeBackendPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if isNumeric(seg) {
			segments[i] = "{id}"
			continue
		}
		if len(seg) == 36 {
			if _, err := uuid.Parse(seg); err == nil {
				segments[i] = "{id}"
			}
		}
	}
	return strings.Join(segments, "/")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
