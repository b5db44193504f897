// syslogs.go — обзор системных журналов: счётчики и последние записи.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/bigkaa/trafficadmin/internal/domain/model"
	"github.com/bigkaa/trafficadmin/internal/entity"
)

// Пути журналов backend.
const (
	PathLogsOverview        = "/api/system/logs/overview"
	PathLogsLoginRecent     = "/api/system/logs/login/recent"
	PathLogsOperationRecent = "/api/system/logs/operation/recent"
	DefaultRecentLogsLimit  = 10
)

// LogBackend — чтение журналов backend.
type LogBackend interface {
	entity.Lister
	GetJSON(ctx context.Context, path string, params url.Values, out any) error
}

// LogCounts — счётчики журналов. nil — значение недоступно.
type LogCounts struct {
	LoginLogCount       *int64 `json:"loginLogCount"`
	OperationLogCount   *int64 `json:"operationLogCount"`
	RequestHistoryCount *int64 `json:"requestHistoryCount"`
}

// LogOverview — данные экрана системных журналов. Каждая панель
// загружается независимо: ошибка одной не скрывает остальные.
type LogOverview struct {
	Counts           LogCounts      `json:"counts"`
	RecentLogins     []model.Record `json:"recentLogins"`
	RecentOperations []model.Record `json:"recentOperations"`
	// Errors — ошибки панелей: counts, logins, operations.
	Errors map[string]error `json:"-"`
}

// SystemLogService — обзор системных журналов.
type SystemLogService struct {
	limit  int
	logger *slog.Logger
}

// NewSystemLogService создаёт сервис журналов. limit — число последних записей.
func NewSystemLogService(limit int, logger *slog.Logger) *SystemLogService {
	if limit <= 0 {
		limit = DefaultRecentLogsLimit
	}
	return &SystemLogService{
		limit:  limit,
		logger: logger.With(slog.String("service", "system_logs")),
	}
}

// Overview загружает счётчики и последние записи журналов входа и операций.
func (s *SystemLogService) Overview(ctx context.Context, backend LogBackend) *LogOverview {
	out := &LogOverview{
		RecentLogins:     []model.Record{},
		RecentOperations: []model.Record{},
		Errors:           make(map[string]error),
	}

	var raw map[string]any
	if err := backend.GetJSON(ctx, PathLogsOverview, nil, &raw); err != nil {
		out.Errors["counts"] = err
	} else {
		out.Counts = LogCounts{
			LoginLogCount:       countOf(raw["loginLogCount"]),
			OperationLogCount:   countOf(raw["operationLogCount"]),
			RequestHistoryCount: countOf(raw["requestHistoryCount"]),
		}
	}

	params := url.Values{"limit": {strconv.Itoa(s.limit)}}
	if rows, err := backend.List(ctx, PathLogsLoginRecent, params); err != nil {
		out.Errors["logins"] = err
	} else {
		out.RecentLogins = rows
	}
	if rows, err := backend.List(ctx, PathLogsOperationRecent, params); err != nil {
		out.Errors["operations"] = err
	} else {
		out.RecentOperations = rows
	}

	for panel, err := range out.Errors {
		s.logger.Warn("Панель журналов не загружена",
			slog.String("panel", panel),
			slog.String("error", err.Error()),
		)
	}
	return out
}

// countOf читает счётчик из JSON-числа или строки.
func countOf(v any) *int64 {
	var s string
	switch val := v.(type) {
	case json.Number:
		s = val.String()
	case float64:
		n := int64(val)
		return &n
	case string:
		s = val
	default:
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
