// dephealth.go — мониторинг зависимостей через topologymetrics SDK.
//
// Traffic Admin проверяет:
//   - backend REST API — HTTP checker к пути проверки (critical);
//   - PostgreSQL — только если настроен, через существующий пул (не critical:
//     без базы консоль теряет лишь синхронизацию настроек).
//
// Метрики app_dependency_* публикуются на /metrics вместе с остальными.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для backend
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// Имена зависимостей в метриках.
const (
	DepBackend    = "traffic-backend"
	DepPostgreSQL = "postgresql"
)

// DephealthConfig — параметры мониторинга зависимостей.
type DephealthConfig struct {
	// ServiceID — имя вершины графа текущего приложения
	ServiceID string
	// Group — группа в метриках (TA_DEPHEALTH_GROUP)
	Group string
	// BackendURL — базовый URL backend REST API
	BackendURL string
	// BackendHealthPath — путь проверки backend
	BackendHealthPath string
	// DB — *sql.DB поверх pgxpool; nil — PostgreSQL не проверяется
	DB *sql.DB
	// DBURL — URL PostgreSQL для лейблов (без пароля)
	DBURL string
	// CheckInterval — интервал проверки
	CheckInterval time.Duration
	// Registerer — реестр метрик; nil — глобальный
	Registerer prometheus.Registerer
}

// DephealthService — сервис мониторинга зависимостей.
type DephealthService struct {
	dh     *dephealth.DepHealth
	deps   []string
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	backendOpts := []dephealth.DependencyOption{
		dephealth.FromURL(cfg.BackendURL),
		dephealth.WithHTTPHealthPath(backendHealthPath(cfg.BackendHealthPath)),
		dephealth.CheckInterval(cfg.CheckInterval),
		dephealth.Critical(true),
	}
	if parsed, err := url.Parse(cfg.BackendURL); err == nil && parsed.Scheme == "https" {
		backendOpts = append(backendOpts, dephealth.WithHTTPTLSSkipVerify(false))
	}

	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.HTTP(DepBackend, backendOpts...),
	}
	deps := []string{DepBackend}

	if cfg.DB != nil {
		opts = append(opts, dephealth.AddDependency(DepPostgreSQL, dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)),
			dephealth.FromURL(cfg.DBURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(false),
		))
		deps = append(deps, DepPostgreSQL)
	}
	if cfg.Registerer != nil {
		opts = append(opts, dephealth.WithRegisterer(cfg.Registerer))
	}

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		deps:   deps,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Dependencies возвращает имена проверяемых зависимостей.
func (ds *DephealthService) Dependencies() []string {
	return ds.deps
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен", slog.Any("dependencies", ds.deps))
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}

// Name — имя проверки готовности.
func (ds *DephealthService) Name() string {
	return "dependencies"
}

// CheckReady сводит последние результаты проверок в статус готовности.
func (ds *DephealthService) CheckReady(_ context.Context) (status, message string) {
	return readiness(ds.Health())
}

// readiness: недоступный backend — fail, прочие недоступные — degraded.
// Ключи Health() имеют вид "dependency:host:port".
func readiness(health map[string]bool) (status, message string) {
	var down []string
	backendDown := false
	for key, ok := range health {
		if ok {
			continue
		}
		down = append(down, key)
		if strings.HasPrefix(key, DepBackend) {
			backendDown = true
		}
	}
	if len(down) == 0 {
		return "ok", ""
	}
	sort.Strings(down)
	message = "недоступны: " + strings.Join(down, ", ")
	if backendDown {
		return "fail", message
	}
	return "degraded", message
}

// backendHealthPath возвращает путь проверки backend.
func backendHealthPath(path string) string {
	if path == "" {
		return "/actuator/health"
	}
	return path
}
