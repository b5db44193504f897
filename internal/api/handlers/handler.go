// handler.go — основной обработчик API консоли (BFF).
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
// Состояние пользователя (хранилище и сессия) приходит из SessionMiddleware.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/trafficadmin/internal/api/errors"
	"github.com/bigkaa/trafficadmin/internal/api/middleware"
	"github.com/bigkaa/trafficadmin/internal/apiclient"
	"github.com/bigkaa/trafficadmin/internal/apperr"
	"github.com/bigkaa/trafficadmin/internal/guard"
	"github.com/bigkaa/trafficadmin/internal/i18n"
	"github.com/bigkaa/trafficadmin/internal/service"
)

// maxBodySize — предел тела JSON-запроса.
const maxBodySize = 1 << 20

// errForbidden — отказ в доступе к экрану без собственной сущности.
var errForbidden = apperr.Authorization("")

// APIHandler — основной обработчик API консоли.
type APIHandler struct {
	health   *HealthHandler
	client   *apiclient.Client
	entities *service.EntityService
	routes   *guard.Table
	chat     *service.ChatService
	logs     *service.SystemLogService
	prefs    *service.PreferencesService
	bundle   *i18n.Bundle
	logger   *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
// client — общий клиент backend без учётных данных: каждый запрос
// получает копию, привязанную к своей сессии.
func NewAPIHandler(
	health *HealthHandler,
	client *apiclient.Client,
	entities *service.EntityService,
	routes *guard.Table,
	chat *service.ChatService,
	logs *service.SystemLogService,
	prefs *service.PreferencesService,
	bundle *i18n.Bundle,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:   health,
		client:   client,
		entities: entities,
		routes:   routes,
		chat:     chat,
		logs:     logs,
		prefs:    prefs,
		bundle:   bundle,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// state возвращает состояние запроса. Маршруты API всегда проходят
// через SessionMiddleware, так что nil означает ошибку сборки роутера.
func (h *APIHandler) state(r *http.Request) *middleware.State {
	st := middleware.StateFromContext(r.Context())
	if st == nil {
		panic("handlers: запрос без SessionMiddleware")
	}
	return st
}

// backend возвращает клиент backend, привязанный к сессии запроса:
// токен берётся из неё, 401 очищает её хранилище.
func (h *APIHandler) backend(r *http.Request) *apiclient.Client {
	return h.client.WithCredentials(h.state(r).Store)
}

// lang возвращает язык запроса.
func (h *APIHandler) lang(r *http.Request) string {
	return i18n.LangFromContext(r.Context())
}

// translate переводит ключ каталога на язык запроса.
func (h *APIHandler) translate(r *http.Request, key string) string {
	return h.bundle.Translate(h.lang(r), key)
}

// writeServiceError переводит ошибку сервиса в ответ.
// from — экран, с которого пришёл запрос: при отказе в доступе клиент
// уходит на /login с возвратом на него.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, from string) {
	msg := service.InlineMessage(h.bundle, err, h.lang(r))

	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrUnknownEntity):
		apierrors.NotFound(w, msg)
		return
	case errors.Is(err, service.ErrNoSession):
		apierrors.Unauthorized(w, msg)
		return
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, msg)
		return
	}

	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		apierrors.ValidationError(w, msg)
	case apperr.KindAuth:
		apierrors.Unauthorized(w, msg)
	case apperr.KindAuthorization:
		apierrors.Forbidden(w, guard.LoginRedirect(from))
	case apperr.KindNetwork:
		apierrors.BackendUnavailable(w, msg)
	case apperr.KindAPI:
		apierrors.BackendError(w, backendStatus(err), msg)
	default:
		h.logger.Error("Необработанная ошибка",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, msg)
	}
}

// backendStatus возвращает HTTP-статус ошибки backend.
// Статусы вне 4xx/5xx отдаются как 502.
func backendStatus(err error) int {
	var e *apperr.Error
	if errors.As(err, &e) && e.Status >= 400 && e.Status < 600 {
		return e.Status
	}
	return http.StatusBadGateway
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает тело запроса. При ошибке отвечает 400 и возвращает false.
func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return false
	}
	return true
}

// messageResponse — ответ с сообщением для пользователя.
type messageResponse struct {
	Message string `json:"message"`
}
