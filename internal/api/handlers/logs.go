// logs.go — экран системных журналов.
package handlers

import (
	"net/http"

	"github.com/bigkaa/trafficadmin/internal/guard"
	"github.com/bigkaa/trafficadmin/internal/service"
)

// systemLogsRoute — экран журналов; его роли ограничивают endpoint.
const systemLogsRoute = "/systemLogPage"

// logOverviewResponse — обзор журналов с ошибками отдельных панелей.
type logOverviewResponse struct {
	*service.LogOverview
	// Errors — переведённые ошибки панелей: counts, logins, operations.
	Errors map[string]string `json:"errors,omitempty"`
}

// GetSystemLogs — GET /api/system/logs.
// Панели загружаются независимо: ошибка одной не даёт ответа с ошибкой.
func (h *APIHandler) GetSystemLogs(w http.ResponseWriter, r *http.Request) {
	sess := h.state(r).Session()
	required, _ := h.routes.Lookup(systemLogsRoute)
	if !guard.Allowed(required, sess) {
		h.writeServiceError(w, r, errForbidden, systemLogsRoute)
		return
	}

	overview := h.logs.Overview(r.Context(), h.backend(r))
	resp := logOverviewResponse{LogOverview: overview}
	if len(overview.Errors) > 0 {
		resp.Errors = make(map[string]string, len(overview.Errors))
		for panel, err := range overview.Errors {
			resp.Errors[panel] = service.InlineMessage(h.bundle, err, h.lang(r))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
