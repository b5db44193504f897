// navigation.go — проверка переходов и список доступных экранов.
package handlers

import (
	"net/http"

	"github.com/bigkaa/trafficadmin/internal/guard"
)

// screensResponse — экраны и сущности, доступные сессии.
type screensResponse struct {
	Landing  string          `json:"landing"`
	Screens  []guard.Screen  `json:"screens"`
	Entities []entitySummary `json:"entities"`
}

// ResolveNavigation — GET /api/navigation?path=.
// Доступен без сессии: неаутентифицированный переход получает редирект.
func (h *APIHandler) ResolveNavigation(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}
	writeJSON(w, http.StatusOK, h.routes.Resolve(path, h.state(r).Session()))
}

// ListScreens — GET /api/screens.
func (h *APIHandler) ListScreens(w http.ResponseWriter, r *http.Request) {
	sess := h.state(r).Session()

	screens := h.routes.Screens(sess)
	if screens == nil {
		screens = []guard.Screen{}
	}
	writeJSON(w, http.StatusOK, screensResponse{
		Landing:  h.routes.Landing("", sess),
		Screens:  screens,
		Entities: h.entitySummaries(sess),
	})
}
