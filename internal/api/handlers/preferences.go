// preferences.go — тема оформления и язык интерфейса.
package handlers

import (
	"net/http"
	"strings"

	"github.com/bigkaa/trafficadmin/internal/service"
)

// preferencesResponse — настройки пользователя.
type preferencesResponse struct {
	Theme    service.Theme `json:"theme"`
	Language string        `json:"language"`
	// Persistent — настройки синхронизируются через базу.
	Persistent bool `json:"persistent"`
}

// GetPreferences — GET /api/preferences. Доступен без сессии.
func (h *APIHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	st := h.state(r)
	sess := st.Session()

	lang, ok := h.prefs.Language(r.Context(), sess)
	if !ok {
		lang = h.lang(r)
	}
	writeJSON(w, http.StatusOK, preferencesResponse{
		Theme:      h.prefs.Theme(r.Context(), st.Storage, sess),
		Language:   lang,
		Persistent: h.prefs.Persistent(),
	})
}

// SetTheme — PUT /api/preferences/theme. Тема переживает выход из системы.
func (h *APIHandler) SetTheme(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Theme string `json:"theme"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	st := h.state(r)
	theme, err := h.prefs.SetTheme(r.Context(), st.Storage, st.Session(), req.Theme)
	if err != nil {
		h.writeServiceError(w, r, err, "/changeThemes")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Theme service.Theme `json:"theme"`
	}{Theme: theme})
}

// SetLanguage — PUT /api/preferences/language.
// Язык запоминается в cookie и, при наличии базы, в настройках пользователя.
func (h *APIHandler) SetLanguage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Language string `json:"language"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.prefs.SetLanguage(r.Context(), h.state(r).Session(), req.Language); err != nil {
		h.writeServiceError(w, r, err, "")
		return
	}
	lang := strings.ToLower(strings.TrimSpace(req.Language))
	setLangCookie(w, lang)
	writeJSON(w, http.StatusOK, struct {
		Language string `json:"language"`
	}{Language: lang})
}
