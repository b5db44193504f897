// session.go — вход, выход, регистрация и текущая сессия.
package handlers

import (
	"net/http"

	"github.com/bigkaa/trafficadmin/internal/guard"
	"github.com/bigkaa/trafficadmin/internal/i18n"
	"github.com/bigkaa/trafficadmin/internal/service"
	"github.com/bigkaa/trafficadmin/internal/session"
)

// loginRequest — тело POST /api/session/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// From — экран, с которого пользователя отправили на вход.
	From string `json:"from,omitempty"`
}

// sessionResponse — состояние сессии для клиента.
type sessionResponse struct {
	Authenticated bool             `json:"authenticated"`
	Session       *session.Session `json:"session,omitempty"`
	Roles         []string         `json:"roles,omitempty"`
	Theme         service.Theme    `json:"theme"`
	// Redirect — куда перейти после входа.
	Redirect string `json:"redirect,omitempty"`
}

// authService создаёт сервис аутентификации для сессии запроса.
func (h *APIHandler) authService(r *http.Request) *service.AuthService {
	return service.NewAuthService(h.backend(r), h.state(r).Store, h.logger)
}

// sessionView собирает ответ о сессии.
func (h *APIHandler) sessionView(r *http.Request) sessionResponse {
	st := h.state(r)
	sess := st.Session()
	resp := sessionResponse{
		Authenticated: sess.Authenticated(),
		Theme:         h.prefs.Theme(r.Context(), st.Storage, sess),
	}
	if resp.Authenticated {
		resp.Session = sess
		resp.Roles = sess.EffectiveRoles().Strings()
	}
	return resp
}

// GetSession — GET /api/session.
func (h *APIHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessionView(r))
}

// Login — POST /api/session/login.
// После входа язык из настроек пользователя (если сохранён) попадает в cookie.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, err := h.authService(r).Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, r, err, "")
		return
	}

	if lang, ok := h.prefs.Language(r.Context(), sess); ok {
		setLangCookie(w, lang)
	}

	resp := h.sessionView(r)
	resp.Redirect = h.routes.Landing(req.From, sess)
	writeJSON(w, http.StatusOK, resp)
}

// Logout — POST /api/session/logout. Тема оформления сохраняется.
func (h *APIHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authService(r).Logout()
	writeJSON(w, http.StatusOK, struct {
		messageResponse
		Redirect string `json:"redirect"`
	}{
		messageResponse: messageResponse{Message: h.translate(r, "logout.success")},
		Redirect:        guard.LoginPath,
	})
}

// Register — POST /api/session/register.
func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.authService(r).Register(r.Context(), req); err != nil {
		h.writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: h.translate(r, "register.success")})
}

// setLangCookie запоминает выбранный язык на год.
func setLangCookie(w http.ResponseWriter, lang string) {
	http.SetCookie(w, &http.Cookie{
		Name:     i18n.LangCookieName,
		Value:    lang,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		SameSite: http.SameSiteLaxMode,
	})
}
