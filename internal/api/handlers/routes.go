package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes регистрирует маршруты консоли на router.
// withSession восстанавливает сессию для /api, requireSession закрывает
// маршруты, которым нужен вход. Health и metrics идут без сессии.
func (h *APIHandler) RegisterRoutes(router chi.Router, withSession, requireSession func(http.Handler) http.Handler) {
	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	router.Route("/api", func(r chi.Router) {
		r.Use(withSession)

		r.Get("/session", h.GetSession)
		r.Post("/session/login", h.Login)
		r.Post("/session/register", h.Register)
		r.Post("/session/logout", h.Logout)
		r.Get("/navigation", h.ResolveNavigation)

		// Тема доступна и до входа
		r.Get("/preferences", h.GetPreferences)
		r.Put("/preferences/theme", h.SetTheme)
		r.Put("/preferences/language", h.SetLanguage)

		r.Group(func(r chi.Router) {
			r.Use(requireSession)

			r.Get("/screens", h.ListScreens)

			r.Get("/entities", h.ListEntities)
			r.Get("/entities/{key}", h.ListRecords)
			r.Post("/entities/{key}", h.CreateRecord)
			r.Get("/entities/{key}/form", h.GetForm)
			r.Put("/entities/{key}/{id}", h.UpdateRecord)
			r.Delete("/entities/{key}/{id}", h.DeleteRecord)

			r.Post("/appeals/{id}/approve", h.ApproveAppeal)
			r.Post("/appeals/{id}/reject", h.RejectAppeal)

			r.Get("/chat/stream", h.StreamChat)
			r.Delete("/chat/stream", h.StopChat)

			r.Get("/system/logs", h.GetSystemLogs)
		})
	})
}
