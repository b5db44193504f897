// entities.go — экраны сущностей: таблица, форма, изменения, жалобы.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/trafficadmin/internal/domain/model"
	"github.com/bigkaa/trafficadmin/internal/entity"
	"github.com/bigkaa/trafficadmin/internal/service"
	"github.com/bigkaa/trafficadmin/internal/session"
)

// appealsEntity — ключ сущности жалоб в реестре.
const appealsEntity = "appeals"

// entitySummary — описание экрана сущности для клиента.
type entitySummary struct {
	Key    string             `json:"key"`
	Label  string             `json:"label"`
	Route  string             `json:"route"`
	Fields []entity.FieldSpec `json:"fields"`
}

// tableResponse — записи экрана после выборки или изменения.
type tableResponse struct {
	Entity entitySummary `json:"entity"`
	Query  string        `json:"query"`
	Total  int           `json:"total"`
	Table  entity.Table  `json:"table"`
}

// formResponse — форма создания или редактирования.
type formResponse struct {
	Entity entitySummary      `json:"entity"`
	ID     string             `json:"id,omitempty"`
	Fields []entity.FormField `json:"fields"`
}

// deleteResponse — результат удаления. Без подтверждения запись
// не удаляется, клиент получает текст вопроса.
type deleteResponse struct {
	Deleted bool         `json:"deleted"`
	Prompt  string       `json:"prompt,omitempty"`
	Target  string       `json:"target,omitempty"`
	Table   entity.Table `json:"table"`
}

// reviewRequest — тело решения по жалобе.
type reviewRequest struct {
	Result string `json:"result"`
}

func summaryOf(cfg *entity.Config) entitySummary {
	return entitySummary{Key: cfg.Key, Label: cfg.Label, Route: cfg.Route, Fields: cfg.Fields}
}

// entitySummaries возвращает сущности, доступные сессии.
func (h *APIHandler) entitySummaries(sess *session.Session) []entitySummary {
	available := h.entities.Available(sess)
	out := make([]entitySummary, 0, len(available))
	for _, cfg := range available {
		out = append(out, summaryOf(cfg))
	}
	return out
}

// openScreen открывает экран сущности из пути запроса.
// При ошибке ответ уже записан.
func (h *APIHandler) openScreen(w http.ResponseWriter, r *http.Request, key string) (*service.CrudScreen, bool) {
	screen, err := h.entities.Screen(key, h.state(r).Session(), h.backend(r))
	if err != nil {
		from := ""
		if cfg, ok := h.entities.Registry().Get(key); ok {
			from = cfg.Route
		}
		h.writeServiceError(w, r, err, from)
		return nil, false
	}
	return screen, true
}

// loadRecord загружает записи экрана со строкой поиска q и ищет запись id.
func (h *APIHandler) loadRecord(w http.ResponseWriter, r *http.Request, screen *service.CrudScreen, id string) (model.Record, bool) {
	if _, err := screen.List(r.Context(), r.URL.Query().Get("q")); err != nil {
		h.writeServiceError(w, r, err, screen.Config().Route)
		return nil, false
	}
	rec, err := screen.Find(id)
	if err != nil {
		h.writeServiceError(w, r, err, screen.Config().Route)
		return nil, false
	}
	return rec, true
}

func (h *APIHandler) writeTable(w http.ResponseWriter, r *http.Request, status int, screen *service.CrudScreen) {
	table := screen.Table()
	writeJSON(w, status, tableResponse{
		Entity: summaryOf(screen.Config()),
		Query:  r.URL.Query().Get("q"),
		Total:  len(table.Rows),
		Table:  table,
	})
}

// ListEntities — GET /api/entities.
func (h *APIHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.entitySummaries(h.state(r).Session()))
}

// ListRecords — GET /api/entities/{key}?q=.
// Пустая строка поиска возвращает все записи.
func (h *APIHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	screen, ok := h.openScreen(w, r, chi.URLParam(r, "key"))
	if !ok {
		return
	}
	if _, err := screen.List(r.Context(), r.URL.Query().Get("q")); err != nil {
		h.writeServiceError(w, r, err, screen.Config().Route)
		return
	}
	h.writeTable(w, r, http.StatusOK, screen)
}

// GetForm — GET /api/entities/{key}/form?id=.
// Без id возвращает пустую форму создания.
func (h *APIHandler) GetForm(w http.ResponseWriter, r *http.Request) {
	screen, ok := h.openScreen(w, r, chi.URLParam(r, "key"))
	if !ok {
		return
	}

	id := r.URL.Query().Get("id")
	resp := formResponse{Entity: summaryOf(screen.Config()), ID: id}
	if id == "" {
		resp.Fields = screen.Form(nil)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	rec, ok := h.loadRecord(w, r, screen, id)
	if !ok {
		return
	}
	resp.Fields = screen.Form(rec)
	writeJSON(w, http.StatusOK, resp)
}

// CreateRecord — POST /api/entities/{key}. Ответ — список после повторной выборки.
func (h *APIHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	screen, ok := h.openScreen(w, r, chi.URLParam(r, "key"))
	if !ok {
		return
	}
	var form map[string]any
	if !decodeJSON(w, r, &form) {
		return
	}

	screen.Search(r.URL.Query().Get("q"))
	if _, err := screen.Create(r.Context(), form); err != nil {
		h.writeServiceError(w, r, err, screen.Config().Route)
		return
	}
	h.writeTable(w, r, http.StatusCreated, screen)
}

// UpdateRecord — PUT /api/entities/{key}/{id}.
func (h *APIHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	screen, ok := h.openScreen(w, r, chi.URLParam(r, "key"))
	if !ok {
		return
	}
	var form map[string]any
	if !decodeJSON(w, r, &form) {
		return
	}

	rec, ok := h.loadRecord(w, r, screen, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if _, err := screen.Update(r.Context(), rec, form); err != nil {
		h.writeServiceError(w, r, err, screen.Config().Route)
		return
	}
	h.writeTable(w, r, http.StatusOK, screen)
}

// DeleteRecord — DELETE /api/entities/{key}/{id}?confirm=true.
// Без confirm=true backend не вызывается.
func (h *APIHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	screen, ok := h.openScreen(w, r, chi.URLParam(r, "key"))
	if !ok {
		return
	}
	rec, ok := h.loadRecord(w, r, screen, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	var target string
	confirm := service.ConfirmFunc(func(_ context.Context, prompt string) (bool, error) {
		target = prompt
		return confirmed, nil
	})

	deleted, _, err := screen.Delete(r.Context(), rec, confirm)
	if err != nil {
		h.writeServiceError(w, r, err, screen.Config().Route)
		return
	}

	resp := deleteResponse{Deleted: deleted, Table: screen.Table()}
	if !deleted {
		resp.Prompt = h.translate(r, "confirm.delete")
		resp.Target = target
	}
	writeJSON(w, http.StatusOK, resp)
}

// ApproveAppeal — POST /api/appeals/{id}/approve.
func (h *APIHandler) ApproveAppeal(w http.ResponseWriter, r *http.Request) {
	h.reviewAppeal(w, r, true)
}

// RejectAppeal — POST /api/appeals/{id}/reject.
func (h *APIHandler) RejectAppeal(w http.ResponseWriter, r *http.Request) {
	h.reviewAppeal(w, r, false)
}

func (h *APIHandler) reviewAppeal(w http.ResponseWriter, r *http.Request, approve bool) {
	screen, ok := h.openScreen(w, r, appealsEntity)
	if !ok {
		return
	}
	var req reviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	appeal, ok := h.loadRecord(w, r, screen, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	appeals := service.NewAppealService(screen, h.logger)
	var err error
	if approve {
		_, err = appeals.Approve(r.Context(), appeal, req.Result)
	} else {
		_, err = appeals.Reject(r.Context(), appeal, req.Result)
	}
	if err != nil {
		h.writeServiceError(w, r, err, screen.Config().Route)
		return
	}
	h.writeTable(w, r, http.StatusOK, screen)
}
