// chat.go — ретрансляция потока ответа ассистента клиенту (SSE).
// У каждой сессии не больше одного потока: новое сообщение закрывает
// предыдущий поток.
package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/bigkaa/trafficadmin/internal/chat"
	"github.com/bigkaa/trafficadmin/internal/service"
)

// chatEvent — данные одного SSE-события чата.
type chatEvent struct {
	Chunk string     `json:"chunk,omitempty"`
	Reply string     `json:"reply"`
	State chat.State `json:"state"`
	Error string     `json:"error,omitempty"`
}

// chatOwner — владелец потока: хеш токена сессии, сам токен в памяти
// сервиса не хранится.
func chatOwner(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

// StreamChat — GET /api/chat/stream?message=&webSearch=.
// События: "chunk" на каждый фрагмент ответа и "end" с конечным состоянием.
// Отключение клиента закрывает поток на backend.
func (h *APIHandler) StreamChat(w http.ResponseWriter, r *http.Request) {
	st := h.state(r)
	webSearch, _ := strconv.ParseBool(r.URL.Query().Get("webSearch"))
	req := chat.Request{Message: r.URL.Query().Get("message"), WebSearch: webSearch}

	owner := chatOwner(st.Store.Token())
	sub, err := h.chat.Send(r.Context(), owner, h.backend(r), req)
	if err != nil {
		h.writeServiceError(w, r, err, "/aiChat")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Отключаем буферизацию Nginx

	// ResponseController находит Flush через Unwrap() обёрток middleware
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		sub.Close()
		http.Error(w, "SSE не поддерживается", http.StatusInternalServerError)
		return
	}

	h.logger.Debug("Поток чата открыт", slog.String("owner", owner))

	for u := range sub.Updates() {
		event := "chunk"
		ev := chatEvent{Chunk: u.Chunk, Reply: u.Reply, State: u.State}
		if u.State.Terminal() {
			event = "end"
			if u.Err != nil {
				ev.Error = service.InlineMessage(h.bundle, u.Err, h.lang(r))
			}
		}

		data, err := json.Marshal(ev)
		if err != nil {
			h.logger.Error("Ошибка сериализации события чата", slog.String("error", err.Error()))
			continue
		}
		// Формат SSE: event: chunk\ndata: {json}\n\n
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		_ = rc.Flush()
	}

	h.logger.Debug("Поток чата завершён",
		slog.String("owner", owner),
		slog.String("state", string(sub.State())),
	)
}

// StopChat — DELETE /api/chat/stream.
func (h *APIHandler) StopChat(w http.ResponseWriter, r *http.Request) {
	stopped := h.chat.Stop(chatOwner(h.state(r).Store.Token()))
	writeJSON(w, http.StatusOK, struct {
		Stopped bool `json:"stopped"`
	}{Stopped: stopped})
}
