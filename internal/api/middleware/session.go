// session.go — хранилище консоли и сессия для каждого запроса BFF.
// Хранилище читается из зашифрованного cookie, сессия восстанавливается
// из него. Изменения (login, logout, 401 от backend, смена темы)
// записываются обратно в cookie до отправки заголовков ответа.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/bigkaa/trafficadmin/internal/api/auth"
	apierrors "github.com/bigkaa/trafficadmin/internal/api/errors"
	"github.com/bigkaa/trafficadmin/internal/i18n"
	"github.com/bigkaa/trafficadmin/internal/session"
	"github.com/bigkaa/trafficadmin/internal/storage"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyState — состояние запроса в контексте.
const ContextKeyState contextKey = "ta_state"

// State — хранилище и сессия текущего запроса.
type State struct {
	Storage *storage.Memory
	Store   *session.Store
}

// Session возвращает текущую сессию или nil.
func (s *State) Session() *session.Session {
	if s == nil {
		return nil
	}
	return s.Store.Current()
}

// WithState помещает состояние в контекст.
func WithState(ctx context.Context, st *State) context.Context {
	return context.WithValue(ctx, ContextKeyState, st)
}

// StateFromContext возвращает состояние запроса или nil.
func StateFromContext(ctx context.Context) *State {
	st, _ := ctx.Value(ContextKeyState).(*State)
	return st
}

// SessionMiddleware восстанавливает сессию из cookie-хранилища.
type SessionMiddleware struct {
	cookies *auth.CookieStore
	decoder *session.Decoder
	logger  *slog.Logger

	// storeLogger — без component middleware: Store добавляет свой.
	storeLogger *slog.Logger
}

// NewSessionMiddleware создаёт middleware сессии.
func NewSessionMiddleware(cookies *auth.CookieStore, decoder *session.Decoder, logger *slog.Logger) *SessionMiddleware {
	return &SessionMiddleware{
		cookies: cookies,
		decoder: decoder,
		logger:  logger.With(slog.String("component", "session_middleware")),

		storeLogger: logger,
	}
}

// Middleware возвращает HTTP middleware.
func (m *SessionMiddleware) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mem, err := m.cookies.Load(r)
			corrupted := errors.Is(err, auth.ErrCorrupted)
			if corrupted {
				m.logger.Debug("Cookie хранилища не расшифрован, хранилище сброшено",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
			}

			store := session.NewStore(mem, m.decoder, m.storeLogger)
			store.Restore(r.Context())

			sw := &storageWriter{
				ResponseWriter: w,
				cookies:        m.cookies,
				mem:            mem,
				clear:          corrupted,
				logger:         m.logger,
			}
			ctx := WithState(r.Context(), &State{Storage: mem, Store: store})
			next.ServeHTTP(sw, r.WithContext(ctx))
			sw.commit()
		})
	}
}

// RequireSession отвечает 401, если в запросе нет активной сессии.
func RequireSession(bundle *i18n.Bundle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !StateFromContext(r.Context()).Session().Authenticated() {
				lang := i18n.LangFromContext(r.Context())
				apierrors.Unauthorized(w, bundle.Translate(lang, "error.session_expired"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// storageWriter записывает cookie хранилища перед первыми байтами ответа.
type storageWriter struct {
	http.ResponseWriter
	cookies *auth.CookieStore
	mem     *storage.Memory
	clear   bool
	logger  *slog.Logger

	once sync.Once
}

// commit сохраняет изменённое хранилище. Выполняется один раз.
func (sw *storageWriter) commit() {
	sw.once.Do(func() {
		switch {
		case sw.mem.Dirty():
			if err := sw.cookies.Save(sw.ResponseWriter, sw.mem); err != nil {
				sw.logger.Error("Ошибка записи cookie хранилища", slog.String("error", err.Error()))
			}
		case sw.clear:
			sw.cookies.Clear(sw.ResponseWriter)
		}
	})
}

func (sw *storageWriter) WriteHeader(code int) {
	sw.commit()
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *storageWriter) Write(b []byte) (int, error) {
	sw.commit()
	return sw.ResponseWriter.Write(b)
}

// FlushError нужен SSE: ResponseController сначала ищет его у обёртки.
func (sw *storageWriter) FlushError() error {
	sw.commit()
	return http.NewResponseController(sw.ResponseWriter).Flush()
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (sw *storageWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
