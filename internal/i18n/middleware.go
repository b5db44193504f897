// middleware.go — определение языка пользователя в HTTP-запросе.
package i18n

import (
	"net/http"
)

// LangCookieName — cookie с явно выбранным языком.
const LangCookieName = "lang"

// Middleware помещает язык запроса в контекст.
// Приоритет: cookie "lang" → Accept-Language → fallback.
func Middleware(fallback string) func(http.Handler) http.Handler {
	if !IsSupported(fallback) {
		fallback = LangEnglish
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithLang(r.Context(), DetectLanguage(r, fallback))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DetectLanguage определяет язык запроса.
func DetectLanguage(r *http.Request, fallback string) string {
	if cookie, err := r.Cookie(LangCookieName); err == nil && IsSupported(cookie.Value) {
		return cookie.Value
	}
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		return MatchLanguage(accept, fallback)
	}
	return fallback
}
