// Пакет i18n — сообщения консоли для пользователя на en, ru и zh.
// Каталоги — плоские JSON-файлы {"ключ": "перевод"}, встроенные в бинарник.
// Язык запроса: cookie "lang" → Accept-Language → язык по умолчанию.
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/text/language"
)

// localeFS — встроенные каталоги переводов.
//
//go:embed locales/*.json
var localeFS embed.FS

// Поддерживаемые языки.
const (
	LangEnglish = "en"
	LangRussian = "ru"
	LangChinese = "zh"
)

var (
	// SupportedLanguages — теги поддерживаемых языков; первый — fallback.
	SupportedLanguages = []language.Tag{
		language.English,
		language.Russian,
		language.Chinese,
	}

	matcher = language.NewMatcher(SupportedLanguages)
)

// Bundle — каталоги переводов всех языков.
type Bundle struct {
	mu       sync.RWMutex
	catalogs map[string]map[string]string // lang → key → translation
	fallback string
	logger   *slog.Logger
}

// NewBundle создаёт пустой Bundle. fallback — язык, в котором ищется
// ключ, отсутствующий в запрошенном языке.
func NewBundle(fallback string, logger *slog.Logger) *Bundle {
	if !IsSupported(fallback) {
		fallback = LangEnglish
	}
	return &Bundle{
		catalogs: make(map[string]map[string]string),
		fallback: fallback,
		logger:   logger,
	}
}

// Load создаёт Bundle со всеми встроенными каталогами.
func Load(fallback string, logger *slog.Logger) (*Bundle, error) {
	b := NewBundle(fallback, logger)
	for _, lang := range []string{LangEnglish, LangRussian, LangChinese} {
		path := fmt.Sprintf("locales/%s.json", lang)
		data, err := localeFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("i18n: не удалось прочитать %s: %w", path, err)
		}
		if err := b.LoadMessages(lang, data); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// MustLoad — Load для тестов и CLI; паника при повреждённом каталоге.
func MustLoad(fallback string) *Bundle {
	b, err := Load(fallback, nil)
	if err != nil {
		panic(err)
	}
	return b
}

// LoadMessages загружает JSON-каталог переводов для языка.
func (b *Bundle) LoadMessages(lang string, data []byte) error {
	var messages map[string]string
	if err := json.Unmarshal(data, &messages); err != nil {
		return fmt.Errorf("i18n: ошибка парсинга каталога %s: %w", lang, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.catalogs[lang] = messages

	if b.logger != nil {
		b.logger.Debug("i18n каталог загружен",
			slog.String("lang", lang),
			slog.Int("keys", len(messages)),
		)
	}
	return nil
}

// Has проверяет наличие ключа в каком-либо каталоге.
func (b *Bundle) Has(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, catalog := range b.catalogs {
		if _, ok := catalog[key]; ok {
			return true
		}
	}
	return false
}

// Translate возвращает перевод ключа. Отсутствующий ключ ищется
// в языке fallback, затем возвращается как есть.
func (b *Bundle) Translate(lang, key string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if msg, ok := b.catalogs[lang][key]; ok {
		return msg
	}
	if msg, ok := b.catalogs[b.fallback][key]; ok {
		return msg
	}
	return key
}

// Translatef — Translate с подстановкой аргументов.
func (b *Bundle) Translatef(lang, key string, args ...any) string {
	template := b.Translate(lang, key)
	if len(args) == 0 {
		return template
	}
	return formatFunc(template, args...)
}

// formatFunc — fmt.Sprintf через переменную: формат приходит из каталога,
// статическая проверка printf к нему неприменима.
var formatFunc = fmt.Sprintf

// IsSupported проверяет код языка.
func IsSupported(lang string) bool {
	switch lang {
	case LangEnglish, LangRussian, LangChinese:
		return true
	}
	return false
}

// MatchLanguage выбирает язык по заголовку Accept-Language.
// Неподдерживаемые языки дают fallback.
func MatchLanguage(acceptLanguage, fallback string) string {
	tag, _, conf := matcher.Match(parseTags(acceptLanguage)...)
	if conf == language.No {
		return fallback
	}
	base, _ := tag.Base()
	switch base.String() {
	case LangRussian:
		return LangRussian
	case LangChinese:
		return LangChinese
	case LangEnglish:
		return LangEnglish
	default:
		return fallback
	}
}

// parseTags разбирает Accept-Language; ошибки разбора дают пустой список.
func parseTags(acceptLanguage string) []language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil {
		return nil
	}
	return tags
}

type contextKey string

const contextKeyLang contextKey = "i18n_lang"

// WithLang помещает язык в контекст.
func WithLang(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, contextKeyLang, lang)
}

// LangFromContext извлекает язык из контекста. По умолчанию en.
func LangFromContext(ctx context.Context) string {
	if lang, ok := ctx.Value(contextKeyLang).(string); ok && lang != "" {
		return lang
	}
	return LangEnglish
}
