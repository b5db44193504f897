// preferences.go — настройки пользователя: тема оформления и язык.
// Тема всегда хранится в постоянном хранилище (ключ appTheme) и переживает
// выход из системы. При подключённой PostgreSQL настройки дублируются
// в user_preferences, чтобы следовать за пользователем между устройствами.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bigkaa/trafficadmin/internal/apperr"
	"github.com/bigkaa/trafficadmin/internal/i18n"
	"github.com/bigkaa/trafficadmin/internal/repository"
	"github.com/bigkaa/trafficadmin/internal/session"
	"github.com/bigkaa/trafficadmin/internal/storage"
)

// Theme — тема оформления.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"

	DefaultTheme = ThemeSystem
)

// Ключи user_preferences.
const (
	PrefTheme    = "theme"
	PrefLanguage = "language"
)

// ParseTheme разбирает название темы без учёта регистра.
func ParseTheme(raw string) (Theme, error) {
	switch t := Theme(strings.ToLower(strings.TrimSpace(raw))); t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return t, nil
	}
	return "", apperr.Validation(msgInvalidTheme)
}

// PreferencesService — чтение и запись настроек пользователя.
type PreferencesService struct {
	// repo == nil — база не подключена
	repo   repository.PreferencesRepository
	setAll func(ctx context.Context, userID string, values map[string]string) error
	logger *slog.Logger
}

// NewPreferencesService создаёт сервис настроек.
// repo и runner могут быть nil, если PostgreSQL не настроен.
func NewPreferencesService(repo repository.PreferencesRepository, runner *repository.TxRunner, logger *slog.Logger) *PreferencesService {
	s := &PreferencesService{
		repo:   repo,
		logger: logger.With(slog.String("service", "preferences")),
	}
	if runner != nil {
		s.setAll = func(ctx context.Context, userID string, values map[string]string) error {
			return repository.SetAll(ctx, runner, userID, values)
		}
	}
	return s
}

// Persistent возвращает true, если настройки сохраняются в базе.
func (s *PreferencesService) Persistent() bool {
	return s.repo != nil
}

// Theme возвращает тему: из хранилища, затем из базы для сессии
// с идентификатором пользователя, иначе DefaultTheme.
// Тема из базы копируется в хранилище.
func (s *PreferencesService) Theme(ctx context.Context, st storage.Storage, sess *session.Session) Theme {
	if t, err := ParseTheme(storage.Value(st, storage.KeyAppTheme)); err == nil {
		return t
	}

	raw, ok := s.lookup(ctx, sess, PrefTheme)
	if !ok {
		return DefaultTheme
	}
	t, err := ParseTheme(raw)
	if err != nil {
		return DefaultTheme
	}
	if err := st.Set(storage.KeyAppTheme, string(t)); err != nil {
		s.logger.Warn("Не удалось сохранить тему в хранилище", slog.String("error", err.Error()))
	}
	return t
}

// SetTheme проверяет и сохраняет тему. Ошибка записи в базу
// не отменяет смену темы: хранилище уже обновлено.
func (s *PreferencesService) SetTheme(ctx context.Context, st storage.Storage, sess *session.Session, raw string) (Theme, error) {
	t, err := ParseTheme(raw)
	if err != nil {
		return "", err
	}
	if err := st.Set(storage.KeyAppTheme, string(t)); err != nil {
		return "", fmt.Errorf("сохранение темы: %w", err)
	}
	s.store(ctx, sess, PrefTheme, string(t))
	return t, nil
}

// Language возвращает сохранённый язык пользователя.
func (s *PreferencesService) Language(ctx context.Context, sess *session.Session) (string, bool) {
	lang, ok := s.lookup(ctx, sess, PrefLanguage)
	if !ok || !i18n.IsSupported(lang) {
		return "", false
	}
	return lang, true
}

// SetLanguage сохраняет язык пользователя в базе.
// Без базы или без идентификатора пользователя язык живёт только в cookie.
func (s *PreferencesService) SetLanguage(ctx context.Context, sess *session.Session, lang string) error {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if !i18n.IsSupported(lang) {
		return fmt.Errorf("%w: язык %q", ErrValidation, lang)
	}
	s.store(ctx, sess, PrefLanguage, lang)
	return nil
}

// All возвращает все настройки пользователя из базы.
func (s *PreferencesService) All(ctx context.Context, sess *session.Session) (map[string]string, error) {
	out := make(map[string]string)
	if s.repo == nil || !sess.Authenticated() || sess.UserID == "" {
		return out, nil
	}
	prefs, err := s.repo.List(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("чтение настроек: %w", err)
	}
	for _, p := range prefs {
		out[p.Key] = p.Value
	}
	return out, nil
}

// Import сохраняет набор настроек целиком: все или ни одной.
func (s *PreferencesService) Import(ctx context.Context, sess *session.Session, values map[string]string) error {
	if s.repo == nil {
		return nil
	}
	if !sess.Authenticated() || sess.UserID == "" {
		return ErrNoSession
	}

	clean := make(map[string]string, len(values))
	for k, v := range values {
		switch k {
		case PrefTheme:
			t, err := ParseTheme(v)
			if err != nil {
				return err
			}
			clean[k] = string(t)
		case PrefLanguage:
			if !i18n.IsSupported(v) {
				return fmt.Errorf("%w: язык %q", ErrValidation, v)
			}
			clean[k] = v
		default:
			return fmt.Errorf("%w: неизвестная настройка %q", ErrValidation, k)
		}
	}

	if s.setAll != nil {
		return s.setAll(ctx, sess.UserID, clean)
	}
	for k, v := range clean {
		if err := s.repo.Set(ctx, sess.UserID, k, v); err != nil {
			return err
		}
	}
	return nil
}

// lookup читает настройку из базы. Ошибки базы логируются и дают "нет значения".
func (s *PreferencesService) lookup(ctx context.Context, sess *session.Session, key string) (string, bool) {
	if s.repo == nil || !sess.Authenticated() || sess.UserID == "" {
		return "", false
	}
	p, err := s.repo.Get(ctx, sess.UserID, key)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("Ошибка чтения настройки",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return "", false
	}
	return p.Value, true
}

// store записывает настройку в базу, если это возможно.
func (s *PreferencesService) store(ctx context.Context, sess *session.Session, key, value string) {
	if s.repo == nil || !sess.Authenticated() || sess.UserID == "" {
		return
	}
	if err := s.repo.Set(ctx, sess.UserID, key, value); err != nil {
		s.logger.Warn("Ошибка сохранения настройки",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Debug("Настройка сохранена",
		slog.String("key", key),
		slog.String("user_id", sess.UserID),
	)
}
