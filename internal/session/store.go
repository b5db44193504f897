package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bigkaa/trafficadmin/internal/domain/rbac"
	"github.com/bigkaa/trafficadmin/internal/storage"
)

// Store владеет текущей сессией и её копией в постоянном хранилище.
// Жизненный цикл: Restore при старте, Establish при login,
// Clear при logout или ответе 401 от backend.
// Login и logout между собой не координируются: побеждает последняя запись.
type Store struct {
	storage storage.Storage
	decoder *Decoder
	logger  *slog.Logger

	mu        sync.RWMutex
	current   *Session
	listeners map[int]func(*Session)
	nextID    int
}

// NewStore создаёт хранилище сессии поверх постоянного хранилища.
func NewStore(st storage.Storage, decoder *Decoder, logger *slog.Logger) *Store {
	return &Store{
		storage:   st,
		decoder:   decoder,
		logger:    logger.With(slog.String("component", "session_store")),
		listeners: make(map[int]func(*Session)),
	}
}

// Storage возвращает постоянное хранилище (нужно для настроек, например темы).
func (s *Store) Storage() storage.Storage {
	return s.storage
}

// Restore восстанавливает сессию из постоянного хранилища.
// Без токена возвращает nil. Ошибка разбора токена не фатальна:
// сессия получает пустой набор ролей и основную роль USER.
// Сохранённый userRole не восстанавливается: роли берутся только из токена.
func (s *Store) Restore(ctx context.Context) *Session {
	token := storage.Value(s.storage, storage.KeyAuthToken)
	if token == "" {
		s.set(nil)
		return nil
	}

	roles, err := s.decoder.Roles(ctx, token)
	if err != nil {
		s.logger.Debug("Не удалось разобрать роли сохранённого токена",
			slog.String("error", err.Error()),
		)
		roles = rbac.Set{}
	}

	sess := &Session{
		Token:       token,
		Roles:       roles,
		PrimaryRole: roles.First(rbac.RoleUser),
		UserID:      storage.Value(s.storage, storage.KeyUserID),
		UserName:    storage.Value(s.storage, storage.KeyUserName),
		UserEmail:   storage.Value(s.storage, storage.KeyUserEmail),
		DisplayName: storage.Value(s.storage, storage.KeyDriverName),
	}
	s.set(sess)
	return sess
}

// Establish создаёт сессию по токену из ответа на login и сохраняет её.
// При включённой проверке подписи невалидный токен отклоняется,
// без проверки ошибка разбора даёт пустой набор ролей и основную роль USER.
func (s *Store) Establish(ctx context.Context, token, identifier string, profile Profile) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: пустой токен", ErrInvalidToken)
	}

	roles, err := s.decoder.Roles(ctx, token)
	if err != nil {
		if s.decoder.Verifying() {
			return nil, err
		}
		s.logger.Debug("Роли токена не разобраны, используется USER",
			slog.String("error", err.Error()),
		)
		roles = rbac.Set{}
	}

	name, email, userID, displayName := profile.Resolve(identifier)
	sess := &Session{
		Token:       token,
		Roles:       roles,
		PrimaryRole: roles.First(rbac.RoleUser),
		UserID:      userID,
		UserName:    name,
		UserEmail:   email,
		DisplayName: displayName,
	}

	if err := s.persist(sess); err != nil {
		return nil, err
	}
	s.set(sess)
	return sess, nil
}

// persist записывает атрибуты сессии в постоянное хранилище.
func (s *Store) persist(sess *Session) error {
	values := []struct{ key, value string }{
		{storage.KeyAuthToken, sess.Token},
		{storage.KeyUserRole, sess.PrimaryRole.String()},
		{storage.KeyUserName, sess.UserName},
		{storage.KeyUserEmail, sess.UserEmail},
		{storage.KeyDriverName, sess.DisplayName},
		{storage.KeyUserID, sess.UserID},
	}

	var stale []string
	for _, kv := range values {
		if kv.value == "" {
			stale = append(stale, kv.key)
			continue
		}
		if err := s.storage.Set(kv.key, kv.value); err != nil {
			return fmt.Errorf("сохранение %s: %w", kv.key, err)
		}
	}
	// Пустые атрибуты не должны остаться от предыдущего пользователя
	if err := s.storage.Remove(stale...); err != nil {
		return fmt.Errorf("очистка устаревших атрибутов: %w", err)
	}
	return nil
}

// Clear удаляет атрибуты сессии из хранилища (кроме темы) и сбрасывает
// текущую сессию. Ошибка записи хранилища логируется: выход из системы
// не может завершиться неудачей.
func (s *Store) Clear() {
	if err := s.storage.Remove(storage.SessionKeys...); err != nil {
		s.logger.Error("Ошибка очистки хранилища сессии", slog.String("error", err.Error()))
	}
	s.set(nil)
}

// Invalidate вызывается HTTP-клиентом при ответе 401.
func (s *Store) Invalidate() {
	if cur := s.Current(); cur != nil {
		s.logger.Info("Backend отклонил токен, сессия очищена",
			slog.String("user", cur.UserName),
		)
	}
	s.Clear()
}

// Current возвращает текущую сессию или nil.
func (s *Store) Current() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Token возвращает токен текущей сессии или пустую строку.
func (s *Store) Token() string {
	if cur := s.Current(); cur != nil {
		return cur.Token
	}
	return ""
}

// Subscribe регистрирует обработчик изменений сессии.
// Возвращает функцию отписки.
func (s *Store) Subscribe(fn func(*Session)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// set заменяет текущую сессию и уведомляет подписчиков вне блокировки.
func (s *Store) set(sess *Session) {
	s.mu.Lock()
	s.current = sess
	listeners := make([]func(*Session), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(sess)
	}
}

// ErrNoSession — операция требует активной сессии.
var ErrNoSession = errors.New("нет активной сессии")
