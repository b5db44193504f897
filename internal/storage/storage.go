// Пакет storage — постоянное хранилище атрибутов сессии консоли.
// Набор ключей фиксирован: токен, роль, профиль пользователя и тема.
// Реализации: Memory (в памяти, основа cookie-хранилища BFF) и File (JSON-файл CLI).
package storage

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Ключи хранилища.
const (
	KeyAuthToken  = "authToken"
	KeyUserRole   = "userRole"
	KeyUserName   = "userName"
	KeyUserEmail  = "userEmail"
	KeyDriverName = "driverName"
	KeyUserID     = "userId"
	KeyAppTheme   = "appTheme"
)

// SessionKeys — ключи, которые очищаются при logout и при ответе 401.
// appTheme сюда не входит: тема переживает выход из системы.
var SessionKeys = []string{
	KeyAuthToken,
	KeyUserRole,
	KeyUserName,
	KeyUserEmail,
	KeyDriverName,
	KeyUserID,
}

// AllKeys — все допустимые ключи хранилища.
var AllKeys = append(slices.Clone(SessionKeys), KeyAppTheme)

// ErrUnknownKey — попытка записать ключ вне фиксированного набора.
var ErrUnknownKey = errors.New("неизвестный ключ хранилища")

// Storage — постоянное хранилище строковых значений по фиксированным ключам.
type Storage interface {
	// Get возвращает значение и признак наличия ключа.
	Get(key string) (string, bool)
	// Set записывает значение. Ключ должен входить в AllKeys.
	Set(key, value string) error
	// Remove удаляет ключи. Отсутствующие ключи игнорируются.
	Remove(keys ...string) error
}

// IsKnownKey проверяет, входит ли ключ в набор допустимых.
func IsKnownKey(key string) bool {
	return slices.Contains(AllKeys, key)
}

// Value возвращает значение ключа или пустую строку.
func Value(s Storage, key string) string {
	v, _ := s.Get(key)
	return v
}

// Memory — хранилище в памяти. Отслеживает изменения (Dirty),
// чтобы cookie-хранилище BFF перезаписывало cookie только при необходимости.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
	dirty  bool
}

// NewMemory создаёт хранилище с начальными значениями.
// Неизвестные ключи из initial отбрасываются.
func NewMemory(initial map[string]string) *Memory {
	m := &Memory{values: make(map[string]string, len(AllKeys))}
	for k, v := range initial {
		if IsKnownKey(k) && v != "" {
			m.values[k] = v
		}
	}
	return m
}

// Get возвращает значение ключа.
func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Set записывает значение ключа.
func (m *Memory) Set(key, value string) error {
	if !IsKnownKey(key) {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.values[key]; ok && old == value {
		return nil
	}
	m.values[key] = value
	m.dirty = true
	return nil
}

// Remove удаляет ключи.
func (m *Memory) Remove(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		if _, ok := m.values[k]; ok {
			delete(m.values, k)
			m.dirty = true
		}
	}
	return nil
}

// Snapshot возвращает копию всех значений.
func (m *Memory) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.values)
}

// Dirty возвращает true, если после создания были изменения.
func (m *Memory) Dirty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dirty
}

// Len возвращает количество заданных ключей.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
