// Пакет auth — постоянное хранилище консоли для браузера: атрибуты сессии
// и тема хранятся в cookie, зашифрованном AES-256-GCM. Браузер не видит
// токен backend, сервер не хранит состояние между запросами.
package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bigkaa/trafficadmin/internal/storage"
)

// Имя cookie с зашифрованным хранилищем.
const CookieName = "ta_storage"

// Максимальный возраст cookie (30 дней): тема должна переживать выход.
const CookieMaxAge = 30 * 24 * 60 * 60

// ErrCorrupted — cookie не расшифровывается текущим ключом.
var ErrCorrupted = errors.New("повреждённое хранилище в cookie")

// CookieStore шифрует и дешифрует содержимое storage.Memory в cookie.
type CookieStore struct {
	// gcm — AEAD cipher для шифрования/дешифрования.
	gcm cipher.AEAD
	// secure — Secure flag для cookie (true для HTTPS).
	secure bool
}

// NewCookieStore создаёт хранилище в cookie.
// key — base64 32-байтового ключа или произвольная строка (хешируется SHA-256).
// Пустой key — случайный ключ: cookie не переживают перезапуск.
func NewCookieStore(key string, secure bool) (*CookieStore, error) {
	var keyBytes []byte

	if key == "" {
		keyBytes = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, keyBytes); err != nil {
			return nil, fmt.Errorf("ошибка генерации ключа cookie: %w", err)
		}
	} else {
		var err error
		keyBytes, err = base64.StdEncoding.DecodeString(key)
		if err != nil || len(keyBytes) != 32 {
			keyBytes = sha256Key(key)
		}
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}

	return &CookieStore{gcm: gcm, secure: secure}, nil
}

// Encrypt шифрует значения хранилища в base64-строку.
func (cs *CookieStore) Encrypt(values map[string]string) (string, error) {
	plaintext, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации хранилища: %w", err)
	}

	nonce := make([]byte, cs.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}

	// nonce идёт перед шифротекстом
	ciphertext := cs.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// Decrypt дешифрует строку из cookie в значения хранилища.
func (cs *CookieStore) Decrypt(encrypted string) (map[string]string, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrCorrupted, err)
	}

	nonceSize := cs.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("%w: данные слишком короткие", ErrCorrupted)
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := cs.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	var values map[string]string
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrCorrupted, err)
	}
	return values, nil
}

// Load читает хранилище из cookie запроса. Без cookie возвращает пустое
// хранилище. Повреждённый cookie даёт пустое хранилище и ErrCorrupted:
// вызывающий решает, очищать ли cookie.
func (cs *CookieStore) Load(r *http.Request) (*storage.Memory, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return storage.NewMemory(nil), nil
	}
	values, err := cs.Decrypt(cookie.Value)
	if err != nil {
		return storage.NewMemory(nil), err
	}
	return storage.NewMemory(values), nil
}

// Save записывает хранилище в cookie ответа.
// Пустое хранилище удаляет cookie.
func (cs *CookieStore) Save(w http.ResponseWriter, mem *storage.Memory) error {
	if mem.Len() == 0 {
		cs.Clear(w)
		return nil
	}

	encrypted, err := cs.Encrypt(mem.Snapshot())
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    encrypted,
		Path:     "/",
		MaxAge:   CookieMaxAge,
		HttpOnly: true,
		Secure:   cs.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear удаляет cookie хранилища.
func (cs *CookieStore) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cs.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sha256Key хеширует строковый ключ в 32 байта.
func sha256Key(key string) []byte {
	h := sha256.Sum256([]byte(key))
	return h[:]
}
