// Пакет config — загрузка и валидация конфигурации Traffic Admin
// из переменных окружения.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Traffic Admin.
type Config struct {
	// --- Сервер (BFF) ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Язык сообщений по умолчанию (en, ru, zh)
	DefaultLang string

	// --- Backend REST API ---

	// Базовый URL backend (без завершающего слеша)
	BackendURL string
	// Таймаут одного запроса к backend
	RequestTimeout time.Duration
	// Путь SSE-чата с ассистентом
	ChatPath string
	// Сколько связанных записей обходит fan-out список
	FanoutLimit int
	// Путь к CA-сертификату backend для TLS (пусто — системный пул)
	BackendCACert string
	// Путь проверки доступности backend для dephealth
	BackendHealthPath string

	// --- JWT ---

	// URL JWKS для проверки подписи токенов backend (пусто — без проверки)
	JWKSURL string
	// Размер кэша разобранных claims
	ClaimsCacheSize int
	// Время жизни записи в кэше claims
	ClaimsCacheTTL time.Duration

	// --- Хранилище сессии ---

	// Ключ шифрования cookie-хранилища BFF
	SessionSecret string
	// Secure flag для cookie
	SecureCookie bool
	// Файл хранилища сессии для CLI
	StoragePath string

	// --- PostgreSQL (опционально, для пользовательских настроек) ---

	// Хост PostgreSQL (пусто — настройки хранятся только в хранилище сессии)
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- topologymetrics ---

	// Группа в метриках зависимостей
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// значения и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// TA_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("TA_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("TA_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("TA_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// TA_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("TA_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("TA_LOG_LEVEL: %w", err)
	}

	// TA_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("TA_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("TA_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// TA_DEFAULT_LANG — язык сообщений (по умолчанию en)
	cfg.DefaultLang = strings.ToLower(getEnvDefault("TA_DEFAULT_LANG", "en"))
	switch cfg.DefaultLang {
	case "en", "ru", "zh":
	default:
		return nil, fmt.Errorf("TA_DEFAULT_LANG: недопустимое значение %q, допустимые: en, ru, zh", cfg.DefaultLang)
	}

	// --- Backend ---

	// TA_BACKEND_URL — адрес backend REST API (по умолчанию http://localhost:8081)
	cfg.BackendURL = strings.TrimRight(getEnvDefault("TA_BACKEND_URL", "http://localhost:8081"), "/")
	if err := validateHTTPURL(cfg.BackendURL); err != nil {
		return nil, fmt.Errorf("TA_BACKEND_URL: %w", err)
	}

	// TA_REQUEST_TIMEOUT — таймаут запроса к backend (по умолчанию 15s)
	cfg.RequestTimeout, err = getEnvDuration("TA_REQUEST_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TA_REQUEST_TIMEOUT: %w", err)
	}
	if cfg.RequestTimeout < time.Second || cfg.RequestTimeout > 5*time.Minute {
		return nil, fmt.Errorf("TA_REQUEST_TIMEOUT: значение %s вне допустимого диапазона 1s-5m", cfg.RequestTimeout)
	}

	// TA_CHAT_PATH — путь SSE-чата (по умолчанию /api/ai/chat)
	cfg.ChatPath = getEnvDefault("TA_CHAT_PATH", "/api/ai/chat")
	if !strings.HasPrefix(cfg.ChatPath, "/") {
		return nil, fmt.Errorf("TA_CHAT_PATH: путь %q должен начинаться с /", cfg.ChatPath)
	}

	// TA_FANOUT_LIMIT — лимит связанных записей для fan-out (по умолчанию 20)
	cfg.FanoutLimit, err = getEnvInt("TA_FANOUT_LIMIT", 20)
	if err != nil {
		return nil, fmt.Errorf("TA_FANOUT_LIMIT: %w", err)
	}
	if cfg.FanoutLimit < 1 || cfg.FanoutLimit > 200 {
		return nil, fmt.Errorf("TA_FANOUT_LIMIT: значение %d вне допустимого диапазона 1-200", cfg.FanoutLimit)
	}

	// TA_BACKEND_CA_CERT — опциональный CA-сертификат backend
	cfg.BackendCACert = getEnvDefault("TA_BACKEND_CA_CERT", "")

	// TA_BACKEND_HEALTH_PATH — путь проверки backend (по умолчанию /actuator/health)
	cfg.BackendHealthPath = getEnvDefault("TA_BACKEND_HEALTH_PATH", "/actuator/health")
	if !strings.HasPrefix(cfg.BackendHealthPath, "/") {
		return nil, fmt.Errorf("TA_BACKEND_HEALTH_PATH: путь %q должен начинаться с /", cfg.BackendHealthPath)
	}

	// --- JWT ---

	// TA_JWKS_URL — опциональная проверка подписи токенов
	cfg.JWKSURL = getEnvDefault("TA_JWKS_URL", "")
	if cfg.JWKSURL != "" {
		if err := validateHTTPURL(cfg.JWKSURL); err != nil {
			return nil, fmt.Errorf("TA_JWKS_URL: %w", err)
		}
	}

	// TA_CLAIMS_CACHE_SIZE — размер кэша claims (по умолчанию 1024)
	cfg.ClaimsCacheSize, err = getEnvInt("TA_CLAIMS_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("TA_CLAIMS_CACHE_SIZE: %w", err)
	}
	if cfg.ClaimsCacheSize < 1 {
		return nil, fmt.Errorf("TA_CLAIMS_CACHE_SIZE: значение %d должно быть положительным", cfg.ClaimsCacheSize)
	}

	// TA_CLAIMS_CACHE_TTL — время жизни записи кэша (по умолчанию 5m)
	cfg.ClaimsCacheTTL, err = getEnvDuration("TA_CLAIMS_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("TA_CLAIMS_CACHE_TTL: %w", err)
	}

	// --- Хранилище сессии ---

	// TA_SESSION_SECRET — ключ шифрования cookie (пусто — случайный ключ)
	cfg.SessionSecret = getEnvDefault("TA_SESSION_SECRET", "")

	// TA_SECURE_COOKIE — Secure flag (по умолчанию false)
	cfg.SecureCookie, err = getEnvBool("TA_SECURE_COOKIE", false)
	if err != nil {
		return nil, fmt.Errorf("TA_SECURE_COOKIE: %w", err)
	}

	// TA_STORAGE_PATH — файл хранилища CLI (по умолчанию ~/.traffic-admin/storage.json)
	cfg.StoragePath = getEnvDefault("TA_STORAGE_PATH", defaultStoragePath())

	// --- PostgreSQL ---

	// TA_DB_HOST — если задан, остальные параметры БД обязательны
	cfg.DBHost = getEnvDefault("TA_DB_HOST", "")
	if cfg.DBHost != "" {
		cfg.DBPort, err = getEnvInt("TA_DB_PORT", 5432)
		if err != nil {
			return nil, fmt.Errorf("TA_DB_PORT: %w", err)
		}

		if cfg.DBName, err = getEnvRequired("TA_DB_NAME"); err != nil {
			return nil, err
		}
		if cfg.DBUser, err = getEnvRequired("TA_DB_USER"); err != nil {
			return nil, err
		}
		if cfg.DBPassword, err = getEnvRequired("TA_DB_PASSWORD"); err != nil {
			return nil, err
		}

		cfg.DBSSLMode = getEnvDefault("TA_DB_SSL_MODE", "disable")
		validSSLModes := map[string]bool{
			"disable": true, "require": true, "verify-ca": true, "verify-full": true,
		}
		if !validSSLModes[cfg.DBSSLMode] {
			return nil, fmt.Errorf("TA_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
		}
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("TA_DEPHEALTH_GROUP", "traffic-admin")

	cfg.DephealthCheckInterval, err = getEnvDuration("TA_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TA_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// TA_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("TA_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TA_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseEnabled возвращает true, если задано подключение к PostgreSQL.
func (c *Config) DatabaseEnabled() bool {
	return c.DBHost != ""
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)
}

// SetupLogger настраивает глобальный slog-логгер сервера (stdout).
func SetupLogger(cfg *Config) *slog.Logger {
	logger := NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)
	return logger
}

// NewLogger создаёт slog-логгер с выводом в w.
// CLI пишет логи в stderr, чтобы не смешивать их с табличным выводом.
func NewLogger(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// --- Вспомогательные функции ---

// defaultStoragePath возвращает путь файла хранилища в домашнем каталоге.
func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".traffic-admin", "storage.json")
	}
	return filepath.Join(home, ".traffic-admin", "storage.json")
}

// validateHTTPURL проверяет, что строка — абсолютный http(s) URL.
func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("некорректный URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q должен начинаться с http:// или https://", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q не содержит хост", raw)
	}
	return nil
}

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает логическое значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
