package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/trafficadmin/internal/config"
	"github.com/bigkaa/trafficadmin/internal/database"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("traffic_test"),
		postgres.WithUsername("traffic"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("TA_DB_HOST", host)
	t.Setenv("TA_DB_PORT", port.Port())
	t.Setenv("TA_DB_NAME", "traffic_test")
	t.Setenv("TA_DB_USER", "traffic")
	t.Setenv("TA_DB_PASSWORD", "test-password")
	t.Setenv("TA_DB_SSL_MODE", "disable")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

func TestPreferencesCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewPreferencesRepository(pool)
	userID := uuid.NewString()

	// Get несуществующей
	if _, err := repo.Get(ctx, userID, "theme"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() ожидалась ErrNotFound, получено %v", err)
	}

	// Set + Get
	if err := repo.Set(ctx, userID, "theme", "dark"); err != nil {
		t.Fatalf("Set() ошибка: %v", err)
	}
	got, err := repo.Get(ctx, userID, "theme")
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if got.Value != "dark" {
		t.Errorf("Value = %q, хотели %q", got.Value, "dark")
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt не установлен")
	}

	// Upsert
	if err := repo.Set(ctx, userID, "theme", "light"); err != nil {
		t.Fatalf("Set() повторно: %v", err)
	}
	got, _ = repo.Get(ctx, userID, "theme")
	if got.Value != "light" {
		t.Errorf("после upsert Value = %q, хотели light", got.Value)
	}

	// Настройки другого пользователя не видны
	if err := repo.Set(ctx, uuid.NewString(), "theme", "dark"); err != nil {
		t.Fatal(err)
	}
	list, err := repo.List(ctx, userID)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("List() вернул %d записей, хотели 1", len(list))
	}

	// Delete
	if err := repo.Delete(ctx, userID, "theme"); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if err := repo.Delete(ctx, userID, "theme"); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный Delete() ожидалась ErrNotFound, получено %v", err)
	}
}

func TestSetAll(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	userID := uuid.NewString()

	err := SetAll(ctx, NewTxRunner(pool), userID, map[string]string{
		"theme":    "dark",
		"language": "zh",
	})
	if err != nil {
		t.Fatalf("SetAll() ошибка: %v", err)
	}

	list, err := NewPreferencesRepository(pool).List(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Key != "language" || list[1].Key != "theme" {
		t.Errorf("List() = %+v", list)
	}
}
