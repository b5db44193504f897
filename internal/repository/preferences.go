package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
)

// Preference — запись таблицы user_preferences.
type Preference struct {
	// Идентификатор пользователя backend
	UserID string
	// Ключ настройки (theme, language)
	Key string
	// Значение настройки
	Value string
	// Время последнего обновления
	UpdatedAt time.Time
}

// PreferencesRepository — интерфейс для таблицы user_preferences.
type PreferencesRepository interface {
	// Get возвращает настройку пользователя. Если не найдена — ErrNotFound.
	Get(ctx context.Context, userID, key string) (*Preference, error)
	// Set создаёт или обновляет настройку (upsert).
	Set(ctx context.Context, userID, key, value string) error
	// List возвращает все настройки пользователя.
	List(ctx context.Context, userID string) ([]Preference, error)
	// Delete удаляет настройку пользователя.
	Delete(ctx context.Context, userID, key string) error
}

// preferencesRepo — реализация PreferencesRepository.
type preferencesRepo struct {
	db DBTX
}

// NewPreferencesRepository создаёт репозиторий настроек пользователей.
func NewPreferencesRepository(db DBTX) PreferencesRepository {
	return &preferencesRepo{db: db}
}

// Get возвращает настройку пользователя по ключу.
func (r *preferencesRepo) Get(ctx context.Context, userID, key string) (*Preference, error) {
	query := `
		SELECT user_id, key, value, updated_at
		FROM user_preferences
		WHERE user_id = $1 AND key = $2`

	p := &Preference{}
	err := r.db.QueryRow(ctx, query, userID, key).Scan(
		&p.UserID, &p.Key, &p.Value, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения user_preferences[%s/%s]: %w", userID, key, err)
	}
	return p, nil
}

// Set создаёт или обновляет настройку (INSERT ... ON CONFLICT DO UPDATE).
func (r *preferencesRepo) Set(ctx context.Context, userID, key, value string) error {
	query := `
		INSERT INTO user_preferences (user_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, key) DO UPDATE
		SET value = EXCLUDED.value,
			updated_at = NOW()`

	if _, err := r.db.Exec(ctx, query, userID, key, value); err != nil {
		return fmt.Errorf("ошибка сохранения user_preferences[%s/%s]: %w", userID, key, err)
	}
	return nil
}

// List возвращает настройки пользователя, отсортированные по ключу.
func (r *preferencesRepo) List(ctx context.Context, userID string) ([]Preference, error) {
	query := `
		SELECT user_id, key, value, updated_at
		FROM user_preferences
		WHERE user_id = $1
		ORDER BY key`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения user_preferences[%s]: %w", userID, err)
	}
	defer rows.Close()

	var prefs []Preference
	for rows.Next() {
		var p Preference
		if err := rows.Scan(&p.UserID, &p.Key, &p.Value, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования user_preferences: %w", err)
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

// Delete удаляет настройку пользователя.
func (r *preferencesRepo) Delete(ctx context.Context, userID, key string) error {
	query := `DELETE FROM user_preferences WHERE user_id = $1 AND key = $2`
	tag, err := r.db.Exec(ctx, query, userID, key)
	if err != nil {
		return fmt.Errorf("ошибка удаления user_preferences[%s/%s]: %w", userID, key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAll сохраняет несколько настроек пользователя в одной транзакции.
func SetAll(ctx context.Context, runner *TxRunner, userID string, values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return runner.RunInTx(ctx, func(tx pgx.Tx) error {
		repo := NewPreferencesRepository(tx)
		for _, k := range keys {
			if err := repo.Set(ctx, userID, k, values[k]); err != nil {
				return err
			}
		}
		return nil
	})
}
