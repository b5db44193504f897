package service

import (
	"context"
	"errors"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/trafficadmin/internal/apperr"
	"github.com/bigkaa/trafficadmin/internal/repository"
	"github.com/bigkaa/trafficadmin/internal/session"
	"github.com/bigkaa/trafficadmin/internal/storage"
)

// memPreferences — PreferencesRepository в памяти.
type memPreferences struct {
	mu     sync.Mutex
	values map[string]map[string]string
	err    error
}

func newMemPreferences() *memPreferences {
	return &memPreferences{values: map[string]map[string]string{}}
}

func (m *memPreferences) Get(_ context.Context, userID, key string) (*repository.Preference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.values[userID][key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &repository.Preference{UserID: userID, Key: key, Value: v, UpdatedAt: time.Now()}, nil
}

func (m *memPreferences) Set(_ context.Context, userID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.values[userID] == nil {
		m.values[userID] = map[string]string{}
	}
	m.values[userID][key] = value
	return nil
}

func (m *memPreferences) List(_ context.Context, userID string) ([]repository.Preference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.Preference
	for k, v := range m.values[userID] {
		out = append(out, repository.Preference{UserID: userID, Key: k, Value: v})
	}
	return out, nil
}

func (m *memPreferences) Delete(_ context.Context, userID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values[userID], key)
	return nil
}

func TestParseTheme(t *testing.T) {
	tests := []struct {
		input   string
		want    Theme
		wantErr bool
	}{
		{input: "light", want: ThemeLight},
		{input: " Dark ", want: ThemeDark},
		{input: "SYSTEM", want: ThemeSystem},
		{input: "sepia", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTheme(tt.input)
			if tt.wantErr {
				if !apperr.Is(err, apperr.KindValidation) {
					t.Errorf("ParseTheme(%q): ожидалась ValidationError, получено %v", tt.input, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseTheme(%q) = %q, %v", tt.input, got, err)
			}
		})
	}
}

func TestPreferencesService_ThemeWithoutDatabase(t *testing.T) {
	svc := NewPreferencesService(nil, nil, testLogger())
	mem := storage.NewMemory(nil)
	ctx := context.Background()

	if got := svc.Theme(ctx, mem, nil); got != DefaultTheme {
		t.Errorf("тема по умолчанию = %q", got)
	}
	if _, err := svc.SetTheme(ctx, mem, nil, "dark"); err != nil {
		t.Fatalf("SetTheme: %v", err)
	}
	if got := storage.Value(mem, storage.KeyAppTheme); got != "dark" {
		t.Errorf("appTheme = %q", got)
	}
	if _, err := svc.SetTheme(ctx, mem, nil, "neon"); err == nil {
		t.Error("неизвестная тема должна отклоняться")
	}
	if got := svc.Theme(ctx, mem, nil); got != ThemeDark {
		t.Errorf("Theme() = %q, ожидалась dark", got)
	}
	if svc.Persistent() {
		t.Error("без базы настройки не сохраняются")
	}
}

func TestPreferencesService_ThemeFollowsUser(t *testing.T) {
	repo := newMemPreferences()
	svc := NewPreferencesService(repo, nil, testLogger())
	sess := &session.Session{Token: "t", UserID: "42"}
	ctx := context.Background()

	laptop := storage.NewMemory(nil)
	if _, err := svc.SetTheme(ctx, laptop, sess, "light"); err != nil {
		t.Fatalf("SetTheme: %v", err)
	}

	phone := storage.NewMemory(nil)
	if got := svc.Theme(ctx, phone, sess); got != ThemeLight {
		t.Errorf("тема на другом устройстве = %q, ожидалась light", got)
	}
	if got := storage.Value(phone, storage.KeyAppTheme); got != "light" {
		t.Errorf("тема из базы должна копироваться в хранилище, получено %q", got)
	}

	t.Run("ошибка базы не мешает смене темы", func(t *testing.T) {
		repo.err = errors.New("база недоступна")
		defer func() { repo.err = nil }()
		if _, err := svc.SetTheme(ctx, laptop, sess, "dark"); err != nil {
			t.Fatalf("SetTheme: %v", err)
		}
		if got := storage.Value(laptop, storage.KeyAppTheme); got != "dark" {
			t.Errorf("appTheme = %q", got)
		}
	})
}

func TestPreferencesService_Language(t *testing.T) {
	repo := newMemPreferences()
	svc := NewPreferencesService(repo, nil, testLogger())
	sess := &session.Session{Token: "t", UserID: "42"}
	ctx := context.Background()

	if _, ok := svc.Language(ctx, sess); ok {
		t.Error("язык ещё не сохранён")
	}
	if err := svc.SetLanguage(ctx, sess, "RU"); err != nil {
		t.Fatalf("SetLanguage: %v", err)
	}
	if lang, ok := svc.Language(ctx, sess); !ok || lang != "ru" {
		t.Errorf("Language() = %q, %v", lang, ok)
	}
	if err := svc.SetLanguage(ctx, sess, "de"); !errors.Is(err, ErrValidation) {
		t.Errorf("неподдерживаемый язык: %v", err)
	}
}

func TestPreferencesService_Import(t *testing.T) {
	repo := newMemPreferences()
	svc := NewPreferencesService(repo, nil, testLogger())
	sess := &session.Session{Token: "t", UserID: "42"}
	ctx := context.Background()

	if err := svc.Import(ctx, sess, map[string]string{PrefTheme: "Dark", PrefLanguage: "zh"}); err != nil {
		t.Fatalf("Import: %v", err)
	}
	all, err := svc.All(ctx, sess)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	want := map[string]string{PrefTheme: "dark", PrefLanguage: "zh"}
	if !maps.Equal(all, want) {
		t.Errorf("All() = %v, ожидалось %v", all, want)
	}

	if err := svc.Import(ctx, sess, map[string]string{"fontSize": "12"}); !errors.Is(err, ErrValidation) {
		t.Errorf("неизвестная настройка: %v", err)
	}
	if err := svc.Import(ctx, nil, want); !errors.Is(err, ErrNoSession) {
		t.Errorf("без сессии: %v", err)
	}
}
