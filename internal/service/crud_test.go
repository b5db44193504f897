package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/bigkaa/trafficadmin/internal/apperr"
	"github.com/bigkaa/trafficadmin/internal/domain/model"
	"github.com/bigkaa/trafficadmin/internal/domain/rbac"
	"github.com/bigkaa/trafficadmin/internal/entity"
	"github.com/bigkaa/trafficadmin/internal/session"
)

// offenseRegistry — минимальная конфигурация нарушений.
func offenseRegistry() *entity.Registry {
	return entity.MustRegistry(entity.Config{
		Key:      "offenses",
		BasePath: "/api/offenses",
		IDField:  "offenseId",
		Route:    "/offenseList",
		Roles:    rbac.ManagerRoles,
		Fields: []entity.FieldSpec{
			{Name: "offenseId", Type: entity.TypeInteger},
			{Name: "driverId", Type: entity.TypeInteger},
			{Name: "processStatus"},
		},
	})
}

// newOffenseScreen создаёт экран нарушений поверх mock-ресурса.
func newOffenseScreen(t *testing.T, rows ...model.Record) (*CrudScreen, *mockEntities) {
	t.Helper()
	mock := newMockEntities("/api/offenses", "offenseId", rows...)
	server := setupMockBackend(t, mock)

	store, _ := newTestStore(nil)
	cfg, _ := offenseRegistry().Get("offenses")
	screen := NewCrudScreen(cfg, newTestClient(t, server.URL, store), entity.Scope{}, testLogger())
	return screen, mock
}

func TestCrudScreen_ListSearch(t *testing.T) {
	screen, _ := newOffenseScreen(t, model.Record{"offenseId": 1, "driverId": 9, "processStatus": "Pending"})
	ctx := context.Background()

	tests := []struct {
		name string
		term string
		want int
	}{
		{name: "совпадение без учёта регистра", term: "pend", want: 1},
		{name: "нет совпадений", term: "zzz", want: 0},
		{name: "пустая строка — все записи", term: "", want: 1},
		{name: "пробелы — все записи", term: "   ", want: 1},
		{name: "число в поле", term: "9", want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := screen.List(ctx, tt.term)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(rows) != tt.want {
				t.Errorf("List(%q) вернул %d записей, ожидалось %d", tt.term, len(rows), tt.want)
			}
			if got := screen.Search(tt.term); len(got) != tt.want {
				t.Errorf("Search(%q) вернул %d записей, ожидалось %d", tt.term, len(got), tt.want)
			}
		})
	}
}

func TestCrudScreen_CreateRefetches(t *testing.T) {
	screen, mock := newOffenseScreen(t)
	ctx := context.Background()

	if _, err := screen.List(ctx, ""); err != nil {
		t.Fatalf("List: %v", err)
	}

	form := map[string]any{"offenseId": "555", "driverId": "9", "processStatus": "Pending"}
	rows, err := screen.Create(ctx, form)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("после создания ожидалась 1 запись, получено %d", len(rows))
	}
	if mock.listCalls() != 2 {
		t.Errorf("ожидалась повторная выборка после создания, выборок: %d", mock.listCalls())
	}

	payload := mock.lastPayload()
	if payload.Has("offenseId") {
		t.Error("идентификатор не должен попадать в тело создания")
	}
	if payload.String("driverId") != "9" {
		t.Errorf("driverId = %v", payload["driverId"])
	}

	// Повтор создания пользователем — новая операция с новым ключом
	if _, err := screen.Create(ctx, form); err != nil {
		t.Fatalf("повторный Create: %v", err)
	}
	keys := mock.idempotencyKeys()
	if len(keys) != 2 || keys[0] == keys[1] {
		t.Errorf("ключи идемпотентности должны различаться: %v", keys)
	}
}

func TestCrudScreen_Update(t *testing.T) {
	screen, mock := newOffenseScreen(t, model.Record{"offenseId": 1, "driverId": 9, "processStatus": "Pending"})
	ctx := context.Background()

	rows, err := screen.List(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	rec, err := screen.Find("1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}

	rows, err = screen.Update(ctx, rec, map[string]any{"processStatus": "Processed"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(rows) != 1 || rows[0].String("processStatus") != "Processed" {
		t.Errorf("после изменения получено %v", rows)
	}
	if mock.lastPayload().String("driverId") != "9" {
		t.Error("поля, не тронутые формой, берутся из исходной записи")
	}

	t.Run("запись без идентификатора", func(t *testing.T) {
		_, err := screen.Update(ctx, model.Record{"driverId": 9}, nil)
		if !apperr.Is(err, apperr.KindValidation) || apperr.MessageOf(err) != msgIDMissing {
			t.Errorf("ожидалась ValidationError %s, получено %v", msgIDMissing, err)
		}
	})

	t.Run("некорректное число", func(t *testing.T) {
		_, err := screen.Update(ctx, rec, map[string]any{"driverId": "девять"})
		if !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("ожидалась ValidationError, получено %v", err)
		}
		if apperr.MessageOf(err) != msgInvalidValue {
			t.Errorf("MessageOf = %q", apperr.MessageOf(err))
		}
		if args := apperr.ArgsOf(err); len(args) != 1 || args[0] != "Driver Id" {
			t.Errorf("ArgsOf = %v, ожидалась подпись поля", args)
		}
		if !errors.Is(err, entity.ErrInvalidValue) {
			t.Error("исходная ошибка должна сохраняться")
		}
	})

	t.Run("неизвестная запись", func(t *testing.T) {
		if _, err := screen.Find("404"); !errors.Is(err, ErrNotFound) {
			t.Errorf("ожидалась ErrNotFound, получено %v", err)
		}
	})
}

func TestCrudScreen_Delete(t *testing.T) {
	rec := model.Record{"offenseId": 1, "driverId": 9, "processStatus": "Pending"}
	ctx := context.Background()

	tests := []struct {
		name        string
		confirm     Confirmer
		wantDeleted bool
		wantRows    int
	}{
		{
			name:        "подтверждено",
			confirm:     ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil }),
			wantDeleted: true,
			wantRows:    0,
		},
		{
			name:     "отклонено",
			confirm:  ConfirmFunc(func(context.Context, string) (bool, error) { return false, nil }),
			wantRows: 1,
		},
		{
			name:     "без подтверждения",
			confirm:  nil,
			wantRows: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			screen, mock := newOffenseScreen(t, rec.Clone())
			if _, err := screen.List(ctx, ""); err != nil {
				t.Fatalf("List: %v", err)
			}

			deleted, rows, err := screen.Delete(ctx, rec, tt.confirm)
			if err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if deleted != tt.wantDeleted {
				t.Errorf("deleted = %v, ожидалось %v", deleted, tt.wantDeleted)
			}
			if len(rows) != tt.wantRows {
				t.Errorf("строк после удаления = %d, ожидалось %d", len(rows), tt.wantRows)
			}
			if mock.count() != tt.wantRows {
				t.Errorf("на backend осталось %d записей, ожидалось %d", mock.count(), tt.wantRows)
			}
			if !tt.wantDeleted && len(mock.idempotencyKeys()) != 0 {
				t.Error("без подтверждения запрос на удаление не отправляется")
			}
		})
	}

	t.Run("подсказка подтверждения", func(t *testing.T) {
		screen, _ := newOffenseScreen(t, rec.Clone())
		var prompt string
		_, _, _ = screen.Delete(ctx, rec, ConfirmFunc(func(_ context.Context, p string) (bool, error) {
			prompt = p
			return false, nil
		}))
		if prompt != "Offenses 1" {
			t.Errorf("prompt = %q", prompt)
		}
	})

	t.Run("ошибка backend", func(t *testing.T) {
		screen, mock := newOffenseScreen(t, rec.Clone())
		mock.fail[http.MethodDelete] = http.StatusInternalServerError
		_, _, err := screen.Delete(ctx, rec, ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil }))
		if !apperr.Is(err, apperr.KindAPI) {
			t.Errorf("ожидалась ошибка backend, получено %v", err)
		}
	})
}

func TestEntityService_Screen(t *testing.T) {
	svc := NewEntityService(offenseRegistry(), 20, testLogger())

	admin := &session.Session{Token: "t", Roles: rbac.ParseSet("ADMIN"), PrimaryRole: rbac.RoleAdmin}
	user := &session.Session{Token: "t", Roles: rbac.ParseSet("USER"), PrimaryRole: rbac.RoleUser}

	tests := []struct {
		name    string
		key     string
		sess    *session.Session
		check   func(error) bool
		wantErr bool
	}{
		{name: "администратор", key: "offenses", sess: admin},
		{name: "неизвестная сущность", key: "ghosts", sess: admin, wantErr: true,
			check: func(err error) bool { return errors.Is(err, ErrUnknownEntity) }},
		{name: "без сессии", key: "offenses", sess: nil, wantErr: true,
			check: func(err error) bool { return errors.Is(err, ErrNoSession) }},
		{name: "недостаточно ролей", key: "offenses", sess: user, wantErr: true,
			check: func(err error) bool { return apperr.Is(err, apperr.KindAuthorization) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			screen, err := svc.Screen(tt.key, tt.sess, nil)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Screen: %v", err)
				}
				if screen.Config().Key != tt.key {
					t.Errorf("Config().Key = %q", screen.Config().Key)
				}
				return
			}
			if !tt.check(err) {
				t.Errorf("неожиданная ошибка: %v", err)
			}
		})
	}

	if got := svc.Available(user); len(got) != 0 {
		t.Errorf("пользователю доступны %d экранов управления", len(got))
	}
	if got := svc.Available(admin); len(got) != 1 {
		t.Errorf("администратору доступно %d экранов, ожидался 1", len(got))
	}
}
