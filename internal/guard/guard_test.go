package guard

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bigkaa/trafficadmin/internal/domain/rbac"
	"github.com/bigkaa/trafficadmin/internal/entity"
	"github.com/bigkaa/trafficadmin/internal/session"
	"github.com/bigkaa/trafficadmin/internal/storage"
)

func sessionWith(roles ...string) *session.Session {
	set := rbac.ParseSet(roles...)
	return &session.Session{Token: "t", Roles: set, PrimaryRole: set.First(rbac.RoleUser)}
}

func TestDecide(t *testing.T) {
	adminOnly := rbac.NewSet(rbac.RoleAdmin)

	tests := []struct {
		name         string
		required     rbac.Set
		sess         *session.Session
		wantAllow    bool
		wantRedirect string
		wantReason   Reason
	}{
		{
			name:         "роль USER на экране администратора",
			required:     adminOnly,
			sess:         sessionWith("USER"),
			wantRedirect: "/login?from=%2FuserManagementPage",
			wantReason:   ReasonForbidden,
		},
		{
			name:      "ADMIN и USER на экране администратора",
			required:  adminOnly,
			sess:      sessionWith("ADMIN", "USER"),
			wantAllow: true,
		},
		{
			name:         "без сессии",
			required:     adminOnly,
			sess:         nil,
			wantRedirect: "/login?from=%2FuserManagementPage",
			wantReason:   ReasonUnauthenticated,
		},
		{
			name:         "сессия без токена",
			required:     rbac.Set{},
			sess:         &session.Session{PrimaryRole: rbac.RoleAdmin},
			wantRedirect: "/login?from=%2FuserManagementPage",
			wantReason:   ReasonUnauthenticated,
		},
		{
			name:      "пустой набор ролей",
			required:  rbac.Set{},
			sess:      sessionWith("USER"),
			wantAllow: true,
		},
		{
			name:         "основная роль без ролей токена не даёт доступа",
			required:     adminOnly,
			sess:         &session.Session{Token: "t", PrimaryRole: rbac.RoleAdmin},
			wantRedirect: "/login?from=%2FuserManagementPage",
			wantReason:   ReasonForbidden,
		},
		{
			name:      "без ролей токена действует USER",
			required:  rbac.NewSet(rbac.RoleUser),
			sess:      &session.Session{Token: "t"},
			wantAllow: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.required, tt.sess, "/userManagementPage")
			if got.Allow != tt.wantAllow {
				t.Errorf("Allow = %v, ожидалось %v", got.Allow, tt.wantAllow)
			}
			if got.Redirect != tt.wantRedirect {
				t.Errorf("Redirect = %q, ожидалось %q", got.Redirect, tt.wantRedirect)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, ожидалось %q", got.Reason, tt.wantReason)
			}
		})
	}
}

// Сохранённый userRole не открывает экраны, если роли токена не разобраны.
func TestDecide_RestoredBrokenToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := storage.NewMemory(map[string]string{
		storage.KeyAuthToken: "garbage",
		storage.KeyUserRole:  "ADMIN",
	})
	store := session.NewStore(mem, session.NewDecoder(16, time.Minute, nil, logger), logger)

	sess := store.Restore(context.Background())
	if !sess.Authenticated() {
		t.Fatal("сессия должна быть восстановлена")
	}

	got := Decide(rbac.NewSet(rbac.RoleAdmin), sess, "/offenseList")
	if got.Allow {
		t.Fatal("ADMIN-маршрут не должен открываться по сохранённому userRole")
	}
	if got.Redirect != "/login?from=%2FoffenseList" || got.Reason != ReasonForbidden {
		t.Errorf("Redirect = %q, Reason = %q", got.Redirect, got.Reason)
	}
	if landing := NewTable(entity.DefaultRegistry()).Landing("", sess); landing != "/userDashboard" {
		t.Errorf("Landing = %q, ожидался /userDashboard", landing)
	}
}

func TestDecide_Stable(t *testing.T) {
	required := rbac.NewSet(rbac.RoleAdmin)
	denied := sessionWith("USER")
	allowed := sessionWith("ADMIN", "USER")

	// Решение не зависит от числа повторов
	for i := 0; i < 5; i++ {
		if Decide(required, denied, "/x").Allow {
			t.Fatal("USER не должен получать доступ")
		}
		if !Decide(required, allowed, "/x").Allow {
			t.Fatal("ADMIN должен получать доступ")
		}
	}
}

func TestLoginRedirect(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		want      string
	}{
		{name: "локальный путь", requested: "/fineList", want: "/login?from=%2FfineList"},
		{name: "путь с query", requested: "/fineList?q=a&b=1", want: "/login?from=%2FfineList%3Fq%3Da%26b%3D1"},
		{name: "внешний адрес", requested: "https://evil.example", want: "/login"},
		{name: "протокол-относительный адрес", requested: "//evil.example", want: "/login"},
		{name: "обратный слеш", requested: `/\evil.example`, want: "/login"},
		{name: "сам /login", requested: "/login", want: "/login"},
		{name: "пусто", requested: "", want: "/login"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LoginRedirect(tt.requested); got != tt.want {
				t.Errorf("LoginRedirect(%q) = %q, ожидалось %q", tt.requested, got, tt.want)
			}
		})
	}
}

func TestTable_Lookup(t *testing.T) {
	table := NewTable(entity.DefaultRegistry())

	tests := []struct {
		name   string
		path   string
		wantOK bool
		want   rbac.Set
	}{
		{name: "экран сущности", path: "/userManagementPage", wantOK: true, want: rbac.NewSet(rbac.RoleAdmin, rbac.RoleSuperAdmin)},
		{name: "экран управления", path: "/dashboard", wantOK: true, want: rbac.ManagerRoles},
		{name: "экран водителя", path: "/userDashboard", wantOK: true, want: rbac.DriverRoles},
		{name: "общий экран", path: "/changeThemes", wantOK: true, want: rbac.Set{}},
		{name: "завершающий слеш и query", path: "/fineList/?q=1", wantOK: true, want: rbac.ManagerRoles},
		{name: "маршрут с параметром", path: "/progressDetailPage/5", wantOK: true, want: rbac.ManagerRoles},
		{name: "параметр отсутствует", path: "/progressDetailPage/", wantOK: false},
		{name: "лишний сегмент", path: "/progressDetailPage/5/edit", wantOK: false},
		{name: "неизвестный путь", path: "/nope", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := table.Lookup(tt.path)
			if ok != tt.wantOK {
				t.Fatalf("Lookup(%q) ok = %v, ожидалось %v", tt.path, ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("Lookup(%q) = %v, ожидалось %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestTable_Resolve(t *testing.T) {
	table := NewTable(entity.DefaultRegistry())

	tests := []struct {
		name         string
		path         string
		sess         *session.Session
		wantAllow    bool
		wantRedirect string
		wantReason   Reason
	}{
		{
			name:      "страница входа без сессии",
			path:      "/login",
			sess:      nil,
			wantAllow: true,
		},
		{
			name:         "страница входа для администратора",
			path:         "/login",
			sess:         sessionWith("ADMIN"),
			wantRedirect: ManagerLandingPath,
		},
		{
			name:         "страница входа для водителя",
			path:         "/login",
			sess:         sessionWith("USER"),
			wantRedirect: DriverLandingPath,
		},
		{
			name:         "неизвестный путь",
			path:         "/unknown",
			sess:         sessionWith("ADMIN"),
			wantRedirect: LoginPath,
			wantReason:   ReasonUnknownRoute,
		},
		{
			name:         "корень",
			path:         "/",
			sess:         sessionWith("ADMIN"),
			wantRedirect: LoginPath,
			wantReason:   ReasonUnknownRoute,
		},
		{
			name:      "деталь прогресса для рецензента",
			path:      "/progressDetailPage/7",
			sess:      sessionWith("APPEAL_REVIEWER"),
			wantAllow: true,
		},
		{
			name:         "деталь прогресса для водителя",
			path:         "/progressDetailPage/7",
			sess:         sessionWith("USER"),
			wantRedirect: "/login?from=%2FprogressDetailPage%2F7",
			wantReason:   ReasonForbidden,
		},
		{
			name:         "управление пользователями для рецензента",
			path:         "/userManagementPage",
			sess:         sessionWith("APPEAL_REVIEWER"),
			wantRedirect: "/login?from=%2FuserManagementPage",
			wantReason:   ReasonForbidden,
		},
		{
			name:      "личные штрафы водителя",
			path:      "/fineInformation",
			sess:      sessionWith("USER"),
			wantAllow: true,
		},
		{
			name:         "экран водителя без входа",
			path:         "/fineInformation",
			sess:         nil,
			wantRedirect: "/login?from=%2FfineInformation",
			wantReason:   ReasonUnauthenticated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := table.Resolve(tt.path, tt.sess)
			if got.Allow != tt.wantAllow || got.Redirect != tt.wantRedirect || got.Reason != tt.wantReason {
				t.Errorf("Resolve(%q) = %+v, ожидалось allow=%v redirect=%q reason=%q",
					tt.path, got, tt.wantAllow, tt.wantRedirect, tt.wantReason)
			}
		})
	}
}

func TestTable_Landing(t *testing.T) {
	table := NewTable(entity.DefaultRegistry())

	tests := []struct {
		name string
		from string
		sess *session.Session
		want string
	}{
		{name: "администратор без from", sess: sessionWith("ADMIN"), want: ManagerLandingPath},
		{name: "рецензент без from", sess: sessionWith("APPEAL_REVIEWER"), want: ManagerLandingPath},
		{name: "водитель без from", sess: sessionWith("USER"), want: DriverLandingPath},
		{name: "доступный from", from: "/fineList", sess: sessionWith("ADMIN"), want: "/fineList"},
		{name: "недоступный from", from: "/userManagementPage", sess: sessionWith("USER"), want: DriverLandingPath},
		{name: "неизвестный from", from: "/nope", sess: sessionWith("ADMIN"), want: ManagerLandingPath},
		{name: "внешний from", from: "//evil.example/fineList", sess: sessionWith("ADMIN"), want: ManagerLandingPath},
		{name: "from ведёт на вход", from: "/login", sess: sessionWith("USER"), want: DriverLandingPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := table.Landing(tt.from, tt.sess); got != tt.want {
				t.Errorf("Landing(%q) = %q, ожидалось %q", tt.from, got, tt.want)
			}
		})
	}
}

func TestTable_Screens(t *testing.T) {
	table := NewTable(entity.DefaultRegistry())

	contains := func(screens []Screen, path string) bool {
		for _, s := range screens {
			if s.Path == path {
				return true
			}
		}
		return false
	}

	driver := table.Screens(sessionWith("USER"))
	if contains(driver, "/userManagementPage") {
		t.Error("водителю не должен быть виден экран пользователей")
	}
	for _, p := range []string{"/userDashboard", "/fineInformation", "/changeThemes"} {
		if !contains(driver, p) {
			t.Errorf("водителю должен быть виден %s", p)
		}
	}

	admin := table.Screens(sessionWith("ADMIN"))
	if !contains(admin, "/userManagementPage") || !contains(admin, "/dashboard") {
		t.Error("администратору должны быть видны экраны управления")
	}
	for i := 1; i < len(admin); i++ {
		if admin[i-1].Path > admin[i].Path {
			t.Fatalf("экраны не отсортированы: %s > %s", admin[i-1].Path, admin[i].Path)
		}
	}

	if got := table.Screens(nil); len(got) != 0 {
		t.Errorf("без сессии экранов быть не должно: %d", len(got))
	}
}
