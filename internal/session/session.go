package session

import (
	"strings"

	"github.com/bigkaa/trafficadmin/internal/domain/rbac"
)

// Session — текущая сессия пользователя.
type Session struct {
	// Token — bearer-токен backend.
	Token string `json:"-"`
	// Roles — роли, разобранные из токена.
	Roles rbac.Set `json:"-"`
	// PrimaryRole — первая роль токена или USER. Только для отображения.
	PrimaryRole rbac.Role `json:"primaryRole"`
	// UserID — идентификатор пользователя (или водителя) в backend.
	UserID string `json:"userId,omitempty"`
	// UserName — имя пользователя для отображения.
	UserName string `json:"userName"`
	// UserEmail — email или логин.
	UserEmail string `json:"userEmail"`
	// DisplayName — имя водителя, если backend его вернул.
	DisplayName string `json:"displayName,omitempty"`
}

// Authenticated возвращает true, если у сессии есть токен.
func (s *Session) Authenticated() bool {
	return s != nil && s.Token != ""
}

// EffectiveRoles возвращает роли для проверок доступа: только роли,
// разобранные из токена. Без них сессия получает USER. Сохранённый
// userRole на доступ не влияет.
func (s *Session) EffectiveRoles() rbac.Set {
	if !s.Authenticated() {
		return rbac.Set{}
	}
	if !s.Roles.Empty() {
		return s.Roles
	}
	return rbac.NewSet(rbac.RoleUser)
}

// Profile — данные пользователя из ответа на login.
type Profile struct {
	Name       string
	RealName   string
	Email      string
	UserID     string
	DriverID   string
	DriverName string
}

// Resolve собирает атрибуты сессии из профиля и введённого логина.
// Имя: name, realName или часть логина до "@"; email: email или логин;
// идентификатор: userId или driverId; отображаемое имя: driverName или имя.
func (p Profile) Resolve(identifier string) (name, email, userID, displayName string) {
	name = firstNonEmpty(p.Name, p.RealName, strings.SplitN(identifier, "@", 2)[0])
	email = firstNonEmpty(p.Email, identifier)
	userID = firstNonEmpty(p.UserID, p.DriverID)
	displayName = firstNonEmpty(p.DriverName, name)
	return name, email, userID, displayName
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
